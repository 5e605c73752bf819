package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/market"
)

func (a *API) handleCreateDonation(w http.ResponseWriter, r *http.Request) {
	var req market.DonationInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.svc.Donations.Create(r.Context(), currentUser(r), req)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventDonationCreated, map[string]any{
		"donation_id": d.ID,
		"food_type":   d.FoodType,
	})
	w.Header().Set("Location", "/v1/donations/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleListDonations(w http.ResponseWriter, r *http.Request) {
	status := market.DonationStatus(r.URL.Query().Get("status"))
	items, err := a.svc.Donations.List(r.Context(), currentUser(r), status)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleDonationRequests(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Donations.Requests(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.svc.Requests.Accept(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventRequestAccepted, map[string]any{
		"request_id":  req.ID,
		"donation_id": req.DonationID,
		"ngo_id":      req.NgoID,
	})
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.svc.Requests.Reject(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventRequestRejected, map[string]any{
		"request_id":  req.ID,
		"donation_id": req.DonationID,
		"ngo_id":      req.NgoID,
	})
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleDonorImpact(w http.ResponseWriter, r *http.Request) {
	imp, err := a.svc.Stats.DonorImpact(r.Context(), currentUser(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (a *API) handleDonorActivity(w http.ResponseWriter, r *http.Request) {
	days, err := a.svc.Stats.DonorActivity(r.Context(), currentUser(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": days})
}

func (a *API) handleDonorFoodTypes(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Stats.FoodTypes(r.Context(), currentUser(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

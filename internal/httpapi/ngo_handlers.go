package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/market"
)

type createRequestBody struct {
	Message string `json:"message"`
}

// ngoProfile resolves the caller's NGO profile, writing 404 when the
// account has not submitted one yet.
func (a *API) ngoProfile(w http.ResponseWriter, r *http.Request) (market.NgoProfile, bool) {
	p, err := a.svc.Registry.ProfileForUser(r.Context(), currentUser(r))
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ngo profile not found")
		return market.NgoProfile{}, false
	}
	if err != nil {
		handleMarketError(w, r, err)
		return market.NgoProfile{}, false
	}
	return p, true
}

func (a *API) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req market.ProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.Registry.CreateProfile(r.Context(), currentUser(r), req)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventProfileSubmitted, map[string]any{
		"ngo_id":       p.ID,
		"organization": p.OrganizationName,
	})
	w.Header().Set("Location", "/v1/ngo/profile")
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := market.BrowseFilter{
		FoodType: q.Get("type"),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	if raw := strings.TrimSpace(q.Get("max_km")); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil || km < 0 {
			writeError(w, r, http.StatusBadRequest, "max_km must be a non-negative number")
			return
		}
		filter.MaxDistanceKm = km
	}
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	items, err := a.svc.Donations.Browse(r.Context(), p.ID, filter)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	req, err := a.svc.Requests.Create(r.Context(), chi.URLParam(r, "id"), p.ID, body.Message)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventRequestCreated, map[string]any{
		"request_id":  req.ID,
		"donation_id": req.DonationID,
		"ngo_id":      req.NgoID,
	})
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) handleNGORequests(w http.ResponseWriter, r *http.Request) {
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	status := market.RequestStatus(r.URL.Query().Get("status"))
	items, err := a.svc.Requests.ListForNGO(r.Context(), p.ID, status)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleCompleteRequest(w http.ResponseWriter, r *http.Request) {
	var fb market.Feedback
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &fb); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	req, err := a.svc.Requests.Complete(r.Context(), p.ID, chi.URLParam(r, "id"), fb)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	fields := map[string]any{
		"request_id":  req.ID,
		"donation_id": req.DonationID,
	}
	if req.Rating != nil {
		fields["rating"] = *req.Rating
	}
	a.audit(r.Context(), audit.EventRequestCompleted, fields)
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleNGOImpact(w http.ResponseWriter, r *http.Request) {
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	imp, err := a.svc.Stats.NGOImpact(r.Context(), p.ID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (a *API) handleNGOActivity(w http.ResponseWriter, r *http.Request) {
	p, ok := a.ngoProfile(w, r)
	if !ok {
		return
	}
	days, err := a.svc.Stats.NGOActivity(r.Context(), p.ID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": days})
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/market"
)

func (a *API) handlePendingNGOs(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Registry.Pending(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleVerifyNGO(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Registry.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventNGOVerified, map[string]any{
		"ngo_id":       p.ID,
		"organization": p.OrganizationName,
	})
	p.Verified = true
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleRejectNGO(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Registry.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventNGORejected, map[string]any{
		"ngo_id":       p.ID,
		"organization": p.OrganizationName,
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": p.ID, "deleted": true})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	role := market.Role(r.URL.Query().Get("role"))
	items, err := a.svc.Identity.Users(r.Context(), role)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleSystemActivity(w http.ResponseWriter, r *http.Request) {
	days, err := a.svc.Stats.SystemActivity(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": days})
}

func (a *API) handleStatusBreakdown(w http.ResponseWriter, r *http.Request) {
	counts, err := a.svc.Stats.StatusBreakdown(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *API) handleSystemFoodTypes(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Stats.FoodTypes(r.Context(), "")
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (a *API) handleRecentDonations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 15, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.svc.Stats.RecentDonations(r.Context(), limit)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

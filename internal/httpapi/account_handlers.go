package httpapi

import (
	"net/http"
	"time"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/market"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      market.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req market.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.svc.Identity.Register(r.Context(), req)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.EventUserRegistered, map[string]any{
		"user_id": u.ID,
		"role":    string(u.Role),
	})
	w.Header().Set("Location", "/v1/me")
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.svc.Identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	token, expiresAt, err := a.issuer.Issue(u.ID, string(u.Role))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	a.audit(r.Context(), audit.EventUserLogin, map[string]any{
		"user_id":    u.ID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: u})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.Identity.User(r.Context(), currentUser(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := a.svc.Identity.Badges(r.Context(), currentUser(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(badges)})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

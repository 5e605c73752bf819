package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/auth"
	"foodbridge.org/internal/market"
	"foodbridge.org/internal/obs"
	"foodbridge.org/internal/stream"
)

const serviceName = "foodbridge-api"

// ReadyProbe is a simple readiness check (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP layer over the marketplace services.
type API struct {
	router     chi.Router
	readyProbe readinessChecker
	version    string
	svc        *market.Services
	issuer     *auth.Issuer
	stream     *stream.Stream

	corsOrigins []string
	rateBurst   int
	ratePerSec  float64
	maxBody     int64
	now         func() time.Time
}

// Option configures the API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket. A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// WithCORSOrigins lists browser origins allowed to call the API. Without
// any, only localhost origins are allowed.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithStream enables the live donation feed over Server-Sent Events.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.stream = s }
}

func New(rp readinessChecker, version string, svc *market.Services, issuer *auth.Issuer, opts ...Option) *API {
	a := &API{
		readyProbe: rp,
		version:    version,
		svc:        svc,
		issuer:     issuer,
		rateBurst:  40,
		ratePerSec: 20,
		maxBody:    2 << 20,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		RequestID,
		LoggingJSON,
		SecurityHeaders,
		CORS(a.corsOrigins...),
		RateLimit(a.ratePerSec, a.rateBurst),
		MaxBodyBytes(a.maxBody),
		obs.Instrument,
		a.authenticate,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready/info
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)
		r.Get("/stats/summary", a.handleSummary)
		r.Get("/stats/leaderboard", a.handleLeaderboard)
		r.Get("/stories", a.handleStories)
		r.Get("/feed", a.handleFeed)
		r.Get("/feed/stream", a.Stream)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole())
			r.Get("/me", a.handleMe)
			r.Get("/me/badges", a.handleBadges)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(string(market.RoleDonor)))
			r.Post("/donations", a.handleCreateDonation)
			r.Get("/donations", a.handleListDonations)
			r.Get("/donations/{id}/requests", a.handleDonationRequests)
			r.Post("/requests/{id}/accept", a.handleAcceptRequest)
			r.Post("/requests/{id}/reject", a.handleRejectRequest)
			r.Get("/donor/impact", a.handleDonorImpact)
			r.Get("/donor/activity", a.handleDonorActivity)
			r.Get("/donor/food-types", a.handleDonorFoodTypes)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(string(market.RoleNGO)))
			r.Post("/ngo/profile", a.handleCreateProfile)
			r.Get("/ngo/profile", a.handleGetProfile)
			r.Get("/ngo/donations", a.handleBrowse)
			r.Post("/donations/{id}/requests", a.handleCreateRequest)
			r.Get("/ngo/requests", a.handleNGORequests)
			r.Post("/requests/{id}/complete", a.handleCompleteRequest)
			r.Get("/ngo/impact", a.handleNGOImpact)
			r.Get("/ngo/activity", a.handleNGOActivity)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(string(market.RoleAdmin)))
			r.Get("/overview", a.handleSummary)
			r.Get("/ngos/pending", a.handlePendingNGOs)
			r.Post("/ngos/{id}/verify", a.handleVerifyNGO)
			r.Post("/ngos/{id}/reject", a.handleRejectNGO)
			r.Get("/users", a.handleUsers)
			r.Get("/donations/recent", a.handleRecentDonations)
			r.Get("/activity", a.handleSystemActivity)
			r.Get("/status-breakdown", a.handleStatusBreakdown)
			r.Get("/food-types", a.handleSystemFoodTypes)
		})
	})
	return r
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler {
	return a.router
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       a.now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"food_types": market.FoodTypes,
	})
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Error("audit log failed", err, map[string]any{"event": event})
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/obs"
	"github.com/bredsky212/Logiq212/internal/perms"
	"github.com/bredsky212/Logiq212/internal/servicetoken"
	"github.com/bredsky212/Logiq212/internal/stream"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

const serviceName = "logiqd"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe checks the backing store.
type ReadyProbe struct {
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Ping == nil {
		return nil
	}
	return rp.Ping(ctx)
}

// Services are the domain operations exposed over HTTP.
type Services struct {
	Gate        *perms.Gate
	Overrides   *perms.OverrideService
	Security    *perms.SecurityService
	Suspensions *suspension.Service
	Audit       *audit.Recorder
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        Services
	tokens     *servicetoken.Signer
	stream     *stream.Hub
	readyProbe readinessChecker
	version    string
	rateBurst  int
	ratePerSec float64
}

// Option configures an API.
type Option func(*API)

// WithTokens enables bearer-token authentication on /v1 routes.
func WithTokens(s *servicetoken.Signer) Option {
	return func(a *API) { a.tokens = s }
}

// WithStream enables the audit event stream.
func WithStream(h *stream.Hub) Option {
	return func(a *API) { a.stream = h }
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

func New(svc Services, rp readinessChecker, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
		rateBurst:  50,
		ratePerSec: 25,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.HandleFunc("/v1/features", a.handleFeatures)
	a.mux.HandleFunc("/v1/communities/", a.handleCommunityScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

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
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	resp := map[string]any{
		"features": features.All(),
		"modules":  features.Modules(),
	}
	if a.svc.Suspensions != nil {
		var durations []string
		for _, d := range a.svc.Suspensions.Durations() {
			durations = append(durations, d.String())
		}
		resp["suspension_durations"] = durations
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

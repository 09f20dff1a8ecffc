package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"greenroom.fm/internal/audit"
	"greenroom.fm/internal/auth"
	"greenroom.fm/internal/config"
	"greenroom.fm/internal/ledger"
	"greenroom.fm/internal/obs"
	"greenroom.fm/internal/stream"
)

// ReadyProbe отвечает, готов ли сервис принимать трафик.
type ReadyProbe interface {
	IsReady() bool
}

// API инкапсулирует HTTP-хэндлеры маркетплейса.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        *ledger.Service
	stream     *stream.Stream
	cfg        *config.Config

	// Параметры rate limit вынесены в поля, чтобы тесты могли их ослабить.
	rateBurst  int
	ratePerSec float64
}

// New собирает API поверх ledger-сервиса. Нулевой cfg означает
// конфигурацию по умолчанию.
func New(rp ReadyProbe, version string, svc *ledger.Service, st *stream.Stream, cfg *config.Config) *API {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		stream:     st,
		cfg:        cfg,
		rateBurst:  cfg.RateLimitBurst,
		ratePerSec: cfg.RateLimitRPS,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/artists", a.handleArtistsCollection)
	a.mux.HandleFunc("/v1/artists/", a.handleArtistResource)
	a.mux.Handle("/v1/purchases", RequireRole(auth.RoleOps)(http.HandlerFunc(a.handlePurchases)))
	a.mux.HandleFunc("/v1/proposals", a.handleProposalsCollection)
	a.mux.HandleFunc("/v1/proposals/", a.handleProposalResource)
	a.mux.HandleFunc("/v1/revenue/", a.handleRevenueResource)
	a.mux.HandleFunc("/v1/stream", a.Stream)

	// Явный 404 на корень, чтобы не отдавать список маршрутов.
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает полный стек middleware поверх mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.readyProbe != nil && a.readyProbe.IsReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":     "greenroom-api",
		"version":  a.version,
		"currency": a.svc.Currency(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// publish отправляет событие в SSE-поток, если он подключён.
func (a *API) publish(evt stream.Event) {
	if a.stream != nil {
		a.stream.Publish(evt)
	}
}

func (a *API) audit(ctx context.Context, event, resourceType string, resourceID uint64, meta map[string]string) {
	fields := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

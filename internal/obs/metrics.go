package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service is ready to take traffic.",
	})
)

// Доменные счётчики маркетплейса.
var (
	tokenPurchasesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_purchases_total",
		Help: "Confirmed token purchases.",
	})
	votesCastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "votes_cast_total",
		Help: "Ballots accepted (including revotes).",
	})
	proposalsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proposals_created_total",
		Help: "Governance proposals opened.",
	})
	revenueRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revenue_recorded_total",
		Help: "Revenue events booked.",
	})
	revenueDistributedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revenue_distributed_total",
		Help: "Revenue events distributed.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, serviceReady,
		tokenPurchasesTotal, votesCastTotal, proposalsCreatedTotal,
		revenueRecordedTotal, revenueDistributedTotal,
	)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady выставляет готовность сервиса (readyz + метрика).
func SetReady(ready bool) {
	if ready {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

func IncTokenPurchase()      { tokenPurchasesTotal.Inc() }
func IncVoteCast()           { votesCastTotal.Inc() }
func IncProposalCreated()    { proposalsCreatedTotal.Inc() }
func IncRevenueRecorded()    { revenueRecordedTotal.Inc() }
func IncRevenueDistributed() { revenueDistributedTotal.Inc() }

// CanonicalPath collapses numeric id segments so metric labels stay
// bounded: /v1/artists/42/holders -> /v1/artists/:id/holders.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		if isDigits(seg) {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush пробрасывается для SSE-хэндлера за цепочкой middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

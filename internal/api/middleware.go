package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rayyanshah04/FlexPay/internal/logging"
)

// PrincipalHeader carries the account id the gateway has already authenticated.
const PrincipalHeader = "X-Account-ID"

var errMissingPrincipal = errors.New("missing or invalid " + PrincipalHeader)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrumentMiddleware labels metrics with the route template, not the raw path.
func instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

type principalHandler func(http.ResponseWriter, *http.Request, *logging.LogData, int64) error

// withPrincipal rejects requests without a positive account id in PrincipalHeader.
func withPrincipal(next principalHandler) func(http.ResponseWriter, *http.Request, *logging.LogData) error {
	return func(w http.ResponseWriter, r *http.Request, logData *logging.LogData) error {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(PrincipalHeader)), 10, 64)
		if err != nil || id <= 0 {
			logData.AddData("code", "UNAUTHENTICATED")
			respondWithError(w, http.StatusUnauthorized, "UNAUTHENTICATED", errMissingPrincipal.Error())
			return nil
		}
		logData.AddData("account_id", id)
		return next(w, r, logData, id)
	}
}

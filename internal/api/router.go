package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rayyanshah04/FlexPay/internal/logging"
)

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrumentMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", logging.LoggingWrapper("CreateAccount", h.log, h.CreateAccount)).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts/{id}", logging.LoggingWrapper("GetAccount", h.log, withPrincipal(h.GetAccount))).Methods(http.MethodGet)
	apiV1.HandleFunc("/balance", logging.LoggingWrapper("GetBalance", h.log, withPrincipal(h.GetBalance))).Methods(http.MethodGet)
	apiV1.HandleFunc("/transfers", logging.LoggingWrapper("CreateTransfer", h.log, withPrincipal(h.CreateTransfer))).Methods(http.MethodPost)
	apiV1.HandleFunc("/coupons/redeem", logging.LoggingWrapper("RedeemCoupon", h.log, withPrincipal(h.RedeemCoupon))).Methods(http.MethodPost)
	apiV1.HandleFunc("/ledger", logging.LoggingWrapper("ListLedger", h.log, withPrincipal(h.ListLedger))).Methods(http.MethodGet)

	return r
}

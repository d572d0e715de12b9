package service

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Transfers by outcome",
		},
		[]string{"outcome"},
	)

	redemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_redemptions_total",
			Help: "Coupon redemptions by outcome",
		},
		[]string{"outcome"},
	)

	referenceCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_reference_collisions_total",
			Help: "Reference ids rejected because they were already persisted",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_notifications_total",
			Help: "Post-commit notifications by outcome",
		},
		[]string{"outcome"},
	)
)

// outcome is the metric label for err: "ok", the lower-cased error code, or "error".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return strings.ToLower(de.Code)
	}
	return "error"
}

// ReferenceCollision is passed to the reference generator as its collision hook.
func ReferenceCollision() {
	referenceCollisions.Inc()
}

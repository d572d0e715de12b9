// Package notify delivers best-effort push notifications. Nothing here may
// affect the outcome of a ledger operation.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

var ErrNoRecipient = errors.New("notification has no recipient")

// Notification is the push payload handed to the delivery channel.
type Notification struct {
	Recipient string            `json:"recipient"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// TransferReceived builds the push sent to the receiver of a committed transfer.
func TransferReceived(deviceToken string, referenceID string, amount domain.Amount, senderName string) Notification {
	return Notification{
		Recipient: deviceToken,
		Title:     "Money Received!",
		Body:      fmt.Sprintf("You received Rs. %s from %s", amount, senderName),
		Data: map[string]string{
			"type":         "transaction",
			"reference_id": referenceID,
			"amount":       amount.String(),
			"sender":       senderName,
		},
	}
}

// LogNotifier stands in when no broker is configured.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}
	n.log.WithFields(logrus.Fields{
		"component": "notifier",
		"mode":      "fallback",
		"title":     msg.Title,
	}).Warn("Notification publish skipped")
	return nil
}

func (n *LogNotifier) Close() error { return nil }

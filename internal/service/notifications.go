package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/notify"
)

// Dispatcher sends notifications off the request path, after the ledger change
// has committed. Delivery errors are logged and counted, never returned.
type Dispatcher struct {
	notifier notify.Notifier
	timeout  time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(notifier notify.Notifier, timeout time.Duration, log logrus.FieldLogger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, log: log}
}

// Dispatch returns immediately. The send outlives ctx's cancellation but not the timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, n notify.Notification, fields logrus.Fields) {
	if d == nil || d.notifier == nil {
		return
	}
	log := d.log.WithFields(fields)
	if n.Recipient == "" {
		notificationsTotal.WithLabelValues("skipped").Inc()
		log.Warn("Receiver has no device token; notification skipped")
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		notificationsTotal.WithLabelValues("dropped").Inc()
		log.Warn("Dispatcher draining; notification dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				notificationsTotal.WithLabelValues("failed").Inc()
				log.WithField("panic", r).Error("Notification send panicked")
			}
		}()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(sendCtx, n); err != nil {
			notificationsTotal.WithLabelValues("failed").Inc()
			log.WithError(err).Error("Notification send failed")
			return
		}
		notificationsTotal.WithLabelValues("sent").Inc()
	}()
}

// Drain stops accepting notifications and waits for in-flight sends.
// Dispatches that arrive after Drain starts are dropped.
func (d *Dispatcher) Drain() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

package service

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

// logOutcome logs successes at info, rejections at warn and store faults at error.
func logOutcome(entry *logrus.Entry, msg string, err error) {
	if err == nil {
		entry.Info(msg)
		return
	}

	var de *domain.Error
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable), !errors.As(err, &de):
		entry.WithError(err).Errorf("%s failed", msg)
	default:
		entry.WithField("code", de.Code).Warnf("%s rejected", msg)
	}
}

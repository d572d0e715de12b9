package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/notify"
	"github.com/rayyanshah04/FlexPay/internal/reference"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

// errReplayed aborts a unit of work that found its idempotency key already completed.
var errReplayed = errors.New("idempotency key already completed")

type TransferService struct {
	repo          store.Repository
	refs          *reference.Generator
	notifications *Dispatcher
	log           logrus.FieldLogger
	settings
}

func NewTransferService(repo store.Repository, refs *reference.Generator, notifications *Dispatcher, log logrus.FieldLogger, opts ...Option) *TransferService {
	return &TransferService{
		repo:          repo,
		refs:          refs,
		notifications: notifications,
		log:           log,
		settings:      newSettings(opts),
	}
}

// Transfer moves req.Amount from the sender to the receiver as one atomic unit
// of work and returns the sender's new balance. Validation runs in this order:
// amount, receiver, self-transfer, sender funds. Funds are checked again by
// the conditional debit inside the unit of work.
func (s *TransferService) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	result, err := s.transfer(ctx, req)

	label := outcome(err)
	if result != nil && result.Replayed {
		label = "replayed"
	}
	transfersTotal.WithLabelValues(label).Inc()

	fields := logrus.Fields{
		"sender_id": req.SenderID,
		"amount":    req.Amount.String(),
	}
	if result != nil {
		fields["reference_id"] = result.ReferenceID
		fields["replayed"] = result.Replayed
	}
	logOutcome(s.log.WithFields(fields), "Transfer", err)

	return result, err
}

func (s *TransferService) transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	fingerprint := requestFingerprint(req)
	if req.IdempotencyKey != "" {
		record, err := s.repo.FindIdempotencyRecord(ctx, req.SenderID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil && len(record.ResponseBody) > 0 {
			return replay(record, fingerprint)
		}
	}

	receiver, err := s.resolveReceiver(ctx, req)
	if err != nil {
		return nil, err
	}
	if receiver.ID == req.SenderID {
		return nil, domain.ErrSelfTransferNotAllowed
	}

	sender, err := s.repo.GetAccount(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	if sender.Balance < req.Amount {
		return nil, domain.ErrInsufficientFunds
	}

	for attempt := 0; attempt < s.refs.MaxAttempts(); attempt++ {
		referenceID, err := s.refs.Generate(ctx)
		if err != nil {
			return nil, err
		}

		result, err := s.commit(ctx, req, fingerprint, receiver.ID, referenceID)
		if errors.Is(err, store.ErrReferenceConflict) {
			ReferenceCollision()
			s.log.WithField("reference_id", referenceID).Warn("Reference taken at insert; retrying transfer")
			continue
		}
		if err != nil {
			return nil, err
		}

		if !result.Replayed {
			s.notifications.Dispatch(ctx,
				notify.TransferReceived(receiver.DeviceToken, result.ReferenceID, result.Amount, result.SenderName),
				logrus.Fields{"reference_id": result.ReferenceID, "receiver_id": receiver.ID},
			)
		}
		return result, nil
	}
	return nil, domain.ErrReferenceCollisionExhausted
}

func (s *TransferService) commit(ctx context.Context, req domain.TransferRequest, fingerprint string, receiverID int64, referenceID string) (*domain.TransferResult, error) {
	var result *domain.TransferResult

	err := s.repo.ExecTx(ctx, func(tx store.Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.ReserveIdempotencyKey(ctx, req.SenderID, req.IdempotencyKey, fingerprint)
			if err != nil {
				return err
			}
			if existing != nil {
				replayed, err := replay(existing, fingerprint)
				if err != nil {
					return err
				}
				result = replayed
				return errReplayed
			}
		}

		locked, err := tx.LockAccounts(ctx, req.SenderID, receiverID)
		if err != nil {
			return err
		}

		newBalance, err := tx.Debit(ctx, req.SenderID, req.Amount)
		if err != nil {
			return err
		}
		if _, err := tx.Credit(ctx, receiverID, req.Amount); err != nil {
			return err
		}

		if err := tx.WriteTransferPair(ctx, domain.TransferPair{
			ReferenceID: referenceID,
			SenderID:    req.SenderID,
			ReceiverID:  receiverID,
			Amount:      req.Amount,
			Note:        req.Note,
			Timestamp:   s.now(),
		}); err != nil {
			return err
		}

		result = &domain.TransferResult{
			ReferenceID:  referenceID,
			Amount:       req.Amount,
			SenderName:   locked[req.SenderID].Name,
			ReceiverName: locked[receiverID].Name,
			NewBalance:   newBalance,
		}

		if req.IdempotencyKey != "" {
			body, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("encode transfer result: %w", err)
			}
			return tx.CompleteIdempotencyKey(ctx, req.SenderID, req.IdempotencyKey, body)
		}
		return nil
	})

	if errors.Is(err, errReplayed) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveReceiver looks the receiver up by id, falling back to phone number.
func (s *TransferService) resolveReceiver(ctx context.Context, req domain.TransferRequest) (*domain.Account, error) {
	var (
		receiver *domain.Account
		err      error
	)
	switch phone := strings.TrimSpace(req.ReceiverPhone); {
	case req.ReceiverID > 0:
		receiver, err = s.repo.GetAccount(ctx, req.ReceiverID)
	case phone != "":
		receiver, err = s.repo.FindAccountByPhone(ctx, phone)
	default:
		return nil, domain.ErrReceiverNotFound
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, domain.ErrReceiverNotFound
	}
	return receiver, err
}

func replay(record *domain.IdempotencyRecord, fingerprint string) (*domain.TransferResult, error) {
	if record.RequestHash != fingerprint {
		return nil, domain.ErrIdempotencyMismatch
	}
	var result domain.TransferResult
	if err := json.Unmarshal(record.ResponseBody, &result); err != nil {
		return nil, fmt.Errorf("decode stored transfer result: %w", err)
	}
	result.Replayed = true
	return &result, nil
}

// requestFingerprint identifies the economic content of a transfer request.
func requestFingerprint(req domain.TransferRequest) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%d|%s|%d|%s",
		req.SenderID, req.ReceiverID, strings.TrimSpace(req.ReceiverPhone), int64(req.Amount), req.Note))
	return hex.EncodeToString(sum[:])
}

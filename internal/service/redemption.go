package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/reference"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

type RedemptionService struct {
	repo store.Repository
	refs *reference.Generator
	log  logrus.FieldLogger
	settings
}

func NewRedemptionService(repo store.Repository, refs *reference.Generator, log logrus.FieldLogger, opts ...Option) *RedemptionService {
	return &RedemptionService{
		repo:     repo,
		refs:     refs,
		log:      log,
		settings: newSettings(opts),
	}
}

// NormalizeCouponCode is the only form in which coupon codes are stored or compared.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem credits the coupon amount to the account once. A second redemption
// of the same coupon by the same account fails with ErrAlreadyRedeemed.
func (s *RedemptionService) Redeem(ctx context.Context, accountID int64, code string) (*domain.RedemptionResult, error) {
	code = NormalizeCouponCode(code)
	result, err := s.redeem(ctx, accountID, code)

	redemptionsTotal.WithLabelValues(outcome(err)).Inc()
	fields := logrus.Fields{"account_id": accountID, "coupon_code": code}
	if result != nil {
		fields["reference_id"] = result.ReferenceID
		fields["amount"] = result.Amount.String()
	}
	logOutcome(s.log.WithFields(fields), "Redemption", err)

	return result, err
}

func (s *RedemptionService) redeem(ctx context.Context, accountID int64, code string) (*domain.RedemptionResult, error) {
	if code == "" {
		return nil, domain.ErrCouponNotFound
	}

	for attempt := 0; attempt < s.refs.MaxAttempts(); attempt++ {
		referenceID, err := s.refs.Generate(ctx)
		if err != nil {
			return nil, err
		}

		result, err := s.commit(ctx, accountID, code, referenceID)
		if errors.Is(err, store.ErrReferenceConflict) {
			ReferenceCollision()
			s.log.WithField("reference_id", referenceID).Warn("Reference taken at insert; retrying redemption")
			continue
		}
		return result, err
	}
	return nil, domain.ErrReferenceCollisionExhausted
}

func (s *RedemptionService) commit(ctx context.Context, accountID int64, code, referenceID string) (*domain.RedemptionResult, error) {
	var result *domain.RedemptionResult

	err := s.repo.ExecTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		previous := locked[accountID].Balance

		coupon, err := tx.GetCoupon(ctx, code)
		if err != nil {
			return err
		}

		if err := tx.WriteRedemption(ctx, domain.Redemption{
			ReferenceID: referenceID,
			AccountID:   accountID,
			CouponCode:  coupon.Code,
			Amount:      coupon.Amount,
			Note:        coupon.Code,
			Timestamp:   s.now(),
		}); err != nil {
			return err
		}

		newBalance, err := tx.Credit(ctx, accountID, coupon.Amount)
		if err != nil {
			return err
		}

		result = &domain.RedemptionResult{
			ReferenceID:     referenceID,
			CouponCode:      coupon.Code,
			Amount:          coupon.Amount,
			PreviousBalance: previous,
			NewBalance:      newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

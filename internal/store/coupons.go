package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

// GetCoupon reads a coupon under a share lock, so its amount cannot change
// before the redemption commits.
func (t *pgTx) GetCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	var (
		coupon domain.Coupon
		amount int64
	)
	err := t.tx.QueryRow(ctx,
		"SELECT code, amount FROM coupons WHERE code = $1 FOR SHARE",
		code,
	).Scan(&coupon.Code, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, classify("get coupon", err)
	}
	coupon.Amount = domain.Amount(amount)
	return &coupon, nil
}

package store

import (
	"context"
	"errors"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

// ErrReferenceConflict means a ledger insert hit an already persisted reference id.
// The unit of work is lost; the caller retries with a fresh id.
var ErrReferenceConflict = errors.New("reference id already in use")

// EntryFilter pages through an account's ledger, newest first.
// BeforeID of zero starts at the most recent entry. A non-empty ReferenceID
// keeps only the entries of that transfer or redemption.
type EntryFilter struct {
	Limit       int
	BeforeID    int64
	ReferenceID string
}

// Repository is the durable store behind the ledger.
type Repository interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetBalance(ctx context.Context, id int64) (domain.Amount, error)
	FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error)
	CreateAccount(ctx context.Context, in domain.AccountCreate) (*domain.Account, error)

	// ReferenceExists reports whether any ledger entry carries referenceID.
	ReferenceExists(ctx context.Context, referenceID string) (bool, error)
	ListEntries(ctx context.Context, accountID int64, filter EntryFilter) ([]domain.EntryView, error)

	// FindIdempotencyRecord returns nil when the key was never committed.
	FindIdempotencyRecord(ctx context.Context, accountID int64, key string) (*domain.IdempotencyRecord, error)

	// ExecTx runs fn in one atomic unit of work. Any error from fn rolls everything back.
	ExecTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of mutations that only exist inside a unit of work.
type Tx interface {
	// LockAccounts row-locks the accounts in ascending id order and returns them by id.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error)
	// Debit fails with ErrInsufficientFunds instead of going below zero.
	Debit(ctx context.Context, accountID int64, amount domain.Amount) (domain.Amount, error)
	Credit(ctx context.Context, accountID int64, amount domain.Amount) (domain.Amount, error)

	WriteTransferPair(ctx context.Context, pair domain.TransferPair) error
	// WriteRedemption fails with ErrAlreadyRedeemed when the account already redeemed the coupon.
	WriteRedemption(ctx context.Context, r domain.Redemption) error
	GetCoupon(ctx context.Context, code string) (*domain.Coupon, error)

	// ReserveIdempotencyKey claims the key, or returns the record that already holds it.
	ReserveIdempotencyKey(ctx context.Context, accountID int64, key, requestHash string) (*domain.IdempotencyRecord, error)
	CompleteIdempotencyKey(ctx context.Context, accountID int64, key string, responseBody []byte) error
}

package service

import (
	"context"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/reference"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

// Cursor pages through a ledger. The zero value is the first page.
// ReferenceID narrows the page to one transfer or redemption.
type Cursor struct {
	Limit       int
	BeforeID    int64
	ReferenceID string
}

type HistoryService struct {
	repo store.Repository
	settings
}

func NewHistoryService(repo store.Repository, opts ...Option) *HistoryService {
	return &HistoryService{repo: repo, settings: newSettings(opts)}
}

// List returns the account's entries most recent first, and the cursor of the
// next page when this one is full.
func (s *HistoryService) List(ctx context.Context, accountID int64, cursor Cursor) ([]domain.EntryView, *Cursor, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, nil, err
	}

	limit := cursor.Limit
	if limit <= 0 {
		limit = store.DefaultEntryLimit
	}
	if limit > store.MaxEntryLimit {
		limit = store.MaxEntryLimit
	}

	referenceID := reference.Normalize(cursor.ReferenceID)
	entries, err := s.repo.ListEntries(ctx, accountID, store.EntryFilter{
		Limit:       limit,
		BeforeID:    cursor.BeforeID,
		ReferenceID: referenceID,
	})
	if err != nil {
		return nil, nil, err
	}

	for i := range entries {
		if entries[i].Kind == domain.KindRedeemed {
			entries[i].CounterpartyName = "Coupon: " + entries[i].CouponCode
		}
		entries[i].Timestamp = entries[i].Timestamp.In(s.location)
	}

	var next *Cursor
	if len(entries) == limit {
		next = &Cursor{Limit: limit, BeforeID: entries[len(entries)-1].EntryID, ReferenceID: referenceID}
	}
	return entries, next, nil
}

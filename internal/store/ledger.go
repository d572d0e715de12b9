package store

import (
	"context"
	"fmt"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

const (
	DefaultEntryLimit = 50
	MaxEntryLimit     = 200
)

func (r *PostgresRepository) ReferenceExists(ctx context.Context, referenceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE reference_id = $1 AND kind <> 'received')`,
		referenceID,
	).Scan(&exists)
	if err != nil {
		return false, classify("reference lookup", err)
	}
	return exists, nil
}

// ListEntries returns an account's entries, newest first, joined with the
// counterparty account's name. Redemption entries carry no counterparty name.
func (r *PostgresRepository) ListEntries(ctx context.Context, accountID int64, filter EntryFilter) ([]domain.EntryView, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultEntryLimit
	}
	if limit > MaxEntryLimit {
		limit = MaxEntryLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT e.entry_id, e.reference_id, e.account_id, e.kind,
		        COALESCE(e.counterparty_account_id, 0), COALESCE(e.coupon_code, ''),
		        e.amount, e.status, e.note, e.created_at, COALESCE(c.name, '')
		 FROM ledger_entries e
		 LEFT JOIN accounts c ON c.id = e.counterparty_account_id
		 WHERE e.account_id = $1
		   AND ($2::bigint = 0 OR e.entry_id < $2::bigint)
		   AND ($4::text = '' OR e.reference_id = $4::text)
		 ORDER BY e.entry_id DESC
		 LIMIT $3`,
		accountID, filter.BeforeID, limit, filter.ReferenceID)
	if err != nil {
		return nil, classify("list entries", err)
	}
	defer rows.Close()

	entries := make([]domain.EntryView, 0, limit)
	for rows.Next() {
		var (
			view   domain.EntryView
			amount int64
		)
		if err := rows.Scan(
			&view.EntryID, &view.ReferenceID, &view.AccountID, &view.Kind,
			&view.CounterpartyAccountID, &view.CouponCode,
			&amount, &view.Status, &view.Note, &view.Timestamp, &view.CounterpartyName,
		); err != nil {
			return nil, classify("scan entry", err)
		}
		view.Amount = domain.Amount(amount)
		entries = append(entries, view)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list entries", err)
	}
	return entries, nil
}

// WriteTransferPair inserts the sent and received legs in a single statement.
func (t *pgTx) WriteTransferPair(ctx context.Context, pair domain.TransferPair) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries
		     (reference_id, account_id, kind, counterparty_account_id, amount, status, note, created_at)
		 VALUES ($1, $2, 'sent', $3, $4, $5, $6, $7),
		        ($1, $3, 'received', $2, $4, $5, $6, $7)`,
		pair.ReferenceID, pair.SenderID, pair.ReceiverID, int64(pair.Amount),
		string(domain.StatusCompleted), pair.Note, pair.Timestamp,
	)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == constraintReference {
			return fmt.Errorf("write transfer %s: %w", pair.ReferenceID, ErrReferenceConflict)
		}
		return classify("write transfer pair", err)
	}
	return nil
}

// WriteRedemption relies on the redemption unique index. A conflict on it
// inserts nothing, which is how a repeated redemption is detected.
func (t *pgTx) WriteRedemption(ctx context.Context, r domain.Redemption) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries
		     (reference_id, account_id, kind, coupon_code, amount, status, note, created_at)
		 VALUES ($1, $2, 'redeemed', $3, $4, $5, $6, $7)
		 ON CONFLICT (account_id, coupon_code) WHERE kind = 'redeemed' DO NOTHING`,
		r.ReferenceID, r.AccountID, r.CouponCode, int64(r.Amount),
		string(domain.StatusCompleted), r.Note, r.Timestamp,
	)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok {
			switch name {
			case constraintReference:
				return fmt.Errorf("write redemption %s: %w", r.ReferenceID, ErrReferenceConflict)
			case constraintRedemption:
				return domain.ErrAlreadyRedeemed
			}
		}
		return classify("write redemption", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyRedeemed
	}
	return nil
}

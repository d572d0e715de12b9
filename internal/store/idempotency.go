package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

func (r *PostgresRepository) FindIdempotencyRecord(ctx context.Context, accountID int64, key string) (*domain.IdempotencyRecord, error) {
	return findIdempotencyRecord(ctx, r.db, accountID, key)
}

func findIdempotencyRecord(ctx context.Context, q querier, accountID int64, key string) (*domain.IdempotencyRecord, error) {
	record := domain.IdempotencyRecord{Key: key}
	err := q.QueryRow(ctx,
		"SELECT request_hash, response_body FROM idempotency_keys WHERE account_id = $1 AND key = $2",
		accountID, key,
	).Scan(&record.RequestHash, &record.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("idempotency lookup", err)
	}
	return &record, nil
}

// ReserveIdempotencyKey inserts the key inside the caller's transaction. A
// concurrent holder of the same key blocks the insert until it commits or rolls
// back, so at most one unit of work ever completes a given key.
func (t *pgTx) ReserveIdempotencyKey(ctx context.Context, accountID int64, key, requestHash string) (*domain.IdempotencyRecord, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO idempotency_keys (account_id, key, request_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, key) DO NOTHING`,
		accountID, key, requestHash,
	)
	if err != nil {
		return nil, classify("idempotency reservation", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	record, err := findIdempotencyRecord(ctx, t.tx, accountID, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Holder rolled back between our insert and read; treat as busy.
		return nil, classify("idempotency reservation", errors.New("key released concurrently"))
	}
	return record, nil
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, accountID int64, key string, responseBody []byte) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE idempotency_keys SET response_body = $3 WHERE account_id = $1 AND key = $2",
		accountID, key, responseBody,
	)
	return classify("idempotency update", err)
}

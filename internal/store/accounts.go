package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

const accountColumns = `id, name, COALESCE(phone_number, ''), COALESCE(device_token, ''), balance, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		balance int64
	)
	if err := row.Scan(&account.ID, &account.Name, &account.PhoneNumber, &account.DeviceToken, &balance, &account.CreatedAt); err != nil {
		return nil, err
	}
	account.Balance = domain.Amount(balance)
	return &account, nil
}

func getAccount(ctx context.Context, q querier, id int64, lock bool) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	account, err := scanAccount(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify("get account", err)
	}
	return account, nil
}

// GetAccount retrieves a single account by ID.
func (r *PostgresRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return getAccount(ctx, r.db, id, false)
}

func (r *PostgresRepository) GetBalance(ctx context.Context, id int64) (domain.Amount, error) {
	var balance int64
	err := r.db.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1", id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, classify("get balance", err)
	}
	return domain.Amount(balance), nil
}

func (r *PostgresRepository) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE phone_number = $1`,
		strings.TrimSpace(phone)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify("find account by phone", err)
	}
	return account, nil
}

// CreateAccount opens an account with a zero balance.
func (r *PostgresRepository) CreateAccount(ctx context.Context, in domain.AccountCreate) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx,
		`INSERT INTO accounts (name, phone_number, device_token, balance)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), 0)
		 RETURNING `+accountColumns,
		strings.TrimSpace(in.Name), strings.TrimSpace(in.PhoneNumber), strings.TrimSpace(in.DeviceToken)))
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == constraintPhoneNumber {
			return nil, domain.ErrDuplicatePhoneNumber
		}
		return nil, classify("create account", err)
	}
	return account, nil
}

// LockAccounts acquires the row locks one by one in ascending id order.
// Every unit of work locks this way, so two transfers over the same pair cannot deadlock.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	locked := make(map[int64]*domain.Account, len(ordered))
	for _, id := range ordered {
		account, err := getAccount(ctx, t.tx, id, true)
		if err != nil {
			return nil, fmt.Errorf("lock account %d: %w", id, err)
		}
		locked[id] = account
	}
	return locked, nil
}

// Debit decrements the balance only if it covers amount. The check and the
// write are one statement, so no concurrent debit can interleave.
func (t *pgTx) Debit(ctx context.Context, accountID int64, amount domain.Amount) (domain.Amount, error) {
	var balance int64
	err := t.tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1 RETURNING balance",
		int64(amount), accountID,
	).Scan(&balance)
	if err == nil {
		return domain.Amount(balance), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, classify("debit", err)
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists); err != nil {
		return 0, classify("debit", err)
	}
	if !exists {
		return 0, domain.ErrAccountNotFound
	}
	return 0, domain.ErrInsufficientFunds
}

func (t *pgTx) Credit(ctx context.Context, accountID int64, amount domain.Amount) (domain.Amount, error) {
	var balance int64
	err := t.tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance",
		int64(amount), accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, classify("credit", err)
	}
	return domain.Amount(balance), nil
}

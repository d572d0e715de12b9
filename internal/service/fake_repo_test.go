package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

type idemKey struct {
	accountID int64
	key       string
}

type memState struct {
	accounts    map[int64]domain.Account
	coupons     map[string]domain.Coupon
	entries     []domain.LedgerEntry
	idem        map[idemKey]domain.IdempotencyRecord
	nextEntryID int64
}

func (s *memState) clone() *memState {
	return &memState{
		accounts:    maps.Clone(s.accounts),
		coupons:     maps.Clone(s.coupons),
		entries:     slices.Clone(s.entries),
		idem:        maps.Clone(s.idem),
		nextEntryID: s.nextEntryID,
	}
}

// memRepo is an in-memory store.Repository. Units of work run one at a time
// against a copy of the state, which replaces the state only on success.
type memRepo struct {
	mu            sync.Mutex
	state         *memState
	nextAccountID int64

	// failOn names a Tx method that returns failErr instead of running.
	failOn  string
	failErr error
	// conflicts is the number of ledger writes that report a reference conflict.
	conflicts    int
	referenceErr error
}

var _ store.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		state: &memState{
			accounts: map[int64]domain.Account{},
			coupons:  map[string]domain.Coupon{},
			idem:     map[idemKey]domain.IdempotencyRecord{},
		},
	}
}

func (r *memRepo) addAccount(name, phone, token string, balance domain.Amount) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAccountID++
	id := r.nextAccountID
	r.state.accounts[id] = domain.Account{ID: id, Name: name, PhoneNumber: phone, DeviceToken: token, Balance: balance}
	return id
}

func (r *memRepo) addCoupon(code string, amount domain.Amount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.coupons[code] = domain.Coupon{Code: code, Amount: amount}
}

func (r *memRepo) balance(id int64) domain.Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.accounts[id].Balance
}

func (r *memRepo) totalBalance() domain.Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total domain.Amount
	for _, a := range r.state.accounts {
		total += a.Balance
	}
	return total
}

func (r *memRepo) allEntries() []domain.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.entries)
}

func (r *memRepo) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.state.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (r *memRepo) GetBalance(ctx context.Context, id int64) (domain.Amount, error) {
	a, err := r.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (r *memRepo) FindAccountByPhone(_ context.Context, phone string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.state.accounts {
		if a.PhoneNumber != "" && a.PhoneNumber == phone {
			return &a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *memRepo) CreateAccount(_ context.Context, in domain.AccountCreate) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.state.accounts {
		if in.PhoneNumber != "" && a.PhoneNumber == in.PhoneNumber {
			return nil, domain.ErrDuplicatePhoneNumber
		}
	}
	r.nextAccountID++
	a := domain.Account{ID: r.nextAccountID, Name: in.Name, PhoneNumber: in.PhoneNumber, DeviceToken: in.DeviceToken}
	r.state.accounts[a.ID] = a
	return &a, nil
}

func (r *memRepo) ReferenceExists(_ context.Context, referenceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.referenceErr != nil {
		return false, r.referenceErr
	}
	for _, e := range r.state.entries {
		if e.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListEntries(_ context.Context, accountID int64, filter store.EntryFilter) ([]domain.EntryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var views []domain.EntryView
	for _, e := range r.state.entries {
		if e.AccountID != accountID || (filter.BeforeID > 0 && e.EntryID >= filter.BeforeID) {
			continue
		}
		if filter.ReferenceID != "" && e.ReferenceID != filter.ReferenceID {
			continue
		}
		views = append(views, domain.EntryView{
			LedgerEntry:      e,
			CounterpartyName: r.state.accounts[e.CounterpartyAccountID].Name,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].EntryID > views[j].EntryID })
	if len(views) > filter.Limit {
		views = views[:filter.Limit]
	}
	return views, nil
}

func (r *memRepo) FindIdempotencyRecord(_ context.Context, accountID int64, key string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.state.idem[idemKey{accountID, key}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memRepo) ExecTx(_ context.Context, fn func(store.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&memTx{repo: r, st: work}); err != nil {
		return err
	}
	for id, a := range work.accounts {
		if a.Balance < 0 {
			panic(fmt.Sprintf("account %d would commit a negative balance", id))
		}
	}
	r.state = work
	return nil
}

type memTx struct {
	repo *memRepo
	st   *memState
}

func (t *memTx) fail(method string) error {
	if t.repo.failOn == method {
		return t.repo.failErr
	}
	return nil
}

func (t *memTx) LockAccounts(_ context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	if err := t.fail("LockAccounts"); err != nil {
		return nil, err
	}
	locked := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		a, ok := t.st.accounts[id]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		locked[id] = &a
	}
	return locked, nil
}

func (t *memTx) Debit(_ context.Context, accountID int64, amount domain.Amount) (domain.Amount, error) {
	if err := t.fail("Debit"); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	if a.Balance < amount {
		return 0, domain.ErrInsufficientFunds
	}
	a.Balance -= amount
	t.st.accounts[accountID] = a
	return a.Balance, nil
}

func (t *memTx) Credit(_ context.Context, accountID int64, amount domain.Amount) (domain.Amount, error) {
	if err := t.fail("Credit"); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	a.Balance += amount
	t.st.accounts[accountID] = a
	return a.Balance, nil
}

func (t *memTx) referenceTaken(referenceID string) bool {
	if t.repo.conflicts > 0 {
		t.repo.conflicts--
		return true
	}
	for _, e := range t.st.entries {
		if e.ReferenceID == referenceID {
			return true
		}
	}
	return false
}

func (t *memTx) append(e domain.LedgerEntry) {
	t.st.nextEntryID++
	e.EntryID = t.st.nextEntryID
	e.Status = domain.StatusCompleted
	t.st.entries = append(t.st.entries, e)
}

func (t *memTx) WriteTransferPair(_ context.Context, pair domain.TransferPair) error {
	if err := t.fail("WriteTransferPair"); err != nil {
		return err
	}
	if t.referenceTaken(pair.ReferenceID) {
		return store.ErrReferenceConflict
	}
	t.append(domain.LedgerEntry{
		ReferenceID: pair.ReferenceID, AccountID: pair.SenderID, Kind: domain.KindSent,
		CounterpartyAccountID: pair.ReceiverID, Amount: pair.Amount, Note: pair.Note, Timestamp: pair.Timestamp,
	})
	t.append(domain.LedgerEntry{
		ReferenceID: pair.ReferenceID, AccountID: pair.ReceiverID, Kind: domain.KindReceived,
		CounterpartyAccountID: pair.SenderID, Amount: pair.Amount, Note: pair.Note, Timestamp: pair.Timestamp,
	})
	return nil
}

func (t *memTx) WriteRedemption(_ context.Context, r domain.Redemption) error {
	if err := t.fail("WriteRedemption"); err != nil {
		return err
	}
	for _, e := range t.st.entries {
		if e.Kind == domain.KindRedeemed && e.AccountID == r.AccountID && e.CouponCode == r.CouponCode {
			return domain.ErrAlreadyRedeemed
		}
	}
	if t.referenceTaken(r.ReferenceID) {
		return store.ErrReferenceConflict
	}
	t.append(domain.LedgerEntry{
		ReferenceID: r.ReferenceID, AccountID: r.AccountID, Kind: domain.KindRedeemed,
		CouponCode: r.CouponCode, Amount: r.Amount, Note: r.Note, Timestamp: r.Timestamp,
	})
	return nil
}

func (t *memTx) GetCoupon(_ context.Context, code string) (*domain.Coupon, error) {
	if err := t.fail("GetCoupon"); err != nil {
		return nil, err
	}
	c, ok := t.st.coupons[code]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	return &c, nil
}

func (t *memTx) ReserveIdempotencyKey(_ context.Context, accountID int64, key, requestHash string) (*domain.IdempotencyRecord, error) {
	if err := t.fail("ReserveIdempotencyKey"); err != nil {
		return nil, err
	}
	k := idemKey{accountID, key}
	if rec, ok := t.st.idem[k]; ok {
		return &rec, nil
	}
	t.st.idem[k] = domain.IdempotencyRecord{Key: key, RequestHash: requestHash}
	return nil, nil
}

func (t *memTx) CompleteIdempotencyKey(_ context.Context, accountID int64, key string, responseBody []byte) error {
	if err := t.fail("CompleteIdempotencyKey"); err != nil {
		return err
	}
	k := idemKey{accountID, key}
	rec := t.st.idem[k]
	rec.ResponseBody = slices.Clone(responseBody)
	t.st.idem[k] = rec
	return nil
}

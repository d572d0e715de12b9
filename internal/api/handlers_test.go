package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/service"
)

type stubAccounts struct {
	opened  domain.AccountCreate
	openErr error
	balance domain.Amount
	err     error
}

func (s *stubAccounts) Open(_ context.Context, in domain.AccountCreate) (*domain.Account, error) {
	s.opened = in
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &domain.Account{ID: 11, Name: in.Name}, nil
}

func (s *stubAccounts) Get(_ context.Context, id int64) (*domain.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Account{ID: id, Name: "Ali", Balance: s.balance}, nil
}

func (s *stubAccounts) Balance(_ context.Context, _ int64) (domain.Amount, error) {
	return s.balance, s.err
}

type stubTransfers struct {
	got    domain.TransferRequest
	result *domain.TransferResult
	err    error
}

func (s *stubTransfers) Transfer(_ context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	s.got = req
	return s.result, s.err
}

type stubRedemptions struct {
	code   string
	result *domain.RedemptionResult
	err    error
}

func (s *stubRedemptions) Redeem(_ context.Context, _ int64, code string) (*domain.RedemptionResult, error) {
	s.code = code
	return s.result, s.err
}

type stubHistory struct {
	cursor  service.Cursor
	entries []domain.EntryView
	next    *service.Cursor
	err     error
}

func (s *stubHistory) List(_ context.Context, _ int64, cursor service.Cursor) ([]domain.EntryView, *service.Cursor, error) {
	s.cursor = cursor
	return s.entries, s.next, s.err
}

type stubLimiter struct {
	allowed    bool
	retryAfter int
	err        error
}

func (s *stubLimiter) Allow(context.Context, string, string, int, time.Duration) (bool, int, error) {
	return s.allowed, s.retryAfter, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type fixture struct {
	accounts    *stubAccounts
	transfers   *stubTransfers
	redemptions *stubRedemptions
	history     *stubHistory
	deps        Deps
}

func newFixture() *fixture {
	f := &fixture{
		accounts:    &stubAccounts{},
		transfers:   &stubTransfers{},
		redemptions: &stubRedemptions{},
		history:     &stubHistory{},
	}
	f.deps = Deps{
		Accounts:             f.accounts,
		Transfers:            f.transfers,
		Redemptions:          f.redemptions,
		History:              f.history,
		RedeemLimitPerMinute: 30,
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	router := NewRouter(NewHandler(f.deps, log))

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func asCaller(id string) map[string]string {
	return map[string]string{PrincipalHeader: id}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateTransfer_Created(t *testing.T) {
	f := newFixture()
	f.transfers.result = &domain.TransferResult{ReferenceID: "ABC1234", Amount: 2500, SenderName: "Ali", ReceiverName: "Sara", NewBalance: 7500}

	headers := asCaller("1")
	headers[IdempotencyKeyHeader] = "k-1"
	rec := f.do(t, http.MethodPost, "/api/v1/transfers", `{"receiver_reference":"03000000002","amount":"25","note":" rent "}`, headers)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"reference_id":"ABC1234","amount":25.00,"sender_name":"Ali","receiver_name":"Sara","new_balance":75.00}`, rec.Body.String())
	assert.Equal(t, domain.TransferRequest{
		SenderID: 1, ReceiverPhone: "03000000002", Amount: 2500, Note: "rent", IdempotencyKey: "k-1",
	}, f.transfers.got)
}

func TestCreateTransfer_ReplayIsOK(t *testing.T) {
	f := newFixture()
	f.transfers.result = &domain.TransferResult{ReferenceID: "ABC1234", Amount: 100, Replayed: true}

	rec := f.do(t, http.MethodPost, "/api/v1/transfers", `{"receiver_account_id":2,"amount":1}`, asCaller("1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), f.transfers.got.ReceiverID)
}

func TestCreateTransfer_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "no principal", body: `{"amount":1}`, headers: nil, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHENTICATED"},
		{name: "bad principal", body: `{"amount":1}`, headers: asCaller("abc"), wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHENTICATED"},
		{name: "malformed body", body: `{`, headers: asCaller("1"), wantStatus: http.StatusBadRequest, wantCode: "MALFORMED_BODY"},
		{name: "missing amount", body: `{"receiver_account_id":2}`, headers: asCaller("1"), wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_AMOUNT"},
		{name: "non numeric amount", body: `{"receiver_account_id":2,"amount":"ten"}`, headers: asCaller("1"), wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_AMOUNT"},
		{name: "receiver not found", body: `{"receiver_account_id":2,"amount":1}`, headers: asCaller("1"), serviceErr: domain.ErrReceiverNotFound, wantStatus: http.StatusNotFound, wantCode: "RECEIVER_NOT_FOUND"},
		{name: "self transfer", body: `{"receiver_account_id":1,"amount":1}`, headers: asCaller("1"), serviceErr: domain.ErrSelfTransferNotAllowed, wantStatus: http.StatusUnprocessableEntity, wantCode: "SELF_TRANSFER_NOT_ALLOWED"},
		{name: "insufficient funds", body: `{"receiver_account_id":2,"amount":1}`, headers: asCaller("1"), serviceErr: domain.ErrInsufficientFunds, wantStatus: http.StatusUnprocessableEntity, wantCode: "INSUFFICIENT_FUNDS"},
		{name: "key mismatch", body: `{"receiver_account_id":2,"amount":1}`, headers: asCaller("1"), serviceErr: domain.ErrIdempotencyMismatch, wantStatus: http.StatusUnprocessableEntity, wantCode: "IDEMPOTENCY_KEY_MISMATCH"},
		{name: "store down", body: `{"receiver_account_id":2,"amount":1}`, headers: asCaller("1"), serviceErr: errors.Join(domain.ErrStoreUnavailable, errors.New("dial")), wantStatus: http.StatusServiceUnavailable, wantCode: "STORE_UNAVAILABLE"},
		{name: "collisions", body: `{"receiver_account_id":2,"amount":1}`, headers: asCaller("1"), serviceErr: domain.ErrReferenceCollisionExhausted, wantStatus: http.StatusServiceUnavailable, wantCode: "REFERENCE_COLLISION_EXHAUSTED"},
		{name: "unexpected", body: `{"receiver_account_id":2,"amount":1}`, headers: asCaller("1"), serviceErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.transfers.err = tt.serviceErr

			rec := f.do(t, http.MethodPost, "/api/v1/transfers", tt.body, tt.headers)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestRedeemCoupon(t *testing.T) {
	f := newFixture()
	f.redemptions.result = &domain.RedemptionResult{ReferenceID: "R000001", CouponCode: "EID", Amount: 1000, PreviousBalance: 0, NewBalance: 1000}

	rec := f.do(t, http.MethodPost, "/api/v1/coupons/redeem", `{"coupon_code":" eid "}`, asCaller("3"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, " eid ", f.redemptions.code)
	assert.JSONEq(t, `{"reference_id":"R000001","coupon_code":"EID","amount":10.00,"previous_balance":0.00,"new_balance":10.00}`, rec.Body.String())

	f.redemptions.err = domain.ErrAlreadyRedeemed
	rec = f.do(t, http.MethodPost, "/api/v1/coupons/redeem", `{"coupon_code":"eid"}`, asCaller("3"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_REDEEMED", decodeError(t, rec).Code)

	f.redemptions.err = domain.ErrCouponNotFound
	rec = f.do(t, http.MethodPost, "/api/v1/coupons/redeem", `{"coupon_code":"x"}`, asCaller("3"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedeemCoupon_RateLimited(t *testing.T) {
	f := newFixture()
	f.deps.Limiter = &stubLimiter{allowed: false, retryAfter: 17}

	rec := f.do(t, http.MethodPost, "/api/v1/coupons/redeem", `{"coupon_code":"eid"}`, asCaller("3"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "17", rec.Header().Get("Retry-After"))
	assert.Empty(t, f.redemptions.code)
}

func TestRedeemCoupon_LimiterFailureAllows(t *testing.T) {
	f := newFixture()
	f.deps.Limiter = &stubLimiter{err: errors.New("redis down")}
	f.redemptions.result = &domain.RedemptionResult{CouponCode: "EID"}

	rec := f.do(t, http.MethodPost, "/api/v1/coupons/redeem", `{"coupon_code":"eid"}`, asCaller("3"))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListLedger(t *testing.T) {
	f := newFixture()
	f.history.entries = []domain.EntryView{{
		LedgerEntry:      domain.LedgerEntry{EntryID: 9, ReferenceID: "R000001", AccountID: 3, Kind: domain.KindRedeemed, CouponCode: "EID", Amount: 1000, Status: domain.StatusCompleted},
		CounterpartyName: "Coupon: EID",
	}}
	f.history.next = &service.Cursor{Limit: 1, BeforeID: 9}

	rec := f.do(t, http.MethodGet, "/api/v1/ledger?limit=1&before=20", "", asCaller("3"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.Cursor{Limit: 1, BeforeID: 20}, f.history.cursor)

	var body struct {
		Entries []map[string]interface{} `json:"entries"`
		Next    int64                    `json:"next_before"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "Coupon: EID", body.Entries[0]["counterparty_name"])
	assert.Equal(t, "redeemed", body.Entries[0]["kind"])
	assert.Equal(t, int64(9), body.Next)

	rec = f.do(t, http.MethodGet, "/api/v1/ledger?reference=abc1234", "", asCaller("3"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.Cursor{ReferenceID: "abc1234"}, f.history.cursor)

	rec = f.do(t, http.MethodGet, "/api/v1/ledger?limit=-1", "", asCaller("3"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.history.entries, f.history.next = nil, nil
	rec = f.do(t, http.MethodGet, "/api/v1/ledger", "", asCaller("3"))
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestAccounts(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/v1/accounts", `{"name":"Ali","phone_number":"0300","device_token":"tok"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/v1/accounts/11", rec.Header().Get("Location"))
	assert.Equal(t, domain.AccountCreate{Name: "Ali", PhoneNumber: "0300", DeviceToken: "tok"}, f.accounts.opened)
	assert.NotContains(t, rec.Body.String(), "tok")

	f.accounts.openErr = domain.ErrDuplicatePhoneNumber
	rec = f.do(t, http.MethodPost, "/api/v1/accounts", `{"name":"Ali","phone_number":"0300"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.accounts.balance = 1234
	rec = f.do(t, http.MethodGet, "/api/v1/balance", "", asCaller("5"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":5,"balance":12.34}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/accounts/5", "", asCaller("5"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/accounts/6", "", asCaller("5"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.accounts.err = domain.ErrAccountNotFound
	rec = f.do(t, http.MethodGet, "/api/v1/balance", "", asCaller("5"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.deps.Store = stubPinger{err: errors.New("down")}
	rec = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

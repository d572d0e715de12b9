package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/logging"
	"github.com/rayyanshah04/FlexPay/internal/service"
)

const (
	maxBodyBytes = 1 << 20

	IdempotencyKeyHeader = "Idempotency-Key"
	redeemScope          = "coupon_redeem"
)

type AccountManager interface {
	Open(ctx context.Context, in domain.AccountCreate) (*domain.Account, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	Balance(ctx context.Context, id int64) (domain.Amount, error)
}

type Transferer interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
}

type Redeemer interface {
	Redeem(ctx context.Context, accountID int64, code string) (*domain.RedemptionResult, error)
}

type HistoryLister interface {
	List(ctx context.Context, accountID int64, cursor service.Cursor) ([]domain.EntryView, *service.Cursor, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handler. Limiter and Store may be nil.
type Deps struct {
	Accounts    AccountManager
	Transfers   Transferer
	Redemptions Redeemer
	History     HistoryLister
	Limiter     RateLimiter
	Store       Pinger

	RedeemLimitPerMinute int
}

type Handler struct {
	deps Deps
	log  logrus.FieldLogger
}

func NewHandler(deps Deps, log logrus.FieldLogger) *Handler {
	return &Handler{deps: deps, log: log}
}

type createAccountRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	DeviceToken string `json:"device_token"`
}

type transferRequest struct {
	ReceiverReference string          `json:"receiver_reference"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            json.RawMessage `json:"amount"`
	Note              string          `json:"note"`
}

type redeemRequest struct {
	CouponCode string `json:"coupon_code"`
}

type balanceResponse struct {
	AccountID int64         `json:"account_id"`
	Balance   domain.Amount `json:"balance"`
}

type ledgerResponse struct {
	Entries    []domain.EntryView `json:"entries"`
	NextBefore int64              `json:"next_before,omitempty"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Store.Ping(ctx); err != nil {
			h.log.WithError(err).Warn("Health check failed")
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request, logData *logging.LogData) error {
	var req createAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "MALFORMED_BODY", "Malformed JSON body")
		return nil
	}

	account, err := h.deps.Accounts.Open(r.Context(), domain.AccountCreate{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}

	logData.AddData("account_id", account.ID)
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%d", account.ID))
	respondWithJSON(w, http.StatusCreated, account)
	return nil
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request, logData *logging.LogData, principal int64) error {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "Invalid account id")
		return nil
	}
	if id != principal {
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Account belongs to another caller")
		return nil
	}

	account, err := h.deps.Accounts.Get(r.Context(), id)
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}
	respondWithJSON(w, http.StatusOK, account)
	return nil
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request, logData *logging.LogData, principal int64) error {
	balance, err := h.deps.Accounts.Balance(r.Context(), principal)
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}
	respondWithJSON(w, http.StatusOK, balanceResponse{AccountID: principal, Balance: balance})
	return nil
}

// CreateTransfer answers 201 for a new transfer and 200 when an Idempotency-Key replays one.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request, logData *logging.LogData, principal int64) error {
	var req transferRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "MALFORMED_BODY", "Malformed JSON body")
		return nil
	}

	amount, err := domain.ParseAmountJSON(req.Amount)
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}

	result, err := h.deps.Transfers.Transfer(r.Context(), domain.TransferRequest{
		SenderID:       principal,
		ReceiverID:     req.ReceiverAccountID,
		ReceiverPhone:  req.ReceiverReference,
		Amount:         amount,
		Note:           strings.TrimSpace(req.Note),
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}

	logData.AddData("reference_id", result.ReferenceID)
	logData.AddData("replayed", result.Replayed)
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondWithJSON(w, status, result)
	return nil
}

func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request, logData *logging.LogData, principal int64) error {
	if h.deps.Limiter != nil {
		allowed, retryAfter, err := h.deps.Limiter.Allow(r.Context(), redeemScope, strconv.FormatInt(principal, 10), h.deps.RedeemLimitPerMinute, time.Minute)
		if err != nil {
			// The limiter is advisory; redemption idempotency lives in the store.
			h.log.WithError(err).Warn("Rate limiter unavailable; allowing request")
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondWithError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many redemption attempts")
			return nil
		}
	}

	var req redeemRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "MALFORMED_BODY", "Malformed JSON body")
		return nil
	}

	result, err := h.deps.Redemptions.Redeem(r.Context(), principal, req.CouponCode)
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}

	logData.AddData("reference_id", result.ReferenceID)
	respondWithJSON(w, http.StatusOK, result)
	return nil
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request, logData *logging.LogData, principal int64) error {
	var cursor service.Cursor
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondWithError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return nil
		}
		cursor.Limit = limit
	}
	if raw := query.Get("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before <= 0 {
			respondWithError(w, http.StatusBadRequest, "INVALID_CURSOR", "before must be a positive entry id")
			return nil
		}
		cursor.BeforeID = before
	}
	cursor.ReferenceID = query.Get("reference")

	entries, next, err := h.deps.History.List(r.Context(), principal, cursor)
	if err != nil {
		return respondWithDomainError(w, logData, err)
	}

	resp := ledgerResponse{Entries: entries}
	if resp.Entries == nil {
		resp.Entries = []domain.EntryView{}
	}
	if next != nil {
		resp.NextBefore = next.BeforeID
	}
	logData.AddData("entries", len(entries))
	respondWithJSON(w, http.StatusOK, resp)
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

// respondWithDomainError writes the mapped error and hands server-side faults
// back to the logging wrapper.
func respondWithDomainError(w http.ResponseWriter, logData *logging.LogData, err error) error {
	status, body := errorResponse(err)
	logData.AddData("code", body.Code)
	respondWithJSON(w, status, body)
	if status >= http.StatusInternalServerError {
		return err
	}
	return nil
}

func respondWithError(w http.ResponseWriter, code int, errCode, message string) {
	respondWithJSON(w, code, errorBody{Error: message, Code: errCode})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

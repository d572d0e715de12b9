package domain

import (
	"time"
)

// EntryKind tags a ledger entry with the perspective it records.
type EntryKind string

const (
	KindSent     EntryKind = "sent"
	KindReceived EntryKind = "received"
	KindRedeemed EntryKind = "redeemed"
)

// EntryStatus is persisted with every entry. Only completed entries reach the ledger.
type EntryStatus string

const (
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// Account represents a user's balance in the ledger.
type Account struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	DeviceToken string    `json:"-"`
	Balance     Amount    `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccountCreate is the input for opening an account.
type AccountCreate struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	DeviceToken string `json:"device_token"`
}

// Coupon is a one-time credit that each account may redeem once.
type Coupon struct {
	Code   string `json:"code"`
	Amount Amount `json:"amount"`
}

// LedgerEntry is one immutable record of a single account's side of a money movement.
// The two entries of a transfer share ReferenceID; a redemption has its own.
type LedgerEntry struct {
	EntryID               int64       `json:"entry_id"`
	ReferenceID           string      `json:"reference_id"`
	AccountID             int64       `json:"account_id"`
	Kind                  EntryKind   `json:"kind"`
	CounterpartyAccountID int64       `json:"counterparty_account_id,omitempty"`
	CouponCode            string      `json:"coupon_code,omitempty"`
	Amount                Amount      `json:"amount"`
	Status                EntryStatus `json:"status"`
	Note                  string      `json:"note"`
	Timestamp             time.Time   `json:"timestamp"`
}

// EntryView is a ledger entry joined with the counterparty's display name.
type EntryView struct {
	LedgerEntry
	CounterpartyName string `json:"counterparty_name"`
}

// TransferPair is what the ledger writer needs to record both legs of a transfer.
type TransferPair struct {
	ReferenceID string
	SenderID    int64
	ReceiverID  int64
	Amount      Amount
	Note        string
	Timestamp   time.Time
}

// Redemption is what the ledger writer needs to record a coupon credit.
type Redemption struct {
	ReferenceID string
	AccountID   int64
	CouponCode  string
	Amount      Amount
	Note        string
	Timestamp   time.Time
}

// TransferRequest is the orchestrator input. The receiver is either ReceiverID
// or, when that is zero, the account owning ReceiverPhone.
type TransferRequest struct {
	SenderID       int64
	ReceiverID     int64
	ReceiverPhone  string
	Amount         Amount
	Note           string
	IdempotencyKey string
}

// TransferResult is the canonical response of a committed transfer.
type TransferResult struct {
	ReferenceID  string `json:"reference_id"`
	Amount       Amount `json:"amount"`
	SenderName   string `json:"sender_name"`
	ReceiverName string `json:"receiver_name"`
	NewBalance   Amount `json:"new_balance"`
	Replayed     bool   `json:"-"`
}

// RedemptionResult reports the credit applied by a coupon.
type RedemptionResult struct {
	ReferenceID     string `json:"reference_id"`
	CouponCode      string `json:"coupon_code"`
	Amount          Amount `json:"amount"`
	PreviousBalance Amount `json:"previous_balance"`
	NewBalance      Amount `json:"new_balance"`
}

// IdempotencyRecord holds the state of a client-supplied request key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
}

package domain

// Error is a ledger failure class. Callers match it with errors.Is against
// the sentinels below; Code is stable and safe to expose to clients.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidAmount               = &Error{Code: "INVALID_AMOUNT", Message: "amount must be a positive monetary value"}
	ErrAccountNotFound             = &Error{Code: "ACCOUNT_NOT_FOUND", Message: "account not found"}
	ErrReceiverNotFound            = &Error{Code: "RECEIVER_NOT_FOUND", Message: "receiver not found"}
	ErrSelfTransferNotAllowed      = &Error{Code: "SELF_TRANSFER_NOT_ALLOWED", Message: "cannot transfer to self"}
	ErrInsufficientFunds           = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrCouponNotFound              = &Error{Code: "COUPON_NOT_FOUND", Message: "coupon not found"}
	ErrAlreadyRedeemed             = &Error{Code: "ALREADY_REDEEMED", Message: "coupon already redeemed"}
	ErrStoreUnavailable            = &Error{Code: "STORE_UNAVAILABLE", Message: "ledger store unavailable"}
	ErrReferenceCollisionExhausted = &Error{Code: "REFERENCE_COLLISION_EXHAUSTED", Message: "could not allocate a unique reference id"}
	ErrIdempotencyMismatch         = &Error{Code: "IDEMPOTENCY_KEY_MISMATCH", Message: "key reuse with mismatched payload"}
	ErrDuplicatePhoneNumber        = &Error{Code: "DUPLICATE_PHONE_NUMBER", Message: "phone number already registered"}
	ErrInvalidAccount              = &Error{Code: "INVALID_ACCOUNT", Message: "account name is required"}
)

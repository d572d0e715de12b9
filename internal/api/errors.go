package api

import (
	"errors"
	"net/http"

	"github.com/rayyanshah04/FlexPay/internal/domain"
)

var errorStatus = map[*domain.Error]int{
	domain.ErrInvalidAmount:               http.StatusUnprocessableEntity,
	domain.ErrSelfTransferNotAllowed:      http.StatusUnprocessableEntity,
	domain.ErrInsufficientFunds:           http.StatusUnprocessableEntity,
	domain.ErrIdempotencyMismatch:         http.StatusUnprocessableEntity,
	domain.ErrInvalidAccount:              http.StatusUnprocessableEntity,
	domain.ErrAccountNotFound:             http.StatusNotFound,
	domain.ErrReceiverNotFound:            http.StatusNotFound,
	domain.ErrCouponNotFound:              http.StatusNotFound,
	domain.ErrAlreadyRedeemed:             http.StatusConflict,
	domain.ErrDuplicatePhoneNumber:        http.StatusConflict,
	domain.ErrStoreUnavailable:            http.StatusServiceUnavailable,
	domain.ErrReferenceCollisionExhausted: http.StatusServiceUnavailable,
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorResponse maps err to a status and client-safe body. Store failures are
// checked first because they may be joined with other taxonomy errors.
func errorResponse(err error) (int, errorBody) {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable, bodyFor(domain.ErrStoreUnavailable)
	}

	var de *domain.Error
	if errors.As(err, &de) {
		if status, ok := errorStatus[de]; ok {
			return status, bodyFor(de)
		}
	}
	return http.StatusInternalServerError, errorBody{Error: "Internal Server Error", Code: "INTERNAL"}
}

func bodyFor(de *domain.Error) errorBody {
	return errorBody{Error: de.Message, Code: de.Code}
}

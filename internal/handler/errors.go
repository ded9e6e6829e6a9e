package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/marketer"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

// Error kinds.
const (
	kindValidation = "validation_error"
	kindNotFound   = "not_found"
	kindConflict   = "conflict"
	kindUnavail    = "unavailable"
	kindEmptyState = "empty_state"
	kindTransient  = "transient_failure"
	kindUnauth     = "unauthorized"
	kindForbidden  = "forbidden"
	kindInternal   = "internal"
)

// apiError is the body of every error response.
type apiError struct {
	Status  int
	Kind    string
	Reason  string
	Message string
}

func (e apiError) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Status)
	enc.FieldStart("kind")
	enc.Str(e.Kind)
	enc.FieldStart("reason")
	enc.Str(e.Reason)
	enc.FieldStart("message")
	enc.Str(e.Message)
	enc.ObjEnd()
}

// requestError reports a malformed request.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func invalidRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// mapError converts domain errors to API errors.
func mapError(err error) apiError {
	var (
		failed   *checkout.FailedError
		badReq   *requestError
		notFound *catalog.ItemNotFoundError
		badField *marketer.InvalidFieldError
	)
	e := func(status int, kind, reason string) apiError {
		return apiError{Status: status, Kind: kind, Reason: reason, Message: err.Error()}
	}

	switch {
	case errors.As(err, &failed):
		return apiError{
			Status:  http.StatusServiceUnavailable,
			Kind:    kindTransient,
			Reason:  "payment_failed",
			Message: "payment could not be recorded, please retry",
		}
	case errors.As(err, &badReq), errors.As(err, &badField):
		return e(http.StatusBadRequest, kindValidation, "invalid_request")

	case errors.Is(err, auth.ErrUnauthorized):
		return e(http.StatusUnauthorized, kindUnauth, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		return apiError{Status: http.StatusForbidden, Kind: kindForbidden, Reason: "forbidden", Message: "forbidden"}

	case errors.Is(err, catalog.ErrInvalidItemRef):
		return e(http.StatusBadRequest, kindValidation, "invalid_item")
	case errors.Is(err, referral.ErrInvalidPercentage),
		errors.Is(err, referral.ErrInvalidMaxUses),
		errors.Is(err, referral.ErrInvalidCodeFormat),
		errors.Is(err, checkout.ErrInvalidConfirmation):
		return e(http.StatusBadRequest, kindValidation, "invalid_request")
	case errors.Is(err, purchase.ErrInvalidStatus),
		errors.Is(err, commission.ErrInvalidStatus),
		errors.Is(err, marketer.ErrInvalidStatus):
		return e(http.StatusBadRequest, kindValidation, "invalid_status")
	case errors.Is(err, purchase.ErrInvalidRange), errors.Is(err, commission.ErrInvalidRange):
		return e(http.StatusBadRequest, kindValidation, "invalid_range")

	case errors.As(err, &notFound), errors.Is(err, catalog.ErrNotFound):
		return e(http.StatusNotFound, kindNotFound, "invalid_item")
	case errors.Is(err, referral.ErrCodeNotFound):
		return e(http.StatusNotFound, kindNotFound, "invalid_code")
	case errors.Is(err, purchase.ErrNotFound),
		errors.Is(err, commission.ErrNotFound),
		errors.Is(err, marketer.ErrRequestNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		return e(http.StatusNotFound, kindNotFound, "not_found")

	case errors.Is(err, cart.ErrAlreadyInCart):
		return e(http.StatusConflict, kindConflict, "already_in_cart")
	case errors.Is(err, cart.ErrAlreadyOwned):
		return e(http.StatusConflict, kindConflict, "already_owned")
	case errors.Is(err, purchase.ErrInvalidTransition),
		errors.Is(err, commission.ErrInvalidTransition),
		errors.Is(err, marketer.ErrAlreadyReviewed):
		return e(http.StatusConflict, kindConflict, "invalid_transition")
	case errors.Is(err, marketer.ErrRequestExists):
		return e(http.StatusConflict, kindConflict, "request_exists")
	case errors.Is(err, referral.ErrCodeTaken):
		return e(http.StatusConflict, kindConflict, "code_taken")
	case errors.Is(err, referral.ErrCodeInUse):
		return e(http.StatusConflict, kindConflict, "code_in_use")

	case errors.Is(err, referral.ErrCodeInactive):
		return e(http.StatusUnprocessableEntity, kindUnavail, "code_inactive")
	case errors.Is(err, referral.ErrCodeExhausted):
		return e(http.StatusUnprocessableEntity, kindUnavail, "code_exhausted")

	case errors.Is(err, checkout.ErrEmptyCart):
		return e(http.StatusBadRequest, kindEmptyState, "empty_cart")

	default:
		return apiError{
			Status:  http.StatusInternalServerError,
			Kind:    kindInternal,
			Reason:  "internal",
			Message: "internal server error",
		}
	}
}

// writeError maps err and writes it. Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := mapError(err)
	lg := zctx.From(r.Context())
	if ae.Status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err), zap.String("kind", ae.Kind))
	} else {
		lg.Debug("Request rejected", zap.Error(err), zap.String("reason", ae.Reason))
	}
	writeJSON(w, ae.Status, ae.Encode)
}

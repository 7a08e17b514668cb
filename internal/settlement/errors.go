package settlement

import (
	"errors"
	"fmt"

	"remit/internal/gateway"
)

// Kind is the stable error category callers branch on.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found_error"
	KindAuthorization    Kind = "authorization_error"
	KindAlreadyProcessed Kind = "already_processed_error"
	KindAmountValidation Kind = "amount_validation_error"
	KindPayment          Kind = "payment_error"
	KindConfiguration    Kind = "configuration_error"
	KindSystem           Kind = "system_error"
)

// Error is what settlement returns to callers. Message is safe to show to a
// user; Err holds the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Reason  gateway.Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func validationError(format string, args ...interface{}) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

func systemError(cause error) *Error {
	return newError(KindSystem, "An unexpected error occurred. Please try again later.", cause)
}

// paymentError classifies a failed gateway call.
func paymentError(err error) *Error {
	if errors.Is(err, gateway.ErrNotConfigured) {
		return newError(KindConfiguration, "Payment service is not available.", err)
	}
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return &Error{Kind: KindPayment, Reason: gwErr.Reason, Message: gwErr.Reason.UserMessage(), Err: err}
	}
	return &Error{Kind: KindPayment, Reason: gateway.ReasonOther, Message: gateway.ReasonOther.UserMessage(), Err: err}
}

// KindOf returns the category of err, or KindSystem for anything unclassified.
func KindOf(err error) Kind {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Kind
	}
	return KindSystem
}

package graduation

import (
	"errors"
	"fmt"
	"strings"

	"graduationScope/internal/model"
)

// Kind is the machine-checkable class of a graduation error.
type Kind string

const (
	KindTokenNotFound    Kind = "TokenNotFound"
	KindUnauthorized     Kind = "Unauthorized"
	KindInvalidRange     Kind = "InvalidRange"
	KindNotEligible      Kind = "NotEligible"
	KindAlreadyGraduated Kind = "AlreadyGraduated"
	KindExecutionFailed  Kind = "ExecutionFailed"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrTokenNotFound    = &Error{Kind: KindTokenNotFound, Message: "token not found"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "caller is not the admin"}
	ErrInvalidRange     = &Error{Kind: KindInvalidRange, Message: "value out of range"}
	ErrNotEligible      = &Error{Kind: KindNotEligible, Message: "token is not eligible for graduation"}
	ErrAlreadyGraduated = &Error{Kind: KindAlreadyGraduated, Message: "token already graduated"}
	ErrExecutionFailed  = &Error{Kind: KindExecutionFailed, Message: "graduation execution failed"}
)

// Error is a classified graduation failure.
type Error struct {
	Kind    Kind
	Message string
	Reasons []model.Reason
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Reasons) > 0 {
		parts := make([]string, 0, len(e.Reasons))
		for _, r := range e.Reasons {
			parts = append(parts, r.Message)
		}
		msg = msg + ": " + strings.Join(parts, "; ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so wrapped instances compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Retryable reports whether the caller may retry the whole operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindExecutionFailed
}

// TokenNotFound builds a TokenNotFound error for an address.
func TokenNotFound(token string) *Error {
	return &Error{Kind: KindTokenNotFound, Message: fmt.Sprintf("token %s is not registered", token)}
}

// Unauthorized builds an Unauthorized error for a caller.
func Unauthorized(caller string) *Error {
	if caller == "" {
		return &Error{Kind: KindUnauthorized, Message: "caller identity required"}
	}
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf("caller %s is not the admin", caller)}
}

// InvalidRange builds an InvalidRange error naming the field and accepted bounds.
func InvalidRange(field string, value, min, max uint64) *Error {
	return &Error{
		Kind:    KindInvalidRange,
		Message: fmt.Sprintf("%s must be within [%d, %d], got %d", field, min, max, value),
	}
}

// NotEligible builds a NotEligible error carrying itemized reasons.
func NotEligible(reasons []model.Reason) *Error {
	return &Error{Kind: KindNotEligible, Message: "token is not eligible for graduation", Reasons: reasons}
}

// AlreadyGraduated builds an AlreadyGraduated error for an address.
func AlreadyGraduated(token string) *Error {
	return &Error{Kind: KindAlreadyGraduated, Message: fmt.Sprintf("token %s already graduated", token)}
}

// ExecutionFailed wraps a downstream failure.
func ExecutionFailed(step string, err error) *Error {
	return &Error{Kind: KindExecutionFailed, Message: fmt.Sprintf("graduation %s failed", step), Err: err}
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonsOf returns the itemized reasons attached to err, if any.
func ReasonsOf(err error) []model.Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reasons
	}
	return nil
}

// IsAuthorization reports whether err is an authorization failure rather than a validation one.
func IsAuthorization(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// InvalidValue builds an InvalidRange error with a free-form message.
func InvalidValue(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidRange, Message: fmt.Sprintf(format, args...)}
}

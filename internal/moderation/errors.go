package moderation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rejection reasons. Every one of them leaves the store untouched.
var (
	ErrTargetNotFound    = errors.New("target not found")
	ErrProtectedTarget   = errors.New("target is a staff member")
	ErrSelfTarget        = errors.New("moderator targeted themself")
	ErrAlreadySanctioned = errors.New("target already has an active sanction")
	ErrNothingToReverse  = errors.New("target has no active sanction")
	ErrInvalidAction     = errors.New("invalid moderation action")
	ErrInvalidBanDate    = errors.New("invalid ban date")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrInvalidReason     = errors.New("invalid reason")
	ErrInsufficientLevel = errors.New("insufficient permission level")
)

// Form fields that a ValidationError can be scoped to.
const (
	FieldUsername = "username"
	FieldAction   = "action"
	FieldBanDate  = "banDate"
	FieldReason   = "reason"
)

// ValidationError is a rejection scoped to a single request field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return "moderation: " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors carries several field-scoped rejections from one request.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// FieldErrors flattens the validation errors in err into field -> messages.
// It returns nil if err carries no field-scoped rejection.
func FieldErrors(err error) map[string][]string {
	var fields map[string][]string
	add := func(e *ValidationError) {
		if fields == nil {
			fields = make(map[string][]string)
		}
		fields[e.Field] = append(fields[e.Field], e.Message)
	}

	var many ValidationErrors
	if errors.As(err, &many) {
		for _, e := range many {
			add(e)
		}
		return fields
	}
	var one *ValidationError
	if errors.As(err, &one) {
		add(one)
	}
	return fields
}

func fieldError(field string, err error, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// RateLimitError is returned when the rate limiter refuses the attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("moderation: rate limited, retry after %s", e.RetryAfter)
}

// IsRejection reports whether err is a recoverable, user-facing rejection
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	var ve *ValidationError
	var rl *RateLimitError
	return errors.As(err, &ve) || errors.As(err, &rl)
}

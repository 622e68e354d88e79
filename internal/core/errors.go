package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeBadRequest        = "bad_request"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeUnknownEvent      = "unknown_event"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeInternal          = "internal"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

func validationError(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg, ErrValidation)
}

// AsCoreError maps any error onto a wire-level CoreError.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return coreError(ErrCodeUnauthorized, "unauthorized", err)
	case errors.Is(err, ErrValidation):
		return coreError(ErrCodeBadRequest, err.Error(), err)
	case errors.Is(err, ErrPersistence):
		return coreError(ErrCodePersistenceFailed, "failed to store message", err)
	default:
		return coreError(ErrCodeInternal, "internal error", err)
	}
}

package gen

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed generator call.
type ErrorKind string

const (
	RateLimited    ErrorKind = "rate_limited"
	InvalidRequest ErrorKind = "invalid_request"
	AuthFailed     ErrorKind = "auth_failed"
	ContentBlocked ErrorKind = "content_blocked"
	Unknown        ErrorKind = "unknown"
)

// KindForStatus maps an upstream HTTP status onto an ErrorKind.
func KindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusTooManyRequests:
		return RateLimited
	case http.StatusBadRequest:
		return InvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthFailed
	default:
		return Unknown
	}
}

type GenerationError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ClassificationError is returned for empty input or model output that does
// not parse.
type ClassificationError struct {
	Stage string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %v", e.Stage, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ExtractionError reports a frame the extractor could not produce.
type ExtractionError struct {
	Frame int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract frame %d: %v", e.Frame, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, or Unknown.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Unknown
}

// IsBlocked reports whether err is a content-blocked generator answer.
func IsBlocked(err error) bool {
	return err != nil && KindOf(err) == ContentBlocked
}

func wrapGen(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Kind: Unknown, Op: op, Err: err}
}

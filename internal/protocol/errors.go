package protocol

import (
	"context"
	"errors"
	"net/http"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/sim/world"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNotFound      = "E_NOT_FOUND"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrStale         = "E_STALE"

	// Generation layer.
	ErrBlocked        = "E_BLOCKED"
	ErrRateLimit      = "E_RATE_LIMIT"
	ErrAuth           = "E_AUTH"
	ErrClassification = "E_CLASSIFICATION"
	ErrGeneration     = "E_GENERATION"
	ErrExtraction     = "E_EXTRACTION"
	ErrTimeout        = "E_TIMEOUT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrInvalidTarget:   {},
	ErrStale:           {},
	ErrBlocked:         {},
	ErrRateLimit:       {},
	ErrAuth:            {},
	ErrClassification:  {},
	ErrGeneration:      {},
	ErrExtraction:      {},
	ErrTimeout:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an error from the generation or world layer onto a wire code.
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	var ge *gen.GenerationError
	var ce *gen.ClassificationError
	var xe *gen.ExtractionError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, world.ErrStale):
		return ErrStale
	case errors.Is(err, world.ErrUnknownObject), errors.Is(err, world.ErrUnknownKind):
		return ErrInvalidTarget
	case errors.Is(err, gen.ErrBadHash), errors.Is(err, ErrBadImageData), errors.Is(err, world.ErrUnknownVerb):
		return ErrBadRequest
	case errors.As(err, &ge):
		switch ge.Kind {
		case gen.ContentBlocked:
			return ErrBlocked
		case gen.RateLimited:
			return ErrRateLimit
		case gen.AuthFailed:
			return ErrAuth
		case gen.InvalidRequest:
			return ErrBadRequest
		}
		return ErrGeneration
	case errors.As(err, &ce):
		return ErrClassification
	case errors.As(err, &xe):
		return ErrExtraction
	}
	return ErrInternal
}

// HTTPStatus is the status an HTTP handler answers code with. Blocked
// content is a normal answer, not a failure.
func HTTPStatus(code string) int {
	switch code {
	case "", ErrBlocked:
		return http.StatusOK
	case ErrProtoBadRequest, ErrBadRequest, ErrInvalidTarget:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrStale:
		return http.StatusConflict
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrAuth, ErrGeneration, ErrExtraction:
		return http.StatusBadGateway
	case ErrClassification:
		return http.StatusUnprocessableEntity
	case ErrTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

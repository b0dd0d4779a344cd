package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound signals a missing knowledge document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrValidation signals invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition signals a pipeline stage change that is not allowed.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrBreakerOpen signals that a provider's circuit breaker rejected the call.
	ErrBreakerOpen = errors.New("circuit breaker open")
	// ErrProviderCall signals a failed call to an external model API.
	ErrProviderCall = errors.New("provider call failed")

	// ErrContentTooShort signals input below the chunking minimum.
	ErrContentTooShort = errors.New("content too short")
	// ErrProviderUnavailable signals that every embedding provider failed.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrExtractionFailed signals that no text could be extracted from a source.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrClassificationAmbiguous signals a low-confidence category guess.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")
	// ErrCitationUnverified signals a citation that does not resolve to a source.
	ErrCitationUnverified = errors.New("citation unverified")
)

// ReasonCode is a machine-readable failure code attached to documents and API errors.
type ReasonCode string

// Reason codes.
const (
	ReasonContentTooShort         ReasonCode = "content_too_short"
	ReasonProviderUnavailable     ReasonCode = "provider_unavailable"
	ReasonExtractionFailed        ReasonCode = "extraction_failed"
	ReasonClassificationAmbiguous ReasonCode = "classification_ambiguous"
	ReasonCitationUnverified      ReasonCode = "citation_unverified"
	ReasonInvalidTransition       ReasonCode = "invalid_transition"
	ReasonNotFound                ReasonCode = "not_found"
	ReasonValidation              ReasonCode = "validation_failed"
	ReasonRetriesExhausted        ReasonCode = "retries_exhausted"
	ReasonInternal                ReasonCode = "internal_error"
)

var reasonSentinels = []struct {
	code ReasonCode
	err  error
}{
	{ReasonContentTooShort, ErrContentTooShort},
	{ReasonProviderUnavailable, ErrProviderUnavailable},
	{ReasonExtractionFailed, ErrExtractionFailed},
	{ReasonClassificationAmbiguous, ErrClassificationAmbiguous},
	{ReasonCitationUnverified, ErrCitationUnverified},
	{ReasonInvalidTransition, ErrInvalidTransition},
	{ReasonNotFound, ErrDocumentNotFound},
	{ReasonNotFound, ErrNotFound},
	{ReasonValidation, ErrValidation},
}

// ReasonError pairs a machine reason code with a human-readable message.
type ReasonError struct {
	Code    ReasonCode
	Message string
	Err     error
}

func (e *ReasonError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ReasonError) Unwrap() error { return e.Err }

// NewReasonError creates a ReasonError wrapping the sentinel for code.
func NewReasonError(code ReasonCode, message string) error {
	return &ReasonError{Code: code, Message: message, Err: sentinelFor(code)}
}

// Reasonf is NewReasonError with a formatted message.
func Reasonf(code ReasonCode, format string, args ...any) error {
	return NewReasonError(code, fmt.Sprintf(format, args...))
}

// ReasonOf extracts the reason code of err, falling back to sentinel matching.
func ReasonOf(err error) ReasonCode {
	if err == nil {
		return ""
	}
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Code
	}
	for _, rs := range reasonSentinels {
		if errors.Is(err, rs.err) {
			return rs.code
		}
	}
	return ReasonInternal
}

// MessageOf returns a client-safe message for err.
func MessageOf(err error) string {
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Message
	}
	for _, rs := range reasonSentinels {
		if errors.Is(err, rs.err) {
			return rs.err.Error()
		}
	}
	return "internal error"
}

// IsStructural reports whether err is terminal for the current document version.
func IsStructural(err error) bool {
	return errors.Is(err, ErrContentTooShort) || errors.Is(err, ErrExtractionFailed)
}

func sentinelFor(code ReasonCode) error {
	for _, rs := range reasonSentinels {
		if rs.code == code {
			return rs.err
		}
	}
	return nil
}

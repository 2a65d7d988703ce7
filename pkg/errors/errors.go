package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the fault taxonomy used across the crawler
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypePermanentHTTP  ErrorType = "permanent_http"
	ErrorTypeIntegrity      ErrorType = "integrity"
	ErrorTypeSizeMismatch   ErrorType = "size_mismatch"
	ErrorTypeStorage        ErrorType = "storage"
	ErrorTypeSubjectInvalid ErrorType = "subject_invalid"
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeParsing        ErrorType = "parsing"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error is a classified fault. Page carries the raw response body, when one
// was available, so callers can dump it for diagnostics.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Page    []byte
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap classifies an underlying error
func Wrap(errorType ErrorType, err error, message string) *Error {
	return &Error{Type: errorType, Message: message, Err: err}
}

func NewNetwork(err error, url string) *Error {
	return Wrap(ErrorTypeNetwork, err, fmt.Sprintf("request to %s failed: %v", url, err))
}

func NewPermanentHTTP(code int, url string) *Error {
	return &Error{Type: ErrorTypePermanentHTTP, Code: code, Message: fmt.Sprintf("%s returned %d", url, code)}
}

func NewIntegrity(err error, path string) *Error {
	return Wrap(ErrorTypeIntegrity, err, fmt.Sprintf("%s failed verification: %v", path, err))
}

func NewSizeMismatch(expected, actual int64, url string) *Error {
	return &Error{
		Type:    ErrorTypeSizeMismatch,
		Message: fmt.Sprintf("incomplete download for %s: expected %d bytes, got %d", url, expected, actual),
	}
}

func NewStorage(err error, path string) *Error {
	return Wrap(ErrorTypeStorage, err, fmt.Sprintf("cannot write %s: %v", path, err))
}

func NewSubjectInvalid(message string, page []byte) *Error {
	return &Error{Type: ErrorTypeSubjectInvalid, Message: message, Page: page}
}

func NewAuth(message string) *Error {
	return New(ErrorTypeAuth, message)
}

func NewConfig(err error) *Error {
	return Wrap(ErrorTypeConfig, err, err.Error())
}

func NewParsing(err error, page []byte) *Error {
	return &Error{Type: ErrorTypeParsing, Message: err.Error(), Err: err, Page: page}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// PageOf returns the raw page attached to err, if any
func PageOf(err error) []byte {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Page
	}
	return nil
}

// Is reports whether err carries the given classification
func Is(err error, errorType ErrorType) bool {
	return err != nil && TypeOf(err) == errorType
}

// IsRetryable checks if an error type should be retried by the download loop
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeIntegrity, ErrorTypeSizeMismatch, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// IsFatal reports whether a fault aborts the whole run
func IsFatal(errorType ErrorType) bool {
	return errorType == ErrorTypeAuth || errorType == ErrorTypeConfig
}

// IsPermanentStatus reports HTTP statuses that are never retried
func IsPermanentStatus(statusCode int) bool {
	switch statusCode {
	case 404, 500, 502:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	if IsPermanentStatus(statusCode) {
		return false
	}
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403:
		return false
	default:
		return statusCode >= 500
	}
}

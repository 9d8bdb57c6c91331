// Package errors provides standardized error handling for chatflux
// components: classification into transient, invalid, and fatal errors,
// standard error variables, and helpers for consistent wrapping across
// adapter boundaries.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary adapter failures (broker, cache,
	// store I/O) that are logged and never fatal to the pipeline
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input; the event is
	// rejected at ingestion and never enters the pipeline
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors (startup connection
	// failures, broken configuration) that should stop the process
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Adapter connectivity
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSubscriptionFailed = errors.New("subscription failed")

	// Ingestion validation
	ErrBodyRequired = errors.New("event body is required")
	ErrBodyTooLong  = errors.New("event body exceeds maximum length")
	ErrInvalidKind  = errors.New("invalid event kind")
	ErrInvalidLimit = errors.New("limit must be an integer between 1 and 100")
	ErrInvalidData  = errors.New("invalid data format")

	// Storage
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCacheUnavailable   = errors.New("cache unavailable")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Lifecycle
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// PartialBatchError reports a store batch insert that partially failed.
// The successful subset is kept by the caller; the failed subset is
// logged with a count and not retried.
type PartialBatchError struct {
	Inserted int
	Failed   int
	Errs     []error
}

// Error implements the error interface
func (pe *PartialBatchError) Error() string {
	return fmt.Sprintf("partial batch insert: %d inserted, %d failed", pe.Inserted, pe.Failed)
}

// Unwrap exposes the underlying row errors for errors.Is/As
func (pe *PartialBatchError) Unwrap() []error {
	return pe.Errs
}

// IsPartialBatch checks whether an error is a partial batch failure
func IsPartialBatch(err error) bool {
	var pe *PartialBatchError
	return errors.As(err, &pe)
}

// IsTransient checks if an error is a transient adapter failure
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrCacheUnavailable)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrBodyRequired) ||
		errors.Is(err, ErrBodyTooLong) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidData)
}

// IsFatal checks if an error is fatal and should stop the process
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	// Default to transient so unknown adapter errors stay non-fatal
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient, WrapFatal, or WrapInvalid instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

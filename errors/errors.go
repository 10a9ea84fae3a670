package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass tells a caller how to react to a failure: retry it, reject
// it, or stop.
type ErrorClass int

const (
	// ErrorTransient marks failures worth retrying.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid marks failures caused by the input; retrying cannot help.
	ErrorInvalid
	// ErrorFatal marks failures the component cannot recover from.
	ErrorFatal
)

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

// Component lifecycle sentinels.
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
)

// Connection sentinels, shared by the NATS client and the store.
var (
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// Pipeline decision sentinels. Each maps to the HTTP status the gateway
// answers with when a request is rejected at that stage: unauthorized
// 401, rate limited 429, service not found 404, circuit open 503,
// dispatch timeout 504, downstream failure 500.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrServiceNotFound = errors.New("service not found")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrDispatchTimeout = errors.New("dispatch timed out")
	ErrDownstream      = errors.New("downstream call failed")
)

// Data and storage sentinels.
var (
	ErrInvalidData        = errors.New("invalid data format")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// sentinelClasses assigns a class to each well-known sentinel. Consulted
// after an explicit ClassifiedError, before the message heuristics.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionLost, ErrorTransient},
	{ErrConnectionTimeout, ErrorTransient},
	{ErrStorageUnavailable, ErrorTransient},
	{ErrCircuitOpen, ErrorTransient},
	{ErrDispatchTimeout, ErrorTransient},
	{ErrDownstream, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrUnauthorized, ErrorInvalid},
	{ErrRateLimited, ErrorInvalid},
	{ErrServiceNotFound, ErrorInvalid},
	{ErrInvalidData, ErrorInvalid},
}

// Message heuristics for errors that arrive unclassified from third-party
// code. Last resort: explicit classification always wins.
var (
	transientHints = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy", "retry"}
	fatalHints     = []string{"fatal", "panic", "invalid config", "missing config", "out of memory", "disk full"}
)

// ClassifiedError attaches a class and the owning component/operation
// to an underlying error.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf reports the explicit class of err: a ClassifiedError anywhere
// in the chain, or a known sentinel. ok is false when err carries no
// explicit classification.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	return 0, false
}

func hintsMatch(err error, hints []string) bool {
	msg := strings.ToLower(err.Error())
	for _, h := range hints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	return hintsMatch(err, transientHints)
}

// IsInvalid reports whether err was caused by the input. Unclassified
// errors are never invalid; there is no safe message heuristic for
// rejecting work.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	class, ok := classOf(err)
	return ok && class == ErrorInvalid
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return hintsMatch(err, fatalHints)
}

// Wrap adds "component.method: action failed" context. Classification,
// if any, is preserved through the chain.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it retryable.
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it as caused by the input.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with context and marks it unrecoverable.
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, err, component, method, action)
}

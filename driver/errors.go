package driver

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupported is returned (possibly wrapped) for operations a backend cannot perform.
var ErrUnsupported = errors.New("operation not supported by this backend")

// SessionCreationError means the remote end refused to create a session. This is distinct
// from a failure to reach the remote end at all. Message is the remote end's own text.
type SessionCreationError struct {
	Message string
}

func (e SessionCreationError) Error() string {
	if strings.HasPrefix(e.Message, "session not created") {
		return e.Message
	}
	return "session not created: " + e.Message
}

// NavigationError means a page could not be loaded.
type NavigationError struct {
	URL string
	Err error
}

func (e NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Err)
}

func (e NavigationError) Unwrap() error { return e.Err }

// NotFoundError means an element, window or frame does not exist.
type NotFoundError struct {
	What string
}

func (e NotFoundError) Error() string {
	return "no such " + e.What
}

// TimeoutError means the remote end gave up waiting for something.
type TimeoutError struct {
	Operation string
	Limit     time.Duration
}

func (e TimeoutError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Operation, e.Limit)
	}
	return e.Operation + " timed out"
}

// ProtocolError is any other error reported by the remote end.
type ProtocolError struct {
	Code    string
	Message string
}

func (e ProtocolError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func IsNotFound(err error) bool {
	var e NotFoundError
	return errors.As(err, &e)
}

func IsTimeout(err error) bool {
	var e TimeoutError
	return errors.As(err, &e)
}

func IsSessionCreation(err error) bool {
	var e SessionCreationError
	return errors.As(err, &e)
}

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

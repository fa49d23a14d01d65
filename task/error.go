package task

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Class tells the executor whether a failure may succeed on retry.
type Class int

const (
	// ClassPermanent failures are returned immediately.
	ClassPermanent Class = iota
	// ClassTransient failures are retried with backoff.
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// Error is a classified collaborator failure.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure of op.
func Transient(op string, err error) error {
	return &Error{Class: ClassTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable failure of op.
func Permanent(op string, err error) error {
	return &Error{Class: ClassPermanent, Op: op, Err: err}
}

// ClassOf classifies err. Classified errors keep their class, deadline and
// network timeouts are transient, and anything else is permanent.
func ClassOf(err error) Class {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	return ClassPermanent
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && ClassOf(err) == ClassTransient
}

// FromStatus classifies an unsuccessful HTTP response. 408, 425, 429 and
// 5xx are transient; every other status is permanent.
func FromStatus(op string, code int, body string) error {
	err := fmt.Errorf("status %d: %s", code, body)
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code >= 500:
		return Transient(op, err)
	default:
		return Permanent(op, err)
	}
}

// File: api/errors.go
// Package api
// License: Apache-2.0
//
// Error taxonomy shared by the scheduler, the buffer pool and the client layer.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrPoolClosed        = errors.New("buffer pool is closed")
	ErrProcessorClosed   = errors.New("work processor is closed")
	ErrClientClosed      = errors.New("client is closed")
	ErrInvalidArgument   = errors.New("invalid argument")

	ErrProtocolViolation = errors.New("protocol violation")
	ErrDoubleRecycle     = errors.New("buffer recycled twice")
	ErrForeignBuffer     = errors.New("buffer belongs to another provider")
	ErrDoubleComplete    = errors.New("work item completed twice")
	ErrAlreadyBound      = errors.New("already bound")
	ErrNotBound          = errors.New("work item is not bound to a chain")
	ErrNotCurrent        = errors.New("completed item is not the chain's current item")
	ErrChainStarted      = errors.New("work chain already started")
	ErrChainComplete     = errors.New("work chain already complete")
	ErrNoProcessor       = errors.New("work item has no planned processor")
	ErrWrongProcessor    = errors.New("work item executed on a foreign processor")

	ErrWorkerFailure = errors.New("worker failure")
	ErrChainAborted  = errors.New("work chain aborted")
)

// ErrorCode classifies an error by the party responsible for it.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeProtocolViolation
	ErrCodeWorkerFailure
	ErrCodeAborted
	ErrCodeClosed
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeProtocolViolation:
		return "protocol_violation"
	case ErrCodeWorkerFailure:
		return "worker_failure"
	case ErrCodeAborted:
		return "aborted"
	case ErrCodeClosed:
		return "closed"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped sentinel for errors.Is.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error around err.
func Wrap(code ErrorCode, err error, message string) *Error {
	e := NewError(code, message)
	e.Err = err
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ProtocolViolation wraps one of the contract sentinels.
func ProtocolViolation(err error) *Error {
	return Wrap(ErrCodeProtocolViolation, err, ErrProtocolViolation.Error())
}

// WorkerFailure wraps a failure raised while running a work item. A recovered
// panic value that is not an error is formatted into the message.
func WorkerFailure(cause any) *Error {
	switch v := cause.(type) {
	case *Error:
		if v.Code == ErrCodeWorkerFailure {
			return v
		}
		return Wrap(ErrCodeWorkerFailure, v, ErrWorkerFailure.Error())
	case error:
		return Wrap(ErrCodeWorkerFailure, v, ErrWorkerFailure.Error())
	default:
		return Wrap(ErrCodeWorkerFailure, ErrWorkerFailure, fmt.Sprintf("panic: %v", v))
	}
}

// CodeOf returns the code of the first *Error in err's chain, mapping bare
// sentinels onto their category.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrResourceExhausted):
		return ErrCodeResourceExhausted
	case errors.Is(err, ErrDoubleRecycle),
		errors.Is(err, ErrForeignBuffer),
		errors.Is(err, ErrDoubleComplete),
		errors.Is(err, ErrAlreadyBound),
		errors.Is(err, ErrNotBound),
		errors.Is(err, ErrNotCurrent),
		errors.Is(err, ErrChainStarted),
		errors.Is(err, ErrChainComplete),
		errors.Is(err, ErrNoProcessor),
		errors.Is(err, ErrWrongProcessor),
		errors.Is(err, ErrProtocolViolation):
		return ErrCodeProtocolViolation
	case errors.Is(err, ErrWorkerFailure):
		return ErrCodeWorkerFailure
	case errors.Is(err, ErrChainAborted):
		return ErrCodeAborted
	case errors.Is(err, ErrPoolClosed),
		errors.Is(err, ErrProcessorClosed),
		errors.Is(err, ErrClientClosed):
		return ErrCodeClosed
	case errors.Is(err, ErrInvalidArgument):
		return ErrCodeInvalidArgument
	}
	return ErrCodeInternal
}

// IsProtocolViolation reports whether err is a programming-contract failure.
func IsProtocolViolation(err error) bool { return CodeOf(err) == ErrCodeProtocolViolation }

// IsResourceExhausted reports whether err is a recoverable capacity failure.
func IsResourceExhausted(err error) bool { return CodeOf(err) == ErrCodeResourceExhausted }

// IsWorkerFailure reports whether err was raised by a running work item.
func IsWorkerFailure(err error) bool { return CodeOf(err) == ErrCodeWorkerFailure }

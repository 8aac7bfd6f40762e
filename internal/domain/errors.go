package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers never dispatch on message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindResolution
	KindTimeout
	KindTooLarge
	KindRejected
	KindBlocked
	KindConnectivity
	KindRegistry
)

var kindNames = map[ErrorKind]string{
	KindUnknown:      "unknown",
	KindValidation:   "validation",
	KindResolution:   "resolution",
	KindTimeout:      "timeout",
	KindTooLarge:     "too_large",
	KindRejected:     "rejected",
	KindBlocked:      "blocked",
	KindConnectivity: "connectivity",
	KindRegistry:     "registry",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Description carries the remote side's
// explanation (e.g. a Bot API description) and is only diagnostic.
type Error struct {
	Kind        ErrorKind
	Op          string
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Description
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error wrapping err.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// DescriptionOf returns the description of the outermost *Error in err's
// chain, falling back to err.Error().
func DescriptionOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Description != "" {
		return e.Description
	}
	return err.Error()
}

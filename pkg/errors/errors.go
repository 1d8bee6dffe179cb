package errors

import (
	stdErrors "errors"
	"fmt"
)

// Code classifies a failure by the subsystem or rule that produced it.
type Code string

const (
	// CodeLocalStore covers I/O or constraint failures from the on-device
	// relational store.
	CodeLocalStore Code = "LOCAL_STORE_ERROR"
	// CodeRemote covers network, permission, or serialization failures from
	// the realtime backend.
	CodeRemote Code = "REMOTE_ERROR"
	// CodeValidation covers caller-supplied entities missing a required
	// field or relation.
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Metadata carries presentation hints for a code. PublicMessage is the short
// human-readable string surfaced on UI state when a write fails.
type Metadata struct {
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeLocalStore: {
		Retryable:     false,
		PublicMessage: "could not save on this device",
	},
	CodeRemote: {
		Retryable:     true,
		PublicMessage: "could not reach the shared list",
	},
	CodeValidation: {
		Retryable:     false,
		PublicMessage: "validation failed",
	},
	CodeNotFound: {
		Retryable:     false,
		PublicMessage: "not found",
	},
	CodeInternal: {
		Retryable:     true,
		PublicMessage: "something went wrong",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf extracts the Code from any error produced by this package,
// defaulting to CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

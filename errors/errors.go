// Package errors defines the coded errors the checker reports. Only CodeConfig
// is fatal for a check; network and parse failures are swallowed at the
// checker boundary and only show up in logs.
package errors

import "errors"

// Code identifies a structured error type.
type Code string

const (
	CodeUnknown Code = "unknown"

	// CodeConfig covers an unreadable manifest or a bad release identity.
	CodeConfig Code = "configuration_error"
	// CodeNetwork covers transport failures, timeouts and non-success statuses.
	CodeNetwork Code = "network_error"
	// CodeParse covers malformed or unexpected response bodies.
	CodeParse Code = "parse_error"
	// CodeNoUpdate is the normal "nothing to do" outcome. Log use only.
	CodeNoUpdate Code = "no_update_available"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// Config is shorthand for New(CodeConfig, ...).
func Config(msg string, err error) Error {
	return New(CodeConfig, msg, err)
}

// Network is shorthand for New(CodeNetwork, ...).
func Network(msg string, err error) Error {
	return New(CodeNetwork, msg, err)
}

// Parse is shorthand for New(CodeParse, ...).
func Parse(msg string, err error) Error {
	return New(CodeParse, msg, err)
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsFatal reports whether err must abort the current check.
func IsFatal(err error) bool {
	return IsCode(err, CodeConfig)
}

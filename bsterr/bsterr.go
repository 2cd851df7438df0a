// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bsterr defines the small typed-error hierarchy this codebase
// uses throughout, and the CLI exit-code mapping its command-line tools share.
package bsterr

import (
	"errors"
	"fmt"
)

// Kind is one of the five error kinds this codebase distinguishes.
type Kind int

const (
	InvalidInput Kind = iota
	FormatError
	IoError
	OutOfRange
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case FormatError:
		return "FormatError"
	case IoError:
		return "IoError"
	case OutOfRange:
		return "OutOfRange"
	case Unsupported:
		return "Unsupported"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying error with a Kind and optional context
// (the builder surfaces the first error with file/line
// context").
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given Kind and context.
func New(kind Kind, context string, err error) *Error {
	return &Error{Kind: kind, Context: context, Err: err}
}

// ExitCode maps a Kind to the CLI exit code its command-line tools return:
// 1 user error, 2 I/O error, 3 corruption. Unsupported is a user
// error (1).
func (k Kind) ExitCode() int {
	switch k {
	case InvalidInput, Unsupported:
		return 1
	case IoError:
		return 2
	case FormatError:
		return 3
	case OutOfRange:
		return 1
	default:
		return 1
	}
}

// ExitCodeFor inspects err for a *Error and returns its exit code, or
// 1 (generic user error) if err doesn't carry a Kind.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.ExitCode()
	}
	return 1
}

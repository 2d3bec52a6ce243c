package toolchain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolchain matches every error produced by this package via errors.Is.
var ErrToolchain = errors.New("toolchain error")

// Error is a toolchain failure with an optional underlying cause.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrToolchain }

func errorf(cause error, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Err: cause}
}

// NotFoundError reports that every provider in a selection chain came up empty.
type NotFoundError struct {
	Tried []Kind
}

func (e *NotFoundError) Error() string {
	names := make([]string, len(e.Tried))
	for i, k := range e.Tried {
		names[i] = string(k)
	}
	return fmt.Sprintf("no suitable toolchain found. Tried: %s. "+
		"Please install a cross-compiler toolchain or Xilinx Vivado/Vitis", strings.Join(names, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrToolchain }

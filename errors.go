package nnet

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfig is the cause of errors raised by malformed component
	// configurations and prototypes.
	ErrConfig = errors.New("bad component configuration")
	// ErrWidth is the cause of errors raised when the dimensions of connected
	// components or branches do not add up.
	ErrWidth = errors.New("dimension mismatch")
	// ErrShape is the cause of errors raised when a matrix handed to a network
	// does not have the expected number of columns.
	ErrShape = errors.New("shape mismatch")
)

type manyErr []error

func (err manyErr) Error() string {
	var buf bytes.Buffer
	for _, e := range err {
		fmt.Fprintln(&buf, e.Error())
	}
	return buf.String()
}

// Cause returns the cause of the first error.
func (err manyErr) Cause() error {
	if len(err) == 0 {
		return nil
	}
	return errors.Cause(err[0])
}

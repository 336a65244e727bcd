package main

import (
	"errors"
	"fmt"

	"github.com/dreamware/nudge/internal/hint"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1 // the leader rejected the call
	exitUsage       = 2 // bad flags, config or input files
	exitUnavailable = 3 // no leader reachable; retrying may help
)

// exitError attaches an exit code to an error.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(msg string, err error) error {
	return &exitError{code: exitUsage, msg: msg, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if hint.IsCode(err, hint.CodeUnavailable) {
		return exitUnavailable
	}
	return exitFailure
}

package vos

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("vos: session not found")

	// ErrSessionExists is returned when creating a session twice.
	ErrSessionExists = errors.New("vos: session already exists")

	// ErrProcessNotFound indicates the requested pid does not exist.
	ErrProcessNotFound = errors.New("vos: process not found")
)

// Exit codes with a fixed meaning.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitError     = 2
	ExitNotFound  = 127
	ExitInterrupt = 130
	ExitKilled    = 137
	ExitPipe      = 141
)

// Unlimited is the depth of a KillError that unwinds every frame.
const Unlimited = -1

// Signal identifies why a process was killed.
type Signal int

const (
	SIGKILL Signal = iota
	SIGINT
	SIGPIPE
	SIGSTOP
	SIGCONT
)

func (s Signal) String() string {
	switch s {
	case SIGKILL:
		return "SIGKILL"
	case SIGINT:
		return "SIGINT"
	case SIGPIPE:
		return "SIGPIPE"
	case SIGSTOP:
		return "SIGSTOP"
	case SIGCONT:
		return "SIGCONT"
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// ShellError is a recoverable error. It stops the current command, which
// exits with Code after Msg is written to its stderr.
type ShellError struct {
	Msg  string
	Code int
}

func (e *ShellError) Error() string {
	return e.Msg
}

// Errorf creates a ShellError with a formatted message.
func Errorf(code int, format string, a ...interface{}) error {
	return &ShellError{Msg: fmt.Sprintf(format, a...), Code: code}
}

// KillError unwinds a process instead of being handled at command
// boundaries. Every process boundary it crosses decrements a positive Depth
// and absorbs the error once Depth reaches zero.
type KillError struct {
	Signal     Signal
	PID        int
	SessionKey string
	Code       int
	Depth      int
}

func (e *KillError) Error() string {
	return fmt.Sprintf("%s: pid %d in session %q (exit %d)", e.Signal, e.PID, e.SessionKey, e.Code)
}

// Hop returns the error as seen by the next frame out. The bool is true
// when the error is absorbed at this boundary.
func (e *KillError) Hop() (*KillError, bool) {
	if e.Depth == Unlimited {
		return e, false
	}
	next := *e
	next.Depth--
	return &next, next.Depth <= 0
}

// AsKill extracts a KillError from err.
func AsKill(err error) (*KillError, bool) {
	var kill *KillError
	if errors.As(err, &kill) {
		return kill, true
	}
	return nil, false
}

// ExitCodeOf converts an error into the exit code of the command that
// returned it.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitOK
	}

	var shellErr *ShellError
	if errors.As(err, &shellErr) {
		return shellErr.Code
	}

	if kill, ok := AsKill(err); ok {
		return kill.Code
	}

	return ExitError
}

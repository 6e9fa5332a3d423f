package vos

import (
	"fmt"

	"mvdan.cc/sh/v3/syntax"
)

// Func is a shell function defined in a session.
type Func struct {
	Name string
	Body *syntax.Stmt
	// Src is the printed definition.
	Src string
}

// EventKind is a lifecycle notification emitted for group leaders.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventPaused  EventKind = "paused"
	EventResumed EventKind = "resumed"
	EventEnded   EventKind = "ended"
)

// Event describes a lifecycle change of a process group leader.
type Event struct {
	Kind       EventKind
	SessionKey string
	PID        int
	Src        string
}

// Name renders the event for the front end: the session leader reports
// interactive state, other leaders report process state.
func (e Event) Name() string {
	if e.PID == 0 {
		return fmt.Sprintf("interactive-%s", e.Kind)
	}
	return fmt.Sprintf("process-leader-%s", e.Kind)
}

// SessionOpts configures a new session.
type SessionOpts struct {
	// Home seeds the variable tree, e.g. from a persisted snapshot.
	Home map[string]any
	// History seeds the command history.
	History []string
	// OnEvent receives lifecycle notifications. It is called without
	// registry locks held.
	OnEvent func(Event)
}

// Session owns a process tree, its functions and its variables. All fields
// are guarded by the owning Registry.
type Session struct {
	Key    string
	TTYKey string

	procs    map[int]*Process
	order    []int
	funcs    map[string]*Func
	home     map[string]any
	nextPID  int
	lastExit [2]int
	history  []string
	links    map[string]func()
	onEvent  func(Event)
}

func (s *Session) emit(events []Event) {
	if s.onEvent == nil {
		return
	}
	for _, e := range events {
		s.onEvent(e)
	}
}

func (s *Session) removeFromOrder(pid int) {
	for i, v := range s.order {
		if v == pid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

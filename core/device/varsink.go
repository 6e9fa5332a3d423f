package device

import (
	"context"
	"fmt"
	"sync"
)

// SinkMode selects how a VarSink stores written values.
type SinkMode int

const (
	// ModeLast overwrites the variable with the most recent value.
	ModeLast SinkMode = iota
	// ModeArray appends to the variable, creating an array if needed.
	ModeArray
	// ModeFreshArray replaces the variable with a new array on the first
	// write after the sink was created, then appends.
	ModeFreshArray
)

func (m SinkMode) String() string {
	switch m {
	case ModeLast:
		return "last"
	case ModeArray:
		return "array"
	case ModeFreshArray:
		return "fresh-array"
	}
	return fmt.Sprintf("SinkMode(%d)", int(m))
}

// VarStore gives a sink access to the variables of the writing process.
type VarStore interface {
	Get(path string) (any, bool)
	Set(path string, v any) error
}

// VarSink writes values into the variable tree.
type VarSink struct {
	key   string
	store VarStore
	path  string
	mode  SinkMode

	mu      sync.Mutex
	written bool
}

var _ Device = (*VarSink)(nil)

// NewVarSink creates a sink writing to path.
func NewVarSink(key string, store VarStore, path string, mode SinkMode) *VarSink {
	return &VarSink{
		key:   key,
		store: store,
		path:  path,
		mode:  mode,
	}
}

func (s *VarSink) Key() string { return s.key }

// ReadData implements Device, sinks are never readable.
func (s *VarSink) ReadData(context.Context, ReadOpts) (ReadResult, error) {
	return ReadResult{EOF: true}, nil
}

// WriteData implements Device. Chunks are stored item by item.
func (s *VarSink) WriteData(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range Items(v) {
		if err := s.write(item); err != nil {
			return err
		}
	}
	return nil
}

func (s *VarSink) write(v any) error {
	fresh := !s.written
	s.written = true

	switch s.mode {
	case ModeLast:
		return s.store.Set(s.path, v)
	case ModeFreshArray:
		if fresh {
			return s.store.Set(s.path, []any{v})
		}
	}

	prev, _ := s.store.Get(s.path)
	arr, ok := prev.([]any)
	if !ok {
		return s.store.Set(s.path, []any{v})
	}
	out := make([]any, len(arr), len(arr)+1)
	copy(out, arr)
	return s.store.Set(s.path, append(out, v))
}

func (s *VarSink) FinishedReading() {}

func (s *VarSink) FinishedWriting() {}

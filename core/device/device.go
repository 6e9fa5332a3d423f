// Package device implements the read/write contract processes use for IO.
//
// Every file descriptor of a process points at a device by key. A device
// carries values rather than bytes: strings, numbers, structured JSON-like
// data and batches of them.
package device

import (
	"context"
	"errors"
)

var (
	// ErrReaderClosed is returned by writes after the reading side finished.
	ErrReaderClosed = errors.New("device: reader closed")
	// ErrWriterClosed is returned by writes after the writing side finished.
	ErrWriterClosed = errors.New("device: writer closed")
)

// Well known device keys.
const (
	KeyNull  = "/dev/null"
	KeyVoice = "/dev/voice"
)

// ReadOpts controls a single ReadData call.
type ReadOpts struct {
	// Once makes the read return immediately with whatever is buffered.
	Once bool
	// WantChunks coalesces everything buffered into a single Chunk.
	WantChunks bool
}

// ReadResult is the outcome of a read.
type ReadResult struct {
	Data    any
	HasData bool
	EOF     bool
}

// Chunk is a batch of values returned by reads with WantChunks set.
type Chunk struct {
	Items []any
}

// Device is the uniform contract implemented by pipes, sinks and terminals.
type Device interface {
	Key() string

	// ReadData blocks until a value is available, the writer finished or the
	// context is done, in which case the context's cause is returned.
	ReadData(ctx context.Context, opts ReadOpts) (ReadResult, error)
	// WriteData delivers v, blocking while the device applies backpressure.
	WriteData(ctx context.Context, v any) error

	// FinishedReading and FinishedWriting are idempotent half-close signals.
	FinishedReading()
	FinishedWriting()
}

// Items flattens a value that may be a Chunk.
func Items(v any) []any {
	if c, ok := v.(Chunk); ok {
		return c.Items
	}
	return []any{v}
}

func cause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

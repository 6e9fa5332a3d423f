package device

import (
	"context"
	"sync"
)

// FIFO is an ordered, optionally bounded queue connecting a writer to a
// reader. It is used between pipeline stages and to collect the output of
// command substitutions.
type FIFO struct {
	key  string
	size int

	mu        sync.Mutex
	buf       []any
	readDone  bool
	writeDone bool
	// changed is closed and replaced whenever the state above changes.
	changed chan struct{}
}

var _ Device = (*FIFO)(nil)

// NewFIFO creates a FIFO holding at most size values, size <= 0 is unbounded.
func NewFIFO(key string, size int) *FIFO {
	return &FIFO{
		key:     key,
		size:    size,
		changed: make(chan struct{}),
	}
}

// Key implements Device.
func (f *FIFO) Key() string {
	return f.key
}

// must be called with f.mu held.
func (f *FIFO) broadcast() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// ReadData implements Device.
func (f *FIFO) ReadData(ctx context.Context, opts ReadOpts) (ReadResult, error) {
	for {
		f.mu.Lock()
		if len(f.buf) > 0 {
			var out any
			if opts.WantChunks {
				out = Chunk{Items: f.buf}
				f.buf = nil
			} else {
				out = f.buf[0]
				f.buf[0] = nil
				f.buf = f.buf[1:]
			}
			f.broadcast()
			f.mu.Unlock()
			return ReadResult{Data: out, HasData: true}, nil
		}

		if f.writeDone || f.readDone {
			f.mu.Unlock()
			return ReadResult{EOF: true}, nil
		}

		if opts.Once {
			f.mu.Unlock()
			return ReadResult{}, nil
		}

		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ReadResult{}, cause(ctx)
		}
	}
}

// WriteData implements Device.
func (f *FIFO) WriteData(ctx context.Context, v any) error {
	for {
		f.mu.Lock()
		switch {
		case f.readDone:
			f.mu.Unlock()
			return ErrReaderClosed
		case f.writeDone:
			f.mu.Unlock()
			return ErrWriterClosed
		case f.size <= 0 || len(f.buf) < f.size:
			f.buf = append(f.buf, v)
			f.broadcast()
			f.mu.Unlock()
			return nil
		}

		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return cause(ctx)
		}
	}
}

// ReadAll drains every buffered value without blocking.
func (f *FIFO) ReadAll() []any {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.buf
	f.buf = nil
	f.broadcast()
	return out
}

// Len returns the number of buffered values.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// FinishedReading implements Device, buffered values are dropped.
func (f *FIFO) FinishedReading() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readDone {
		return
	}
	f.readDone = true
	f.buf = nil
	f.broadcast()
}

// FinishedWriting implements Device.
func (f *FIFO) FinishedWriting() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeDone {
		return
	}
	f.writeDone = true
	f.broadcast()
}

// Closed reports whether both sides half-closed.
func (f *FIFO) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readDone && f.writeDone
}

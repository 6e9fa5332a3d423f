package device

import "context"

// Null reads EOF and discards writes.
type Null struct{}

var _ Device = Null{}

func (Null) Key() string { return KeyNull }

func (Null) ReadData(context.Context, ReadOpts) (ReadResult, error) {
	return ReadResult{EOF: true}, nil
}

func (Null) WriteData(context.Context, any) error { return nil }

func (Null) FinishedReading() {}

func (Null) FinishedWriting() {}

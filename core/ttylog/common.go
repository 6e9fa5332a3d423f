// Package ttylog records terminal sessions and plays them back.
package ttylog

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// FD identifies the stream an entry belongs to.
type FD int

const (
	FDStdin  FD = 0
	FDStdout FD = 1
	FDStderr FD = 2
)

// Entry is one recorded terminal event.
type Entry struct {
	TimestampMicros int64
	FD              FD
	Data            []byte
}

// LogSink receives log events.
type LogSink func(e *Entry) error

// LogSource adapts log readers.
type LogSource interface {
	// Next fetches the next available log entry. It returns io.EOF if the
	// source has no more log entries.
	Next() (*Entry, error)
}

// NewRealTimePlayback plays back the results in real-time.
// If maxSleep > 0, it's used as the maximum duration to pause.
func NewRealTimePlayback(maxSleep time.Duration, next LogSink) LogSink {
	var once sync.Once
	var prevTimeMicros int64

	return func(logEntry *Entry) error {
		once.Do(func() {
			prevTimeMicros = logEntry.TimestampMicros
		})

		delta := logEntry.TimestampMicros - prevTimeMicros
		prevTimeMicros = logEntry.TimestampMicros

		if maxSleep > 0 {
			sleepDuration := time.Duration(delta) * time.Microsecond
			if sleepDuration > maxSleep {
				sleepDuration = maxSleep
			}
			time.Sleep(sleepDuration)
		}

		return next(logEntry)
	}
}

// NewClientOutput writes stdout and stderr to the given writer.
func NewClientOutput(w io.Writer) LogSink {
	return func(logEntry *Entry) error {
		if logEntry.FD == FDStdin {
			return nil
		}
		_, err := w.Write(logEntry.Data)
		return err
	}
}

// Replay reads a stream of events to a callback.
func Replay(recording LogSource, callback LogSink) error {
	for {
		logEntry, err := recording.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if err := callback(logEntry); err != nil {
			return err
		}
	}
}

// Recorder timestamps terminal traffic and forwards it to a sink.
type Recorder struct {
	mutex  sync.Mutex
	output LogSink
	log    *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder that forwards all events to output.
func NewRecorder(output LogSink, log *slog.Logger) *Recorder {
	return &Recorder{
		output: output,
		log:    log,
		now:    time.Now,
	}
}

// Record forwards data as an event on fd. Sink failures are only logged.
func (r *Recorder) Record(fd FD, data []byte) {
	if len(data) == 0 {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	err := r.output(&Entry{
		TimestampMicros: r.now().UnixMicro(),
		FD:              fd,
		Data:            append([]byte(nil), data...),
	})
	if err != nil {
		r.log.Warn("recording failed", "err", err)
	}
}

// Writer wraps w so everything written to it is recorded as fd.
func (r *Recorder) Writer(fd FD, w io.Writer) io.Writer {
	return &recorderWriter{r: r, fd: fd, wrapped: w}
}

type recorderWriter struct {
	r       *Recorder
	fd      FD
	wrapped io.Writer
}

var _ io.Writer = (*recorderWriter)(nil)

func (rw *recorderWriter) Write(p []byte) (int, error) {
	n, err := rw.wrapped.Write(p)
	rw.r.Record(rw.fd, p[:n])
	return n, err
}

// Reader wraps r so everything read from it is recorded as fd.
func (r *Recorder) Reader(fd FD, rd io.Reader) io.Reader {
	return &recorderReader{r: r, fd: fd, wrapped: rd}
}

type recorderReader struct {
	r       *Recorder
	fd      FD
	wrapped io.Reader
}

var _ io.Reader = (*recorderReader)(nil)

func (rr *recorderReader) Read(p []byte) (int, error) {
	n, err := rr.wrapped.Read(p)
	rr.r.Record(rr.fd, p[:n])
	return n, err
}

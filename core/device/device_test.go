package device

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO_drainsBeforeEOF(t *testing.T) {
	ctx := context.Background()
	fifo := NewFIFO("fifo", 0)

	for _, v := range []any{"a", 1.0, map[string]any{"b": true}} {
		require.NoError(t, fifo.WriteData(ctx, v))
	}
	fifo.FinishedWriting()
	fifo.FinishedWriting()

	var got []any
	for {
		res, err := fifo.ReadData(ctx, ReadOpts{})
		require.NoError(t, err)
		if res.EOF {
			break
		}
		require.True(t, res.HasData)
		got = append(got, res.Data)
	}

	assert.Equal(t, []any{"a", 1.0, map[string]any{"b": true}}, got)
	assert.ErrorIs(t, fifo.WriteData(ctx, "late"), ErrWriterClosed)
}

func TestFIFO_chunks(t *testing.T) {
	ctx := context.Background()
	fifo := NewFIFO("fifo", 0)
	require.NoError(t, fifo.WriteData(ctx, "a"))
	require.NoError(t, fifo.WriteData(ctx, "b"))

	res, err := fifo.ReadData(ctx, ReadOpts{WantChunks: true})
	require.NoError(t, err)
	assert.Equal(t, Chunk{Items: []any{"a", "b"}}, res.Data)
	assert.Equal(t, []any{"a", "b"}, Items(res.Data))
	assert.Equal(t, []any{"c"}, Items("c"))
}

func TestFIFO_once(t *testing.T) {
	fifo := NewFIFO("fifo", 0)

	res, err := fifo.ReadData(context.Background(), ReadOpts{Once: true})
	require.NoError(t, err)
	assert.False(t, res.HasData)
	assert.False(t, res.EOF)
}

func TestFIFO_blocksUntilWrite(t *testing.T) {
	ctx := context.Background()
	fifo := NewFIFO("fifo", 0)

	done := make(chan ReadResult)
	go func() {
		res, _ := fifo.ReadData(ctx, ReadOpts{})
		done <- res
	}()

	select {
	case <-done:
		t.Fatal("read returned before any write")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, fifo.WriteData(ctx, "x"))
	assert.Equal(t, "x", (<-done).Data)
}

func TestFIFO_backpressure(t *testing.T) {
	ctx := context.Background()
	fifo := NewFIFO("fifo", 1)
	require.NoError(t, fifo.WriteData(ctx, 1.0))

	written := make(chan error)
	go func() {
		written <- fifo.WriteData(ctx, 2.0)
	}()

	select {
	case <-written:
		t.Fatal("write past capacity did not block")
	case <-time.After(20 * time.Millisecond):
	}

	res, err := fifo.ReadData(ctx, ReadOpts{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Data)
	require.NoError(t, <-written)
	assert.Equal(t, 1, fifo.Len())
	assert.Equal(t, []any{2.0}, fifo.ReadAll())
}

func TestFIFO_cancelReturnsCause(t *testing.T) {
	killed := errors.New("killed")
	ctx, cancel := context.WithCancelCause(context.Background())
	fifo := NewFIFO("fifo", 0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel(killed)
	}()

	_, err := fifo.ReadData(ctx, ReadOpts{})
	assert.ErrorIs(t, err, killed)
}

func TestFIFO_halfClose(t *testing.T) {
	ctx := context.Background()
	fifo := NewFIFO("fifo", 0)
	require.NoError(t, fifo.WriteData(ctx, "dropped"))

	fifo.FinishedReading()
	assert.ErrorIs(t, fifo.WriteData(ctx, "x"), ErrReaderClosed)
	assert.False(t, fifo.Closed())

	fifo.FinishedWriting()
	assert.True(t, fifo.Closed())
}

func TestNull(t *testing.T) {
	var null Null
	require.NoError(t, null.WriteData(context.Background(), "x"))
	res, err := null.ReadData(context.Background(), ReadOpts{})
	require.NoError(t, err)
	assert.True(t, res.EOF)
}

type mapStore map[string]any

func (m mapStore) Get(path string) (any, bool) {
	v, ok := m[path]
	return v, ok
}

func (m mapStore) Set(path string, v any) error {
	m[path] = v
	return nil
}

func TestVarSink(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		mode     SinkMode
		initial  any
		expected any
	}{
		{ModeLast, "old", "b"},
		{ModeArray, []any{"old"}, []any{"old", "a", "b"}},
		{ModeArray, nil, []any{"a", "b"}},
		{ModeFreshArray, []any{"old"}, []any{"a", "b"}},
	}

	for _, tc := range cases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			store := mapStore{}
			if tc.initial != nil {
				store["x"] = tc.initial
			}
			sink := NewVarSink("sink", store, "x", tc.mode)

			require.NoError(t, sink.WriteData(ctx, "a"))
			require.NoError(t, sink.WriteData(ctx, "b"))

			assert.Equal(t, tc.expected, store["x"])
		})
	}
}

func TestVarSink_spreadsChunks(t *testing.T) {
	store := mapStore{}
	sink := NewVarSink("sink", store, "x", ModeArray)

	require.NoError(t, sink.WriteData(context.Background(), Chunk{Items: []any{1.0, 2.0}}))
	assert.Equal(t, []any{1.0, 2.0}, store["x"])
}

func TestVoice(t *testing.T) {
	var said []string
	voice := NewVoice(SpeakerFunc(func(_ context.Context, text string) error {
		said = append(said, text)
		return nil
	}), 0)

	require.NoError(t, voice.WriteData(context.Background(), Chunk{Items: []any{"hello there", "", 3.0}}))
	assert.Equal(t, []string{"hello there", "3"}, said)
}

func TestVoice_pacingHonorsContext(t *testing.T) {
	voice := NewVoice(NewWriterSpeaker(&bytes.Buffer{}), 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, voice.WriteData(ctx, "one"))
	err := voice.WriteData(ctx, "two three four five")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminal_render(t *testing.T) {
	out := &bytes.Buffer{}
	term := NewTerminal("tty", out, TerminalOpts{CRLF: true})

	require.NoError(t, term.WriteData(context.Background(), "a\nb"))
	require.NoError(t, term.WriteData(context.Background(), map[string]any{"k": 1.0}))

	assert.Equal(t, "a\r\nb\r\n{\r\n  \"k\": 1\r\n}\r\n", out.String())
	assert.Equal(t, map[string]any{"k": 1.0}, term.Last())
}

func TestTerminal_provide(t *testing.T) {
	term := NewTerminal("tty", &bytes.Buffer{}, TerminalOpts{})
	assert.False(t, term.Provide("nobody"))

	got := make(chan ReadResult)
	go func() {
		res, _ := term.ReadData(context.Background(), ReadOpts{})
		got <- res
	}()

	require.Eventually(t, term.Waiting, time.Second, time.Millisecond)
	assert.True(t, term.Provide("hello"))
	assert.Equal(t, "hello", (<-got).Data)

	term.Close()
	res, err := term.ReadData(context.Background(), ReadOpts{})
	require.NoError(t, err)
	assert.True(t, res.EOF)
}

package device

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/josephlewis42/npcsh/core/vars"
)

// TerminalOpts configures rendering.
type TerminalOpts struct {
	// CRLF translates newlines for raw mode terminals.
	CRLF bool
	// Color renders structured values with ANSI colors.
	Color bool
}

// Terminal is the interactive front end of a session. Writes are rendered to
// the screen and reads are served from lines the front end provides while a
// reader is waiting.
type Terminal struct {
	key  string
	opts TerminalOpts
	data *color.Color

	writeMu sync.Mutex
	out     io.Writer

	mu      sync.Mutex
	waiting []chan string
	last    any
	closed  bool
	done    chan struct{}
}

var _ Device = (*Terminal)(nil)

// NewTerminal creates a terminal rendering to out.
func NewTerminal(key string, out io.Writer, opts TerminalOpts) *Terminal {
	data := color.New(color.FgCyan)
	if opts.Color {
		data.EnableColor()
	} else {
		data.DisableColor()
	}

	return &Terminal{
		key:  key,
		opts: opts,
		data: data,
		out:  out,
		done: make(chan struct{}),
	}
}

func (t *Terminal) Key() string { return t.key }

// Render formats a value the way the terminal displays it.
func (t *Terminal) Render(v any) string {
	var text string
	switch v := v.(type) {
	case string:
		text = v
	case map[string]any, []any:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			text = vars.String(v)
		} else {
			text = t.data.Sprint(string(out))
		}
	default:
		text = t.data.Sprint(vars.String(v))
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if t.opts.CRLF {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text
}

// WriteData implements Device.
func (t *Terminal) WriteData(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return cause(ctx)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	for _, item := range Items(v) {
		if _, err := io.WriteString(t.out, t.Render(item)); err != nil {
			return err
		}
		t.mu.Lock()
		t.last = item
		t.mu.Unlock()
	}
	return nil
}

// Print writes raw text such as prompts without recording it.
func (t *Terminal) Print(text string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.opts.CRLF {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	_, _ = io.WriteString(t.out, text)
}

// ReadData implements Device. Each read consumes one provided line.
func (t *Terminal) ReadData(ctx context.Context, opts ReadOpts) (ReadResult, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ReadResult{EOF: true}, nil
	}
	if opts.Once {
		t.mu.Unlock()
		return ReadResult{}, nil
	}
	ch := make(chan string, 1)
	t.waiting = append(t.waiting, ch)
	t.mu.Unlock()

	select {
	case line := <-ch:
		return ReadResult{Data: line, HasData: true}, nil
	case <-t.done:
		return ReadResult{EOF: true}, nil
	case <-ctx.Done():
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, w := range t.waiting {
			if w == ch {
				t.waiting = append(t.waiting[:i], t.waiting[i+1:]...)
				break
			}
		}
		// A line may have been delivered while the context ended.
		select {
		case line := <-ch:
			return ReadResult{Data: line, HasData: true}, nil
		default:
		}
		return ReadResult{}, cause(ctx)
	}
}

// Waiting reports whether a reader is blocked on the terminal.
func (t *Terminal) Waiting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiting) > 0
}

// Provide hands line to the oldest waiting reader, returning false if there
// was none.
func (t *Terminal) Provide(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.waiting) == 0 {
		return false
	}
	ch := t.waiting[0]
	t.waiting = t.waiting[1:]
	ch <- line
	return true
}

// Last returns the most recently displayed value.
func (t *Terminal) Last() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// FinishedReading implements Device, the terminal outlives its readers.
func (t *Terminal) FinishedReading() {}

// FinishedWriting implements Device.
func (t *Terminal) FinishedWriting() {}

// Close releases waiting readers with EOF.
func (t *Terminal) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.waiting = nil
	close(t.done)
}

// Package shelltest runs scripts in throwaway sessions for tests.
package shelltest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vos"
)

// SessionKey is the key of every test session.
const SessionKey = "test"

// Config returns interpreter settings that keep tests fast.
func Config() shell.Config {
	return shell.Config{
		FIFOSize:          64,
		MinLoopIteration:  time.Millisecond,
		PipelineKillGrace: 10 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
	}
}

// Buffer is a bytes.Buffer safe for concurrent use.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards everything written so far.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// Session is a live session whose terminal writes to Out.
type Session struct {
	Registry *vos.Registry
	Interp   *shell.Interpreter
	TTY      *device.Terminal
	Out      *Buffer
}

// NewSession creates a session over a fresh registry. home seeds the
// session variables.
func NewSession(builtins map[string]shell.Builtin, home map[string]any) (*Session, error) {
	return NewSessionConfig(builtins, home, Config())
}

// NewSessionConfig is NewSession with custom interpreter settings.
func NewSessionConfig(builtins map[string]shell.Builtin, home map[string]any, cfg shell.Config) (*Session, error) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := vos.NewRegistry(log)
	out := &Buffer{}
	tty := device.NewTerminal("/dev/tty/"+SessionKey, out, device.TerminalOpts{})
	if _, err := reg.NewSession(SessionKey, tty, vos.SessionOpts{Home: home}); err != nil {
		return nil, err
	}

	return &Session{
		Registry: reg,
		Interp:   shell.New(reg, builtins, cfg, log),
		TTY:      tty,
		Out:      out,
	}, nil
}

// Run runs script in the session leader and returns its exit code.
func (s *Session) Run(ctx context.Context, script string) (int, error) {
	return s.Interp.RunLeadingSource(ctx, SessionKey, script)
}

// Close kills what is left running.
func (s *Session) Close() error {
	return s.Registry.CloseSession(SessionKey)
}

// Cmd is similar to exec.Cmd: it runs Script in a fresh session.
type Cmd struct {
	Builtins map[string]shell.Builtin
	Script   string
	// Home seeds the session variables.
	Home map[string]any

	// Stdout receives everything shown on the terminal, stderr included.
	Stdout io.Writer

	ExitStatus int

	Setup func(*Session) error
}

func Command(builtins map[string]shell.Builtin, script string) *Cmd {
	return &Cmd{
		Builtins: builtins,
		Script:   script,
	}
}

func (c *Cmd) CombinedOutput() ([]byte, error) {
	buf := &bytes.Buffer{}
	c.Stdout = buf

	err := c.Run()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Run starts the script and waits for it to complete.
func (c *Cmd) Run() error {
	s, err := NewSession(c.Builtins, c.Home)
	if err != nil {
		return err
	}
	defer s.Close()

	if c.Setup != nil {
		if err := c.Setup(s); err != nil {
			return err
		}
	}

	code, err := s.Run(context.Background(), c.Script)
	if err != nil {
		return err
	}
	c.ExitStatus = code

	if c.Stdout != nil {
		_, err = io.WriteString(c.Stdout, s.Out.String())
	}
	return err
}

// Package frontend adapts a line based client, such as a browser terminal or
// an SSH connection, to a shell session: it buffers lines until they parse,
// runs them in the session leader and keeps the history.
package frontend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/logger"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/store"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Message types sent by the client.
const (
	TypeReqHistoryLine = "req-history-line"
	TypeSendLine       = "send-line"
	TypeSendKillSig    = "send-kill-sig"
	TypeClickLink      = "click-link"
)

// Message types sent to the client.
const (
	TypeSendHistoryLine = "send-history-line"
	TypeSendXtermPrompt = "send-xterm-prompt"
	TypeError           = "error"
	TypeExternal        = "external"
)

// ContinuationPrompt is shown while a statement is incomplete.
const ContinuationPrompt = "> "

// Message is one protocol message in either direction.
type Message struct {
	Type         string `json:"type"`
	HistoryIndex int    `json:"historyIndex,omitempty"`
	NextIndex    int    `json:"nextIndex,omitempty"`
	Line         string `json:"line,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Msg          string `json:"msg,omitempty"`
	Text         string `json:"text,omitempty"`
}

// Options configures a session.
type Options struct {
	SessionKey string
	// Prompt is expanded before it's sent, see ExpandPrompt.
	Prompt  string
	Motd    string
	Profile string
	// HistoryLimit caps the history, 0 keeps everything.
	HistoryLimit int
	// Home seeds variables missing from the stored snapshot.
	Home map[string]any
	// Store persists history and variables, nil keeps nothing.
	Store store.Store
	// Send delivers outbound messages. It may be called from several
	// goroutines at once.
	Send func(Message)
	// Terminal is the session's terminal device.
	Terminal *device.Terminal
	Log      *slog.Logger
}

// Session is a front end attached to one shell session.
type Session struct {
	in   *shell.Interpreter
	reg  *vos.Registry
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	buffer    []string
	typeahead []string
	running   bool
	closed    bool
	jobs      sync.WaitGroup
}

// Open creates the shell session described by opts, restoring persisted
// state. Call Start to run the profile and show the first prompt.
func Open(in *shell.Interpreter, opts Options) (*Session, error) {
	if opts.Prompt == "" {
		opts.Prompt = "$ "
	}
	if opts.Send == nil {
		opts.Send = func(Message) {}
	}
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("session", opts.SessionKey)

	s := &Session{
		in:   in,
		reg:  in.Registry(),
		opts: opts,
		log:  log,
	}

	home := vars.CloneMap(opts.Home)
	var history []string
	if st := opts.Store; st != nil {
		stored, err := store.LoadVars(st, opts.SessionKey)
		if err != nil {
			return nil, err
		}
		for k, v := range stored {
			home[k] = v
		}
		if history, err = store.LoadHistory(st, opts.SessionKey); err != nil {
			return nil, err
		}
	}

	_, err := s.reg.NewSession(opts.SessionKey, opts.Terminal, vos.SessionOpts{
		Home:    home,
		History: history,
		OnEvent: s.onEvent,
	})
	if err != nil {
		return nil, err
	}
	if err := in.EnsureLeader(opts.SessionKey); err != nil {
		s.reg.CloseSession(opts.SessionKey)
		return nil, err
	}
	return s, nil
}

// Key returns the session key.
func (s *Session) Key() string {
	return s.opts.SessionKey
}

func (s *Session) onEvent(e vos.Event) {
	s.log.Debug("process event", "event", e.Name(), "pid", e.PID, "src", e.Src)
	s.opts.Send(Message{Type: TypeExternal, Msg: e.Name()})
}

// Start shows the message of the day, runs the profile while the prompt is
// paused and then shows the prompt.
func (s *Session) Start(ctx context.Context) {
	if s.opts.Motd != "" && s.opts.Terminal != nil {
		s.opts.Terminal.Print(s.opts.Motd)
	}

	if strings.TrimSpace(s.opts.Profile) != "" {
		s.in.SetInteractivePaused(s.Key(), true)
		s.runProfile(ctx)
		s.in.SetInteractivePaused(s.Key(), false)
	}
	s.prompt()
}

func (s *Session) runProfile(ctx context.Context) {
	file, status, err := shell.Parse(s.opts.Profile)
	if status != shell.ParseComplete {
		s.log.Warn("bad profile", "err", err)
		s.sendError("profile: " + err.Error())
		return
	}

	code, err := s.in.Spawn(ctx, s.Key(), file.Stmts, shell.SpawnOpts{
		Parent:   s.reg.Leader(s.Key()),
		Internal: true,
		Src:      "profile",
	})
	if err != nil {
		s.log.Warn("profile killed", "err", err)
	}
	s.log.Debug("profile finished", "code", code)
}

// Dispatch handles one inbound message.
func (s *Session) Dispatch(ctx context.Context, m Message) {
	switch m.Type {
	case TypeSendLine:
		s.HandleLine(ctx, m.Line)
	case TypeReqHistoryLine:
		line, next := s.HistoryLine(m.HistoryIndex)
		s.opts.Send(Message{Type: TypeSendHistoryLine, Line: line, NextIndex: next})
	case TypeSendKillSig:
		s.Interrupt()
	case TypeClickLink:
		if !s.reg.ClickLink(s.Key(), m.Text) {
			s.log.Debug("stale link", "text", m.Text)
		}
	default:
		s.sendError("unknown message type: " + m.Type)
	}
}

// HandleLine feeds one line typed by the user. A reader waiting on the
// terminal gets the line, otherwise it's added to the pending statement.
// Lines typed while a job runs are kept until it ends.
func (s *Session) HandleLine(ctx context.Context, line string) {
	if s.opts.Terminal != nil && s.opts.Terminal.Provide(line) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.typeahead = append(s.typeahead, line)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.feed(ctx, line)
}

func (s *Session) feed(ctx context.Context, line string) {
	s.mu.Lock()
	s.buffer = append(s.buffer, line)
	src := strings.Join(s.buffer, "\n")
	file, status, err := shell.Parse(src)

	switch status {
	case shell.ParseFailed:
		s.buffer = nil
		s.mu.Unlock()
		s.sendError(err.Error())
		s.prompt()
		return

	case shell.ParseIncomplete:
		s.mu.Unlock()
		s.opts.Send(Message{Type: TypeSendXtermPrompt, Prompt: ContinuationPrompt})
		return
	}

	s.buffer = nil
	if strings.TrimSpace(src) == "" || len(file.Stmts) == 0 {
		s.mu.Unlock()
		s.prompt()
		return
	}
	s.running = true
	s.jobs.Add(1)
	s.mu.Unlock()

	if s.reg.AppendHistory(s.Key(), src, s.opts.HistoryLimit) {
		s.saveHistory()
	}

	s.log.Info(logger.MsgRunLine, "line", src)
	go func() {
		defer s.jobs.Done()
		code := s.in.RunLeading(ctx, s.Key(), file, src)
		s.log.Debug("line finished", "code", code)
		s.saveVars()
		s.finished(ctx)
	}()
}

// finished shows the prompt, or runs what was typed ahead.
func (s *Session) finished(ctx context.Context) {
	s.mu.Lock()
	s.running = false
	if s.closed {
		s.mu.Unlock()
		return
	}
	queued := s.typeahead
	s.typeahead = nil
	s.mu.Unlock()

	if len(queued) == 0 {
		s.prompt()
		return
	}
	for i, line := range queued {
		s.feed(ctx, line)

		s.mu.Lock()
		if s.running {
			s.typeahead = append(queued[i+1:], s.typeahead...)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Wait blocks until the running line, if any, is done.
func (s *Session) Wait() {
	s.jobs.Wait()
}

// Interrupt sends SIGINT to the foreground job and drops the pending
// statement.
func (s *Session) Interrupt() {
	s.mu.Lock()
	s.buffer = nil
	s.typeahead = nil
	running := s.running
	s.mu.Unlock()

	s.in.Interrupt(s.Key())
	if !running {
		s.prompt()
	}
}

// HistoryLine returns the index'th most recent history entry, 1 being the
// newest, and the index to request next. Index 0 or less returns the empty
// line.
func (s *Session) HistoryLine(index int) (line string, next int) {
	history := s.reg.History(s.Key())
	if index <= 0 || len(history) == 0 {
		return "", 0
	}
	if index > len(history) {
		index = len(history)
	}
	line = history[len(history)-index]
	if index < len(history) {
		return line, index + 1
	}
	return line, index
}

// Prompt returns the expanded main prompt.
func (s *Session) Prompt() string {
	var prompt string
	s.reg.ViewHome(s.Key(), func(home map[string]any) error {
		prompt = ExpandPrompt(s.opts.Prompt, home)
		return nil
	})
	return prompt
}

func (s *Session) prompt() {
	s.opts.Send(Message{Type: TypeSendXtermPrompt, Prompt: s.Prompt()})
}

func (s *Session) sendError(msg string) {
	s.opts.Send(Message{Type: TypeError, Msg: msg})
}

func (s *Session) saveHistory() {
	if s.opts.Store == nil {
		return
	}
	if err := store.SaveHistory(s.opts.Store, s.Key(), s.reg.History(s.Key())); err != nil {
		s.log.Error("saving history", "err", err)
	}
}

func (s *Session) saveVars() {
	if s.opts.Store == nil {
		return
	}
	snapshot := s.reg.Snapshot(s.Key())
	if snapshot == nil {
		return
	}
	if err := store.SaveVars(s.opts.Store, s.Key(), snapshot); err != nil {
		s.log.Error("saving variables", "err", err)
	}
}

// Close kills every job, saves the session and releases it.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.reg.KillAll(s.Key(), vos.KillOpts{}); err != nil && !errors.Is(err, vos.ErrSessionNotFound) {
		return err
	}
	s.jobs.Wait()
	s.saveVars()
	return s.reg.CloseSession(s.Key())
}

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/frontend"
	"github.com/josephlewis42/npcsh/core/ttylog"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Console is a character terminal attached to a session.
type Console struct {
	User string
	In   io.Reader
	Out  io.Writer
	// IsPTY enables line editing, CRLF line endings and colors.
	IsPTY bool
	Width func() int
	// Command is run instead of an interactive loop when set.
	Command string
	// MakeRaw and ExitRaw switch a local terminal's mode, nil for remote ones.
	MakeRaw func() error
	ExitRaw func() error
	// Recording receives the terminal traffic, nil records nothing.
	Recording ttylog.LogSink
}

// Attach runs a session for the console until its input closes or the user
// exits, and returns the exit status.
func (s *Server) Attach(ctx context.Context, c Console) int {
	log := s.log.With("session", c.User)

	in, out := c.In, c.Out
	if c.Recording != nil {
		recorder := ttylog.NewRecorder(c.Recording, log)
		in = recorder.Reader(ttylog.FDStdin, in)
		out = recorder.Writer(ttylog.FDStdout, out)
	}

	newline := "\n"
	if c.IsPTY {
		newline = "\r\n"
	}
	tty := device.NewTerminal("/dev/tty/"+c.User, out, device.TerminalOpts{CRLF: c.IsPTY, Color: c.IsPTY})

	// The line editor is created after the session so the session can fail
	// without touching the terminal mode.
	var (
		rlMu sync.Mutex
		rl   *readline.Instance
	)
	send := func(m frontend.Message) {
		switch m.Type {
		case frontend.TypeSendXtermPrompt:
			rlMu.Lock()
			defer rlMu.Unlock()
			if rl != nil {
				rl.SetPrompt(m.Prompt)
				rl.Refresh()
			}
		case frontend.TypeError:
			tty.Print(m.Msg + "\n")
		default:
			log.Debug("client message", "type", m.Type, "msg", m.Msg)
		}
	}

	home := vars.CloneMap(s.configuration.UserHome(c.User))
	home["USER"] = c.User

	sess, err := frontend.Open(s.interp, frontend.Options{
		SessionKey:   c.User,
		Prompt:       s.configuration.Prompt,
		Motd:         s.configuration.Motd,
		Profile:      s.configuration.Profile,
		HistoryLimit: s.configuration.HistoryLimit,
		Home:         home,
		Store:        s.store,
		Send:         send,
		Terminal:     tty,
		Log:          s.log,
	})
	if err != nil {
		log.Warn("opening session", "err", err)
		fmt.Fprintf(out, "npcsh: %v%s", err, newline)
		return vos.ExitFailure
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("closing session", "err", err)
		}
	}()

	if c.Command != "" {
		log.Info("running command", "command", c.Command)
		sess.HandleLine(ctx, c.Command)
		sess.Wait()
		return s.registry.LastExit(c.User, false)
	}

	cfg := &readline.Config{
		Stdin:  readline.NewCancelableStdin(in),
		Stdout: out,
		Stderr: out,
		FuncGetWidth: func() int {
			if c.Width == nil {
				return 0
			}
			return c.Width()
		},
		FuncIsTerminal: func() bool {
			return c.IsPTY
		},
		FuncMakeRaw: c.MakeRaw,
		FuncExitRaw: c.ExitRaw,
	}
	if cfg.FuncMakeRaw == nil {
		cfg.FuncMakeRaw = func() error { return nil }
	}
	if cfg.FuncExitRaw == nil {
		cfg.FuncExitRaw = func() error { return nil }
	}
	if err := cfg.Init(); err != nil {
		fmt.Fprintf(out, "npcsh: %v%s", err, newline)
		return vos.ExitFailure
	}

	instance, err := readline.NewEx(cfg)
	if err != nil {
		fmt.Fprintf(out, "npcsh: %v%s", err, newline)
		return vos.ExitFailure
	}
	defer instance.Close()

	rlMu.Lock()
	rl = instance
	rlMu.Unlock()

	sess.Start(ctx)

	for {
		line, err := instance.Readline()
		switch {
		case errors.Is(err, io.EOF):
			return s.registry.LastExit(c.User, false)

		case errors.Is(err, readline.ErrInterrupt):
			sess.Dispatch(ctx, frontend.Message{Type: frontend.TypeSendKillSig})

		case err != nil:
			log.Warn("reading line", "err", err)
			return vos.ExitFailure

		default:
			instance.SetPrompt("")
			sess.Dispatch(ctx, frontend.Message{Type: frontend.TypeSendLine, Line: line})

			if isExit(line) {
				sess.Wait()
				return s.registry.LastExit(c.User, false)
			}
		}
	}
}

// isExit reports whether line ends the interactive session.
func isExit(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && len(fields) <= 2 && fields[0] == "exit"
}

package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/josephlewis42/npcsh/commands"
	"github.com/josephlewis42/npcsh/core/config"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/store"
	"github.com/josephlewis42/npcsh/core/ttylog"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Server hosts shell sessions, one per SSH connection.
type Server struct {
	configuration *config.Configuration
	registry      *vos.Registry
	interp        *shell.Interpreter
	store         store.Store
	log           *slog.Logger
	sshServer     *ssh.Server
}

// NewServer creates a server from the configuration. Nothing listens until
// ListenAndServe is called.
func NewServer(configuration *config.Configuration, log *slog.Logger) (*Server, error) {
	st, err := configuration.OpenStore()
	if err != nil {
		return nil, err
	}

	registry := vos.NewRegistry(log)
	server := &Server{
		configuration: configuration,
		registry:      registry,
		interp:        shell.New(registry, commands.AllBuiltins, configuration.Shell.Interpreter(), log),
		store:         st,
		log:           log,
	}
	server.mountLib()

	server.sshServer = &ssh.Server{
		Addr:    fmt.Sprintf(":%d", configuration.SSHPort),
		Handler: server.HandleConnection,
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			return server.checkPassword(ctx.User(), password)
		},
	}
	if banner := configuration.SSHBanner; banner != "" {
		server.sshServer.Version = banner
	}

	keyPem, err := configuration.PrivateKeyPem()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	if err := server.sshServer.SetOption(ssh.HostKeyPEM(keyPem)); err != nil {
		st.Close()
		return nil, fmt.Errorf("loading host key: %w", err)
	}

	return server, nil
}

// Interpreter returns the interpreter shared by all sessions.
func (s *Server) Interpreter() *shell.Interpreter {
	return s.interp
}

// mountLib exposes host functions under /lib.
func (s *Server) mountLib() {
	s.interp.Mount("now", vars.Invocable(func(ctx context.Context, args []any) (any, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	}))
	s.interp.Mount("sessions", vars.Invocable(func(ctx context.Context, args []any) (any, error) {
		out := []any{}
		for _, key := range s.registry.Sessions() {
			out = append(out, key)
		}
		return out, nil
	}))
}

func (s *Server) checkPassword(user, password string) bool {
	if s.configuration.AllowAnyPassword {
		return true
	}
	ok := false
	for _, want := range s.configuration.GetPasswords(user) {
		if subtle.ConstantTimeCompare([]byte(password), []byte(want)) == 1 {
			ok = true
		}
	}
	s.log.Info("login attempt", "user", user, "success", ok)
	return ok
}

// HandleConnection attaches an SSH session to a shell session named after
// the user.
func (s *Server) HandleConnection(sess ssh.Session) {
	log := s.log.With("session", sess.User(), "remote", sess.RemoteAddr().String())

	pty, winch, isPTY := sess.Pty()
	var width atomic.Int64
	width.Store(int64(pty.Window.Width))
	go func() {
		for window := range winch {
			width.Store(int64(window.Width))
		}
	}()

	console := Console{
		User:    sess.User(),
		In:      sess,
		Out:     sess,
		IsPTY:   isPTY,
		Command: sess.RawCommand(),
		Width: func() int {
			return int(width.Load())
		},
	}

	name := fmt.Sprintf("%s-%s.%s", sess.User(), time.Now().UTC().Format("20060102T150405"), ttylog.AsciicastFileExt)
	if logFd, err := s.configuration.CreateSessionLog(name); err != nil {
		log.Warn("can't record session", "err", err)
	} else {
		defer logFd.Close()
		log.Info("recording session", "file", name)
		console.Recording = ttylog.NewAsciicastLogSink(logFd, ttylog.AsciicastHeader{
			Width:  pty.Window.Width,
			Height: pty.Window.Height,
			Title:  sess.User(),
		})
	}

	code := s.Attach(sess.Context(), console)
	if err := sess.Exit(code); err != nil {
		log.Debug("closing connection", "err", err)
	}
}

func (s *Server) ListenAndServe() error {
	s.log.Info("starting SSH server", "addr", s.sshServer.Addr)
	return s.sshServer.ListenAndServe()
}

// Shutdown stops accepting connections and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.store.Close()
	return s.sshServer.Shutdown(ctx)
}

// Close releases the store of a server that never listened.
func (s *Server) Close() error {
	return s.store.Close()
}

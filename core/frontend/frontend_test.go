package frontend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/josephlewis42/npcsh/commands"
	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/logger"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/shell/shelltest"
	"github.com/josephlewis42/npcsh/core/store"
	"github.com/josephlewis42/npcsh/core/vos"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (o *outbox) send(m Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
}

func (o *outbox) all() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.msgs...)
}

func (o *outbox) ofType(typ string) []Message {
	var out []Message
	for _, m := range o.all() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (o *outbox) last(typ string) Message {
	msgs := o.ofType(typ)
	if len(msgs) == 0 {
		return Message{}
	}
	return msgs[len(msgs)-1]
}

type fixture struct {
	*Session
	reg    *vos.Registry
	tty    *device.Terminal
	screen *shelltest.Buffer
	out    *outbox
}

func open(t *testing.T, opts Options) *fixture {
	t.Helper()

	reg := vos.NewRegistry(logger.Discard())
	in := shell.New(reg, commands.AllBuiltins, shelltest.Config(), logger.Discard())

	screen := &shelltest.Buffer{}
	out := &outbox{}
	if opts.SessionKey == "" {
		opts.SessionKey = "s"
	}
	opts.Terminal = device.NewTerminal("/dev/tty/"+opts.SessionKey, screen, device.TerminalOpts{})
	opts.Send = out.send

	s, err := Open(in, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &fixture{Session: s, reg: reg, tty: opts.Terminal, screen: screen, out: out}
}

func (f *fixture) run(lines ...string) {
	for _, line := range lines {
		f.HandleLine(context.Background(), line)
		f.Wait()
	}
}

func TestHandleLine(t *testing.T) {
	f := open(t, Options{})

	f.run("echo hello")
	assert.Equal(t, "hello\n", f.screen.String())
	assert.Equal(t, Message{Type: TypeSendXtermPrompt, Prompt: "$ "}, f.out.last(TypeSendXtermPrompt))
	assert.Equal(t, []string{"echo hello"}, f.reg.History("s"))
}

func TestHandleLine_continuation(t *testing.T) {
	f := open(t, Options{})

	f.run("if true; then")
	assert.Equal(t, ContinuationPrompt, f.out.last(TypeSendXtermPrompt).Prompt)
	f.run("echo inside")
	assert.Equal(t, ContinuationPrompt, f.out.last(TypeSendXtermPrompt).Prompt)
	assert.Empty(t, f.screen.String())

	f.run("fi")
	assert.Equal(t, "inside\n", f.screen.String())
	assert.Equal(t, "$ ", f.out.last(TypeSendXtermPrompt).Prompt)
	assert.Equal(t, []string{"if true; then\necho inside\nfi"}, f.reg.History("s"))
}

func TestHandleLine_failed(t *testing.T) {
	f := open(t, Options{})

	f.run(")")
	assert.NotEmpty(t, f.out.last(TypeError).Msg)
	assert.Equal(t, "$ ", f.out.last(TypeSendXtermPrompt).Prompt)
	assert.Empty(t, f.reg.History("s"))

	// The failed buffer is gone.
	f.run("echo fine")
	assert.Equal(t, "fine\n", f.screen.String())
}

func TestHandleLine_blank(t *testing.T) {
	f := open(t, Options{})

	f.run("", "   ")
	assert.Empty(t, f.reg.History("s"))
	assert.Len(t, f.out.ofType(TypeSendXtermPrompt), 2)
}

func TestHistory(t *testing.T) {
	f := open(t, Options{HistoryLimit: 2})

	f.run("true", "true", "echo a", "echo b")
	assert.Equal(t, []string{"echo a", "echo b"}, f.reg.History("s"))

	cases := []struct {
		index int
		line  string
		next  int
	}{
		{0, "", 0},
		{1, "echo b", 2},
		{2, "echo a", 2},
		{9, "echo a", 2},
	}
	for _, tc := range cases {
		line, next := f.HistoryLine(tc.index)
		assert.Equal(t, tc.line, line, "index %d", tc.index)
		assert.Equal(t, tc.next, next, "index %d", tc.index)
	}

	f.Dispatch(context.Background(), Message{Type: TypeReqHistoryLine, HistoryIndex: 1})
	assert.Equal(t, Message{Type: TypeSendHistoryLine, Line: "echo b", NextIndex: 2}, f.out.last(TypeSendHistoryLine))
}

func TestStart_profile(t *testing.T) {
	f := open(t, Options{
		Motd:    "welcome\n",
		Profile: "x=from-profile",
	})

	f.Start(context.Background())

	var external []string
	for _, m := range f.out.ofType(TypeExternal) {
		external = append(external, m.Msg)
	}
	assert.Contains(t, external, "interactive-paused")
	assert.Contains(t, external, "interactive-resumed")

	msgs := f.out.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, TypeSendXtermPrompt, msgs[len(msgs)-1].Type)

	f.run("echo $x")
	assert.Equal(t, "welcome\nfrom-profile\n", f.screen.String())
}

func TestStart_badProfile(t *testing.T) {
	f := open(t, Options{Profile: "if"})

	f.Start(context.Background())
	assert.Contains(t, f.out.last(TypeError).Msg, "profile: ")
	assert.Equal(t, "$ ", f.out.last(TypeSendXtermPrompt).Prompt)
}

func TestHandleLine_feedsReader(t *testing.T) {
	f := open(t, Options{})

	f.HandleLine(context.Background(), "read name; echo got $name")
	require.Eventually(t, f.tty.Waiting, time.Second, time.Millisecond)
	f.HandleLine(context.Background(), "bob")
	f.Wait()

	assert.Equal(t, "got bob\n", f.screen.String())
	assert.Equal(t, []string{"read name; echo got $name"}, f.reg.History("s"))
}

func TestHandleLine_typeahead(t *testing.T) {
	f := open(t, Options{})

	f.HandleLine(context.Background(), "sleep 0.05; echo first")
	f.HandleLine(context.Background(), "echo second")
	f.Wait()

	assert.Equal(t, "first\nsecond\n", f.screen.String())
}

func TestInterrupt(t *testing.T) {
	f := open(t, Options{})

	start := time.Now()
	f.HandleLine(context.Background(), "sleep 10; echo unreachable")
	time.Sleep(20 * time.Millisecond)
	f.Dispatch(context.Background(), Message{Type: TypeSendKillSig})
	f.Wait()

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, f.screen.String())
	assert.Equal(t, vos.ExitInterrupt, f.reg.LastExit("s", false))

	f.run("echo again")
	assert.Equal(t, "again\n", f.screen.String())
}

func TestInterrupt_dropsPending(t *testing.T) {
	f := open(t, Options{})

	f.run("if true; then")
	f.Interrupt()
	f.run("echo clean")

	assert.Equal(t, "clean\n", f.screen.String())
	assert.Equal(t, "$ ", f.out.last(TypeSendXtermPrompt).Prompt)
}

func TestDispatch_clickLink(t *testing.T) {
	f := open(t, Options{})

	clicked := make(chan struct{}, 1)
	require.NoError(t, f.reg.AddLink("s", "[1] yes", func() { clicked <- struct{}{} }))

	f.Dispatch(context.Background(), Message{Type: TypeClickLink, Text: "[1] yes"})
	select {
	case <-clicked:
	default:
		t.Fatal("link callback not called")
	}

	f.Dispatch(context.Background(), Message{Type: "bogus"})
	assert.Equal(t, "unknown message type: bogus", f.out.last(TypeError).Msg)
}

func TestPersistence(t *testing.T) {
	st, err := store.NewFsStore(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	first := open(t, Options{SessionKey: "npc", Store: st, Home: map[string]any{"seed": "a"}})
	first.run("x=5", "cd /home", "echo shown")
	require.NoError(t, first.Close())

	home, err := store.LoadVars(st, "npc")
	require.NoError(t, err)
	assert.Equal(t, 5.0, home["x"])
	assert.Equal(t, "a", home["seed"])
	assert.NotContains(t, home, "_")
	assert.NotContains(t, home, "PWD")

	second := open(t, Options{SessionKey: "npc", Store: st, Home: map[string]any{"seed": "b", "other": "c"}})
	assert.Equal(t, []string{"x=5", "cd /home", "echo shown"}, second.reg.History("npc"))

	second.run("echo $x $seed $other")
	assert.Equal(t, "5 a c\n", second.screen.String())
}

func TestExpandPrompt(t *testing.T) {
	cases := map[string]struct {
		home map[string]any
		want string
	}{
		"home": {
			home: map[string]any{"USER": "bob", "PWD": "/home"},
			want: "bob:~$ ",
		},
		"nested": {
			home: map[string]any{"USER": "bob", "PWD": "/home/inventory"},
			want: "bob:~/inventory$ ",
		},
		"elsewhere": {
			home: map[string]any{"PWD": "/etc"},
			want: ":/etc$ ",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExpandPrompt(`\u:\w\$ `, tc.home))
		})
	}

	assert.Equal(t, "plain> ", ExpandPrompt("plain> ", nil))
}

func TestPrompt(t *testing.T) {
	f := open(t, Options{Prompt: `\w\$ `})

	assert.Equal(t, "~$ ", f.Prompt())
	f.run("set d '{}'", "cd d")
	assert.Equal(t, "~/d$ ", f.Prompt())
}

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var terminal, appLog bytes.Buffer
	log := New(Options{Terminal: &terminal, AppLog: &appLog})

	Level.Set(slog.LevelInfo)
	defer Level.Set(slog.LevelInfo)

	log.Debug("hidden from the terminal")
	log.Info("shown everywhere", "session", "s1")

	assert.NotContains(t, terminal.String(), "hidden from the terminal")
	assert.Contains(t, terminal.String(), "shown everywhere")

	lines := strings.Split(strings.TrimSpace(appLog.String()), "\n")
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "shown everywhere", entry["msg"])
	assert.Equal(t, "s1", entry["session"])
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Error("nobody listens")
	})
}

func TestReport(t *testing.T) {
	var appLog bytes.Buffer
	log := New(Options{AppLog: &appLog})

	log.Info(MsgRunLine, "session", "a", "line", "echo hi")
	log.Info(MsgRunLine, "session", "a", "line", "  echo again")
	log.Info(MsgRunLine, "session", "b", "line", "ls -l")
	log.Debug(MsgInvalidInvocation, "cmd", "ls", "err", errors.New("unknown option: -x"))
	log.Error("command failed", "err", errors.New("boom"))

	report := NewReport()
	require.NoError(t, ReadJSONLinesLog(&appLog, report.Update))

	assert.Equal(t, 5, report.LogEntries)
	assert.Equal(t, 2, report.Commands.Count("echo"))
	assert.Equal(t, 1, report.Commands.Count("ls"))
	assert.Equal(t, 2, report.Sessions.Count("a"))
	assert.Equal(t, 1, report.Levels.Count("ERROR"))
	assert.Equal(t, 1, report.InvalidInvocations.Count("ls", "unknown option: -x"))
	assert.Equal(t, 1, report.Errors.Count("command failed", "boom"))

	out, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"invalid_invocations":[{"count":1,"event":{"command":"ls","error":"unknown option: -x"}}]`)
}

func TestForSession(t *testing.T) {
	var appLog bytes.Buffer
	log := New(Options{AppLog: &appLog})

	log.Info(MsgRunLine, "session", "a", "line", "echo hi")
	log.Info(MsgRunLine, "session", "b", "line", "ls -l")
	log.Info("opened store")
	log.Info(MsgRunLine, "session", "a", "line", "cd /")

	var lines []string
	err := ReadJSONLinesLog(&appLog, ForSession("a", func(le Entry) {
		lines = append(lines, le.Line())
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo hi", "cd /"}, lines)

	var all int
	handler := ForSession("", func(Entry) { all++ })
	handler(Entry{"session": "x"})
	handler(Entry{})
	assert.Equal(t, 2, all)
}

func TestReadJSONLinesLog_invalid(t *testing.T) {
	err := ReadJSONLinesLog(strings.NewReader("{\"msg\": 1}\nnot json"), func(Entry) {})
	assert.Error(t, err)
}

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Messages the report understands.
const (
	MsgRunLine           = "running line"
	MsgInvalidInvocation = "invalid invocation"
)

// Entry is one decoded JSON log record.
type Entry map[string]any

func (e Entry) str(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Level returns the record's level.
func (e Entry) Level() string { return e.str("level") }

// Msg returns the record's message.
func (e Entry) Msg() string { return e.str("msg") }

// Session returns the session the record belongs to, if any.
func (e Entry) Session() string { return e.str("session") }

// Line returns the input line of a MsgRunLine record.
func (e Entry) Line() string { return e.str("line") }

// ForSession passes only the records of the named session to handler. An
// empty name passes everything.
func ForSession(name string, handler func(le Entry)) func(le Entry) {
	if name == "" {
		return handler
	}
	return func(le Entry) {
		if le.Session() == name {
			handler(le)
		}
	}
}

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le Entry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			return err
		}

		handler(entry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries int        `json:"log_entries"`
	Levels     StrCounter `json:"levels"`
	Messages   StrCounter `json:"messages"`
	Sessions   StrCounter `json:"sessions"`
	// Commands counts the first word of every line run in a session.
	Commands StrCounter `json:"commands"`

	InvalidInvocations *PathCounter `json:"invalid_invocations"`
	Errors             *PathCounter `json:"errors"`
}

func NewReport() *Report {
	return &Report{
		InvalidInvocations: NewPathCounter("command", "error"),
		Errors:             NewPathCounter("message", "error"),
	}
}

func (r *Report) Update(le Entry) {
	r.LogEntries++
	r.Levels.Increment(le.Level())
	r.Messages.Increment(le.Msg())
	if session := le.Session(); session != "" {
		r.Sessions.Increment(session)
	}

	switch le.Msg() {
	case MsgRunLine:
		if fields := strings.Fields(le.Line()); len(fields) > 0 {
			r.Commands.Increment(fields[0])
		}
	case MsgInvalidInvocation:
		r.InvalidInvocations.Increment(le.str("cmd"), le.str("err"))
	}

	if le.Level() == "ERROR" {
		r.Errors.Increment(le.Msg(), le.str("err"))
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Count returns how often key was seen.
func (s *StrCounter) Count(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Count returns how often the tuple was seen.
func (ctr *PathCounter) Count(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implements a custom JSON marshaler: tuples sorted by count,
// most frequent first.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}

package shell

// The grammar is bash as understood by mvdan.cc/sh, evaluated loosely after
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
// 1. The front end buffers input lines until they parse (see Parse).
//
// 2. The parsed statements run in the session leader, or in a fresh process
// for functions, pipeline stages, command substitutions and background jobs.
//
// 3. Words are expanded (braces, parameters, command substitutions,
// arithmetic) into fields; quoted parts are never split.
//
// 4. Redirections rebind the frame's descriptor table for the duration of a
// statement.
//
// 5. Functions are looked up before builtins. There are no executables.

import (
	"bytes"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ParseStatus classifies an input buffer.
type ParseStatus int

const (
	// ParseComplete means the buffer holds whole statements.
	ParseComplete ParseStatus = iota
	// ParseIncomplete means more lines are needed, e.g. an open quote or
	// an unterminated if.
	ParseIncomplete
	// ParseFailed means the buffer can never become valid.
	ParseFailed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseComplete:
		return "complete"
	case ParseIncomplete:
		return "incomplete"
	}
	return "failed"
}

// Parse parses src as a bash program.
func Parse(src string) (*syntax.File, ParseStatus, error) {
	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(src), "")
	switch {
	case err == nil:
		return file, ParseComplete, nil
	case syntax.IsIncomplete(err):
		return nil, ParseIncomplete, err
	default:
		return nil, ParseFailed, err
	}
}

// printNode renders a node back into source text.
func printNode(node syntax.Node) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.SingleLine(true)).Print(&buf, node); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

package shell

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/pattern"
	"mvdan.cc/sh/v3/syntax"
)

type quoteMode int

const (
	// modeFields splits unquoted expansions into fields.
	modeFields quoteMode = iota
	// modeLiteral produces one string.
	modeLiteral
	// modePattern produces one glob pattern with quoted text escaped.
	modePattern
)

// fieldBuilder accumulates the fields of expanded words.
type fieldBuilder struct {
	mode    quoteMode
	fields  []string
	cur     strings.Builder
	started bool
}

// quoted appends text that is never split or globbed.
func (b *fieldBuilder) quoted(s string) {
	if b.mode == modePattern {
		s = pattern.QuoteMeta(s, 0)
	}
	b.cur.WriteString(s)
	b.started = true
}

// raw appends unquoted literal text.
func (b *fieldBuilder) raw(s string) {
	b.cur.WriteString(s)
	b.started = true
}

// split appends the result of an unquoted expansion, breaking fields on
// whitespace.
func (b *fieldBuilder) split(s string) {
	if b.mode != modeFields {
		b.raw(s)
		return
	}
	if s == "" {
		return
	}
	parts := strings.Fields(s)
	if len(parts) == 0 || isSpace(s[0]) {
		b.flush()
	}
	for i, part := range parts {
		if i > 0 {
			b.flush()
		}
		b.raw(part)
	}
	if isSpace(s[len(s)-1]) {
		b.flush()
	}
}

// next ends the current field even if it is empty.
func (b *fieldBuilder) next() {
	b.fields = append(b.fields, b.cur.String())
	b.cur.Reset()
	b.started = false
}

// flush ends the current field if anything was written to it.
func (b *fieldBuilder) flush() {
	if b.started {
		b.next()
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

func joinFields(fields []string) string {
	return strings.Join(fields, " ")
}

// braces performs brace expansion without touching the parsed word, which
// may run again.
func braces(word *syntax.Word) []*syntax.Word {
	w := *word
	w.Parts = append([]syntax.WordPart(nil), word.Parts...)
	if !syntax.SplitBraces(&w) {
		return []*syntax.Word{word}
	}
	return expand.Braces(&w)
}

// fields expands words into command arguments.
func (f *frame) fields(words ...*syntax.Word) ([]string, error) {
	b := &fieldBuilder{mode: modeFields}
	for _, word := range words {
		for _, w := range braces(word) {
			if err := f.evalWordParts(b, w.Parts, false); err != nil {
				return nil, err
			}
			b.flush()
		}
	}
	return b.fields, nil
}

// literal expands a word into a single string.
func (f *frame) literal(word *syntax.Word) (string, error) {
	return f.join(word, modeLiteral)
}

// pattern expands a word into a glob pattern.
func (f *frame) pattern(word *syntax.Word) (string, error) {
	return f.join(word, modePattern)
}

func (f *frame) join(word *syntax.Word, mode quoteMode) (string, error) {
	if word == nil {
		return "", nil
	}
	b := &fieldBuilder{mode: mode}
	if err := f.evalWordParts(b, word.Parts, false); err != nil {
		return "", err
	}
	b.flush()
	return joinFields(b.fields), nil
}

func (f *frame) evalWordParts(b *fieldBuilder, parts []syntax.WordPart, quoted bool) error {
	for i := 0; i < len(parts); i++ {
		switch part := parts[i].(type) {
		case *syntax.Lit:
			switch {
			case quoted:
				b.quoted(unquoteLit(part.Value, true))
			case b.mode == modePattern:
				b.raw(part.Value)
			default:
				b.raw(unquoteLit(part.Value, false))
			}

		case *syntax.SglQuoted:
			s := part.Value
			if part.Dollar {
				s = ansiC(s)
			}
			b.quoted(s)

		case *syntax.DblQuoted:
			if len(part.Parts) == 1 && isAllPositionals(part.Parts[0]) && len(f.proc.Positionals) < 2 {
				// "$@" without arguments expands to no field at all.
				continue
			}
			b.quoted("")
			if err := f.evalWordParts(b, part.Parts, true); err != nil {
				return err
			}

		case *syntax.ParamExp:
			if lit, ok := lastValuePath(part, parts[i+1:]); ok {
				path, rest := splitPath(lit.Value)
				v, err := f.lastValue(path)
				if err != nil {
					return err
				}
				f.emit(b, v, quoted)
				if rest != "" {
					b.raw(unquoteLit(rest, quoted))
				}
				i++
				continue
			}
			if isAllPositionals(part) {
				f.positionals(b, part.Param.Value, quoted)
				continue
			}
			v, err := f.paramValue(part)
			if err != nil {
				return err
			}
			f.emit(b, v, quoted)

		case *syntax.CmdSubst:
			vals, err := f.cmdSubst(part)
			if err != nil {
				return err
			}
			if quoted || b.mode != modeFields {
				b.quoted(joinValues(vals))
				continue
			}
			for j, v := range vals {
				if j > 0 {
					b.flush()
				}
				f.emit(b, v, false)
			}

		case *syntax.ArithmExp:
			n, err := f.arithm(part.X)
			if err != nil {
				return err
			}
			b.raw(strconv.Itoa(n))

		default:
			return f.syntaxError(part)
		}
	}
	return nil
}

// emit appends an expanded value. Unquoted strings are split, structured
// values always form a single field.
func (f *frame) emit(b *fieldBuilder, v any, quoted bool) {
	s := vars.String(v)
	if quoted {
		b.quoted(s)
		return
	}
	if _, ok := v.(string); ok {
		b.split(s)
		return
	}
	b.raw(s)
}

func (f *frame) positionals(b *fieldBuilder, name string, quoted bool) {
	var args []string
	if pos := f.proc.Positionals; len(pos) > 1 {
		args = pos[1:]
	}
	switch {
	case quoted && name == "@":
		for i, arg := range args {
			if i > 0 {
				b.next()
			}
			b.quoted(arg)
		}
	case quoted:
		b.quoted(joinFields(args))
	default:
		b.split(joinFields(args))
	}
}

func isAllPositionals(part syntax.WordPart) bool {
	pe, ok := part.(*syntax.ParamExp)
	if !ok || pe.Param == nil {
		return false
	}
	name := pe.Param.Value
	return (name == "@" || name == "*") && !pe.Length && pe.Exp == nil && pe.Slice == nil && pe.Repl == nil
}

// lastValuePath detects $_ immediately followed by a path such as $_/a/b.
func lastValuePath(pe *syntax.ParamExp, rest []syntax.WordPart) (*syntax.Lit, bool) {
	if !pe.Short || pe.Param == nil || pe.Param.Value != vars.KeyLast || len(rest) == 0 {
		return nil, false
	}
	lit, ok := rest[0].(*syntax.Lit)
	if !ok || !(strings.HasPrefix(lit.Value, "/") || strings.HasPrefix(lit.Value, ".")) {
		return nil, false
	}
	return lit, true
}

// splitPath separates a leading variable path from trailing text.
func splitPath(s string) (path, rest string) {
	end := strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_' || r == '-' || r == '.' || r == '/':
			return false
		}
		return true
	})
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

func (f *frame) lastValue(path string) (any, error) {
	var out any
	err := f.in.reg.ViewHome(f.proc.SessionKey, func(home map[string]any) error {
		v, err := vars.Lookup(home[vars.KeyLast], vars.Split(path))
		out = vars.Clone(v)
		return err
	})
	if errors.Is(err, vars.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// unquoteLit removes backslash quoting from literal text. Inside double
// quotes only \$ \` \" \\ and line continuations are escapes.
func unquoteLit(s string, dbl bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			n := s[i+1]
			if !dbl || strings.IndexByte("$`\"\\\n", n) >= 0 {
				if n != '\n' {
					sb.WriteByte(n)
				}
				i++
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// ansiC interprets the escapes of $'...' strings.
func ansiC(s string) string {
	out, _, err := expand.Format(nil, "%b", []string{s})
	if err != nil {
		return s
	}
	return out
}

// joinValues renders command substitution output for interpolation.
func joinValues(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = vars.String(v)
	}
	return strings.TrimRight(strings.Join(parts, "\n"), "\n")
}

// cmdSubst runs the statements in a child process and collects everything
// it wrote to its standard output.
func (f *frame) cmdSubst(cs *syntax.CmdSubst) ([]any, error) {
	key := f.in.newKey("subst")
	fifo := device.NewFIFO(key, 0)
	f.in.reg.AddDevice(fifo)
	defer f.in.reg.RemoveDevice(key)

	fd := f.fdCopy()
	fd[1] = key
	code, err := f.in.Spawn(f.ctx, f.proc.SessionKey, cs.Stmts, SpawnOpts{
		Parent:      f.proc,
		Internal:    true,
		FD:          fd,
		Positionals: f.proc.Positionals,
		Src:         printNode(cs),
	})
	fifo.FinishedWriting()
	buffered := fifo.ReadAll()
	fifo.FinishedReading()
	if err != nil {
		return nil, err
	}
	f.exit = code

	var vals []any
	for _, v := range buffered {
		vals = append(vals, device.Items(v)...)
	}
	return vals, nil
}

// assignment evaluates the value an Assign node stores, merging with the
// current value for +=.
func (f *frame) assignment(as *syntax.Assign) (any, error) {
	var v any
	switch {
	case as.Array != nil:
		list := []any{}
		for _, elem := range as.Array.Elems {
			fields, err := f.fields(elem.Value)
			if err != nil {
				return nil, err
			}
			for _, field := range fields {
				list = append(list, vars.Parse(field))
			}
		}
		v = list
	case as.Naked:
		v = ""
	default:
		var err error
		if v, err = f.rhs(as.Value); err != nil {
			return nil, err
		}
	}

	if as.Append {
		old, _ := f.in.reg.Var(f.proc, as.Name.Value)
		v = vars.Merge(vars.Clone(old), v)
	}
	return v, nil
}

// rhs evaluates the right-hand side of an assignment. A lone command
// substitution or parameter keeps its structured value, everything else is
// parsed from its string form.
func (f *frame) rhs(word *syntax.Word) (any, error) {
	if word == nil {
		return "", nil
	}
	if len(word.Parts) == 1 {
		switch part := word.Parts[0].(type) {
		case *syntax.CmdSubst:
			vals, err := f.cmdSubst(part)
			if err != nil {
				return nil, err
			}
			switch len(vals) {
			case 0:
				return "", nil
			case 1:
				if s, ok := vals[0].(string); ok {
					return strings.TrimRight(s, "\n"), nil
				}
				return vals[0], nil
			}
			return vals, nil
		case *syntax.ParamExp:
			if !isAllPositionals(part) {
				v, err := f.paramValue(part)
				return vars.Clone(v), err
			}
		}
	}

	s, err := f.literal(word)
	if err != nil {
		return nil, err
	}
	return vars.Parse(s), nil
}

// lookupParam resolves special parameters, then variables.
func (f *frame) lookupParam(name string) (any, bool) {
	if v, ok := f.special(name); ok {
		return v, true
	}
	return f.in.reg.Var(f.proc, name)
}

func (f *frame) paramValue(pe *syntax.ParamExp) (any, error) {
	if pe.Param == nil {
		return nil, f.syntaxError(pe)
	}
	name := pe.Param.Value
	if pe.Excl || pe.Width || pe.Slice != nil || pe.Repl != nil || pe.Index != nil || pe.Names != 0 {
		return nil, vos.Errorf(vos.ExitFailure, "npcsh: ${%s}: bad substitution", name)
	}

	v, set := f.lookupParam(name)
	if pe.Length {
		return strconv.Itoa(length(v)), nil
	}
	if pe.Exp == nil {
		return v, nil
	}

	null := !set || vars.String(v) == ""
	word := func() (string, error) { return f.literal(pe.Exp.Word) }

	switch op := pe.Exp.Op; op {
	case syntax.DefaultUnset, syntax.DefaultUnsetOrNull:
		if !set || (op == syntax.DefaultUnsetOrNull && null) {
			return word()
		}
		return v, nil

	case syntax.AlternateUnset, syntax.AlternateUnsetOrNull:
		if !set || (op == syntax.AlternateUnsetOrNull && null) {
			return "", nil
		}
		return word()

	case syntax.AssignUnset, syntax.AssignUnsetOrNull:
		if set && !(op == syntax.AssignUnsetOrNull && null) {
			return v, nil
		}
		s, err := word()
		if err != nil {
			return nil, err
		}
		if err := f.in.reg.SetVar(f.proc, name, vars.Parse(s)); err != nil {
			return nil, err
		}
		return s, nil

	case syntax.ErrorUnset, syntax.ErrorUnsetOrNull:
		if set && !(op == syntax.ErrorUnsetOrNull && null) {
			return v, nil
		}
		msg, err := word()
		if err != nil {
			return nil, err
		}
		if msg == "" {
			msg = "parameter null or not set"
		}
		return nil, vos.Errorf(vos.ExitFailure, "npcsh: %s: %s", name, msg)

	case syntax.RemSmallPrefix, syntax.RemLargePrefix, syntax.RemSmallSuffix, syntax.RemLargeSuffix:
		pat, err := f.pattern(pe.Exp.Word)
		if err != nil {
			return nil, err
		}
		return trimPattern(vars.String(v), pat, op)

	case syntax.UpperFirst, syntax.UpperAll, syntax.LowerFirst, syntax.LowerAll:
		return changeCase(vars.String(v), op), nil
	}
	return nil, vos.Errorf(vos.ExitFailure, "npcsh: ${%s}: bad substitution", name)
}

func length(v any) int {
	switch v := v.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	}
	return utf8.RuneCountInString(vars.String(v))
}

func trimPattern(s, pat string, op syntax.ParExpOperator) (string, error) {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return "", vos.Errorf(vos.ExitFailure, "npcsh: bad pattern %q: %v", pat, err)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", vos.Errorf(vos.ExitFailure, "npcsh: bad pattern %q: %v", pat, err)
	}

	switch op {
	case syntax.RemSmallPrefix:
		for i := 0; i <= len(s); i++ {
			if re.MatchString(s[:i]) {
				return s[i:], nil
			}
		}
	case syntax.RemLargePrefix:
		for i := len(s); i >= 0; i-- {
			if re.MatchString(s[:i]) {
				return s[i:], nil
			}
		}
	case syntax.RemSmallSuffix:
		for i := len(s); i >= 0; i-- {
			if re.MatchString(s[i:]) {
				return s[:i], nil
			}
		}
	case syntax.RemLargeSuffix:
		for i := 0; i <= len(s); i++ {
			if re.MatchString(s[i:]) {
				return s[:i], nil
			}
		}
	}
	return s, nil
}

func changeCase(s string, op syntax.ParExpOperator) string {
	if s == "" {
		return s
	}
	switch op {
	case syntax.UpperAll:
		return strings.ToUpper(s)
	case syntax.LowerAll:
		return strings.ToLower(s)
	}
	r, size := utf8.DecodeRuneInString(s)
	first := string(r)
	if op == syntax.UpperFirst {
		first = strings.ToUpper(first)
	} else {
		first = strings.ToLower(first)
	}
	return first + s[size:]
}

// arithEnv exposes process variables to arithmetic expansion.
type arithEnv struct {
	f *frame
}

var _ expand.WriteEnviron = arithEnv{}

func (e arithEnv) Get(name string) expand.Variable {
	v, ok := e.f.lookupParam(name)
	if !ok {
		return expand.Variable{}
	}
	return expand.Variable{Set: true, Kind: expand.String, Str: vars.String(v)}
}

func (e arithEnv) Each(fn func(name string, vr expand.Variable) bool) {
	for name := range e.f.in.reg.Visible(e.f.proc) {
		if !fn(name, e.Get(name)) {
			return
		}
	}
}

func (e arithEnv) Set(name string, vr expand.Variable) error {
	if !vr.IsSet() {
		e.f.in.reg.UnsetVar(e.f.proc, name)
		return nil
	}
	return e.f.in.reg.SetVar(e.f.proc, name, vars.Parse(vr.String()))
}

func arithm(f *frame, expr syntax.ArithmExpr) (int, error) {
	return expand.Arithm(&expand.Config{Env: arithEnv{f}}, expr)
}

package vos

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vars"
)

// Registry owns every session and device of the runtime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	devices  map[string]device.Device
	lib      map[string]any
	log      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		devices:  make(map[string]device.Device),
		lib:      make(map[string]any),
		log:      log,
	}
}

// NewSession creates a session whose terminal is tty.
func (r *Registry) NewSession(key string, tty device.Device, opts SessionOpts) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, key)
	}

	home := vars.CloneMap(opts.Home)
	if _, ok := home[vars.KeyPWD]; !ok {
		home[vars.KeyPWD] = "/home"
	}
	if _, ok := home[vars.KeyOldPWD]; !ok {
		home[vars.KeyOldPWD] = home[vars.KeyPWD]
	}

	s := &Session{
		Key:     key,
		procs:   make(map[int]*Process),
		funcs:   make(map[string]*Func),
		home:    home,
		nextPID: 1,
		history: append([]string(nil), opts.History...),
		links:   make(map[string]func()),
		onEvent: opts.OnEvent,
	}
	if tty != nil {
		s.TTYKey = tty.Key()
		r.devices[tty.Key()] = tty
	}
	r.sessions[key] = s
	r.log.Debug("session created", "session", key)
	return s, nil
}

// CloseSession kills every process in reverse creation order and releases the
// session's terminal.
func (r *Registry) CloseSession(key string) error {
	r.mu.RLock()
	s, ok := r.sessions[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, key)
	}

	r.KillAll(key, KillOpts{})

	r.mu.Lock()
	delete(r.sessions, key)
	tty := r.devices[s.TTYKey]
	delete(r.devices, s.TTYKey)
	r.mu.Unlock()

	if closer, ok := tty.(interface{ Close() }); ok {
		closer.Close()
	}
	r.log.Debug("session closed", "session", key)
	return nil
}

// Session looks up a session.
func (r *Registry) Session(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session(key)
}

// must hold r.mu
func (r *Registry) session(key string) (*Session, error) {
	s, ok := r.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, key)
	}
	return s, nil
}

// Sessions lists session keys in sorted order.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProcOpts describe a process to create.
type ProcOpts struct {
	// Parent supplies the ppid, pgid and inherited variables.
	Parent *Process
	// Leading reuses the session leader, pid 0.
	Leading bool
	// NewGroup makes the process lead a new process group.
	NewGroup bool
	// FreshCwd gives the process its own PWD/OLDPWD pair.
	FreshCwd    bool
	Background  bool
	Src         string
	FD          map[int]string
	Positionals []string
	LocalVar    map[string]any
	PTags       map[string]any
}

// NewProcess registers a process in the session.
func (r *Registry) NewProcess(sessionKey string, opts ProcOpts) (*Process, error) {
	r.mu.Lock()
	s, err := r.session(sessionKey)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	var p *Process
	if opts.Leading {
		p = s.procs[0]
	}
	if p == nil {
		p = &Process{SessionKey: sessionKey, reg: r}
		if opts.Leading {
			p.PID = 0
		} else {
			p.PID = s.nextPID
			s.nextPID++
		}
		s.procs[p.PID] = p
		s.order = append(s.order, p.PID)
	}
	p.revive()
	p.Src = opts.Src
	p.Background = opts.Background
	p.Started = time.Now()
	p.Positionals = append([]string(nil), opts.Positionals...)
	p.PTags = make(map[string]any)
	if parent := opts.Parent; parent != nil && !opts.Leading {
		for k, v := range parent.PTags {
			p.PTags[k] = vars.Clone(v)
		}
	}
	for k, v := range opts.PTags {
		p.PTags[k] = vars.Clone(v)
	}

	p.FD = make(map[int]string, len(opts.FD))
	for k, v := range opts.FD {
		p.FD[k] = v
	}
	if len(p.FD) == 0 && s.TTYKey != "" {
		p.FD = map[int]string{0: s.TTYKey, 1: s.TTYKey, 2: s.TTYKey}
	}

	p.InheritVar = make(map[string]any)
	if parent := opts.Parent; parent != nil && !opts.Leading {
		p.PPID = parent.PID
		p.PGID = parent.PGID
		for k, v := range parent.InheritVar {
			p.InheritVar[k] = vars.Clone(v)
		}
		for k, v := range parent.LocalVar {
			p.InheritVar[k] = vars.Clone(v)
		}
	}
	if opts.NewGroup || opts.Leading {
		p.PGID = p.PID
	}

	p.LocalVar = vars.CloneMap(opts.LocalVar)
	if opts.FreshCwd {
		for _, k := range []string{vars.KeyPWD, vars.KeyOldPWD} {
			v, _ := r.lookupVar(s, p, k)
			p.LocalVar[k] = v
		}
	}

	var events []Event
	if p.IsGroupLeader() {
		events = append(events, Event{Kind: EventStarted, SessionKey: sessionKey, PID: p.PID, Src: p.Src})
	}
	r.mu.Unlock()

	s.emit(events)
	return p, nil
}

// Finish records the exit code of p, runs its outstanding cleanups and
// removes it from the table unless it is the session leader. Suspend and
// resume hooks are dropped.
func (r *Registry) Finish(p *Process, code int) {
	r.mu.Lock()
	p.exitCode = code
	cleanups := p.takeCleanups()
	p.onSuspends = nil
	p.onResumes = nil
	s, err := r.session(p.SessionKey)
	var events []Event
	if err == nil {
		if p.PID != 0 {
			delete(s.procs, p.PID)
			s.removeFromOrder(p.PID)
		}
		if p.IsGroupLeader() {
			events = append(events, Event{Kind: EventEnded, SessionKey: p.SessionKey, PID: p.PID, Src: p.Src})
		}
	}
	r.mu.Unlock()

	for _, fn := range cleanups {
		fn(false)
	}
	if s != nil {
		s.emit(events)
	}
}

// SetTags merges tags into the tags of p. Processes p spawns afterwards
// inherit them.
func (r *Registry) SetTags(p *Process, tags map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range tags {
		p.PTags[k] = vars.Clone(v)
	}
}

// RemoveProcess drops a process from the table without running anything.
func (r *Registry) RemoveProcess(sessionKey string, pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return err
	}
	if _, ok := s.procs[pid]; !ok {
		return fmt.Errorf("%w: %d", ErrProcessNotFound, pid)
	}
	delete(s.procs, pid)
	s.removeFromOrder(pid)
	return nil
}

// Process looks up a process by pid.
func (r *Registry) Process(sessionKey string, pid int) (*Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return nil, err
	}
	p, ok := s.procs[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProcessNotFound, pid)
	}
	return p, nil
}

// Leader returns the session leader, or nil if nothing ran yet.
func (r *Registry) Leader(sessionKey string) *Process {
	p, _ := r.Process(sessionKey, 0)
	return p
}

// Processes lists the processes of a session ordered by pid, optionally only
// the members of one process group.
func (r *Registry) Processes(sessionKey string, pgid *int) []*Process {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return nil
	}
	var out []*Process
	for _, p := range s.procs {
		if pgid != nil && p.PGID != *pgid {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// LastExit returns the last recorded foreground or background exit code.
func (r *Registry) LastExit(sessionKey string, bg bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return 0
	}
	return s.lastExit[slot(bg)]
}

// SetLastExit records an exit code.
func (r *Registry) SetLastExit(sessionKey string, bg bool, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, err := r.session(sessionKey); err == nil {
		s.lastExit[slot(bg)] = code
	}
}

func slot(bg bool) int {
	if bg {
		return 1
	}
	return 0
}

// History returns a copy of the session's command history.
func (r *Registry) History(sessionKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return nil
	}
	return append([]string(nil), s.history...)
}

// AppendHistory records line unless it repeats the previous entry, keeping at
// most limit entries when limit > 0. It reports whether line was added.
func (r *Registry) AppendHistory(sessionKey, line string, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return false
	}
	if n := len(s.history); n > 0 && s.history[n-1] == line {
		return false
	}
	s.history = append(s.history, line)
	if limit > 0 && len(s.history) > limit {
		s.history = append([]string(nil), s.history[len(s.history)-limit:]...)
	}
	return true
}

// ClearHistory forgets the session's command history.
func (r *Registry) ClearHistory(sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, err := r.session(sessionKey); err == nil {
		s.history = nil
	}
}

// AddLink registers a callback for clickable text.
func (r *Registry) AddLink(sessionKey, text string, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return err
	}
	s.links[text] = fn
	return nil
}

// RemoveLink unregisters a link callback.
func (r *Registry) RemoveLink(sessionKey, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, err := r.session(sessionKey); err == nil {
		delete(s.links, text)
	}
}

// ClickLink invokes the callback registered for text.
func (r *Registry) ClickLink(sessionKey, text string) bool {
	r.mu.RLock()
	s, err := r.session(sessionKey)
	var fn func()
	if err == nil {
		fn = s.links[text]
	}
	r.mu.RUnlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// AddDevice registers a device under its key.
func (r *Registry) AddDevice(d device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.Key()] = d
}

// RemoveDevice unregisters a device.
func (r *Registry) RemoveDevice(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, key)
}

// Device looks up a device.
func (r *Registry) Device(key string) (device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[key]
	return d, ok
}

// DefineFunc stores a function in the session.
func (r *Registry) DefineFunc(sessionKey string, fn *Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return err
	}
	s.funcs[fn.Name] = fn
	return nil
}

// Func looks up a function.
func (r *Registry) Func(sessionKey, name string) (*Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return nil, false
	}
	fn, ok := s.funcs[name]
	return fn, ok
}

// Funcs lists the session's functions sorted by name.
func (r *Registry) Funcs(sessionKey string) []*Func {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return nil
	}
	out := make([]*Func, 0, len(s.funcs))
	for _, fn := range s.funcs {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UnsetFunc removes a function, reporting whether it existed.
func (r *Registry) UnsetFunc(sessionKey, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return false
	}
	_, ok := s.funcs[name]
	delete(s.funcs, name)
	return ok
}

// Mount exposes a host value, usually a vars.Invocable, under /lib.
func (r *Registry) Mount(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lib[name] = v
}

// Lib returns a copy of the mounted host values.
func (r *Registry) Lib() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.lib))
	for k, v := range r.lib {
		out[k] = v
	}
	return out
}

package vos

import (
	"github.com/josephlewis42/npcsh/core/vars"
)

// must hold r.mu
func (r *Registry) lookupVar(s *Session, p *Process, name string) (any, bool) {
	if p != nil {
		if v, ok := p.LocalVar[name]; ok {
			return v, true
		}
		if v, ok := p.InheritVar[name]; ok {
			return v, true
		}
	}
	v, ok := s.home[name]
	return v, ok
}

// Var reads a variable: local, then inherited, then the session home.
func (r *Registry) Var(p *Process, name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(p.SessionKey)
	if err != nil {
		return nil, false
	}
	return r.lookupVar(s, p, name)
}

// SetVar writes a variable where it is visible from p: the local or
// inherited scope if it already exists there, otherwise the session home.
// Inherited writes never reach the parent.
func (r *Registry) SetVar(p *Process, name string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(p.SessionKey)
	if err != nil {
		return err
	}
	switch {
	case has(p.LocalVar, name):
		p.LocalVar[name] = v
	case has(p.InheritVar, name):
		p.InheritVar[name] = v
	default:
		s.home[name] = v
	}
	return nil
}

// UnsetVar removes the innermost visible binding of name.
func (r *Registry) UnsetVar(p *Process, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(p.SessionKey)
	if err != nil {
		return false
	}
	for _, scope := range []map[string]any{p.LocalVar, p.InheritVar, s.home} {
		if has(scope, name) {
			delete(scope, name)
			return true
		}
	}
	return false
}

// DeclareLocal binds name in p's local scope.
func (r *Registry) DeclareLocal(p *Process, name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.LocalVar == nil {
		p.LocalVar = make(map[string]any)
	}
	p.LocalVar[name] = v
}

// SwapLocals binds vals in p's local scope and returns a function restoring
// the previous bindings.
func (r *Registry) SwapLocals(p *Process, vals map[string]any) (restore func()) {
	type saved struct {
		v   any
		had bool
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.LocalVar == nil {
		p.LocalVar = make(map[string]any)
	}
	prev := make(map[string]saved, len(vals))
	for k, v := range vals {
		old, had := p.LocalVar[k]
		prev[k] = saved{old, had}
		p.LocalVar[k] = v
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for k, s := range prev {
			if s.had {
				p.LocalVar[k] = s.v
			} else {
				delete(p.LocalVar, k)
			}
		}
	}
}

// Scope describes where a visible variable lives.
type Scope string

const (
	ScopeLocal   Scope = "local"
	ScopeInherit Scope = "inherit"
	ScopeHome    Scope = "home"
)

// Visible lists every variable visible from p with the scope it resolves
// to.
func (r *Registry) Visible(p *Process) map[string]Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Scope)
	if s, err := r.session(p.SessionKey); err == nil {
		for k := range s.home {
			out[k] = ScopeHome
		}
	}
	for k := range p.InheritVar {
		out[k] = ScopeInherit
	}
	for k := range p.LocalVar {
		out[k] = ScopeLocal
	}
	return out
}

// ViewHome calls fn with the session home under a read lock. fn must not
// retain or modify the map.
func (r *Registry) ViewHome(sessionKey string, fn func(home map[string]any) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return err
	}
	return fn(s.home)
}

// UpdateHome calls fn with the session home under the write lock.
func (r *Registry) UpdateHome(sessionKey string, fn func(home map[string]any) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return err
	}
	return fn(s.home)
}

// UpdateScope calls fn with the scope that owns name as seen from p, the
// same scope SetVar would write to.
func (r *Registry) UpdateScope(p *Process, name string, fn func(scope map[string]any) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(p.SessionKey)
	if err != nil {
		return err
	}
	switch {
	case has(p.LocalVar, name):
		return fn(p.LocalVar)
	case has(p.InheritVar, name):
		return fn(p.InheritVar)
	}
	return fn(s.home)
}

// Snapshot returns a deep copy of the persistable part of the session home.
func (r *Registry) Snapshot(sessionKey string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.session(sessionKey)
	if err != nil {
		return nil
	}
	return vars.Persistable(s.home)
}

func has(m map[string]any, k string) bool {
	if m == nil {
		return false
	}
	_, ok := m[k]
	return ok
}

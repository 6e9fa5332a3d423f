package vos

// KillOpts selects what Kill does to its targets.
type KillOpts struct {
	// STOP suspends instead of killing.
	STOP bool
	// CONT resumes instead of killing.
	CONT bool
	// SIGINT marks the kill as an interrupt.
	SIGINT bool
	// Group applies the operation to the target's whole process group.
	Group bool
	// Global tells hooks the whole session is paused, not just one job.
	Global bool
}

func (o KillOpts) signal() Signal {
	switch {
	case o.STOP:
		return SIGSTOP
	case o.CONT:
		return SIGCONT
	case o.SIGINT:
		return SIGINT
	}
	return SIGKILL
}

// Kill kills, suspends or resumes procs. Group leaders, or every target if
// opts.Group is set, expand to all members of their process group in
// reverse registration order.
func (r *Registry) Kill(sessionKey string, procs []*Process, opts KillOpts) error {
	r.mu.Lock()
	s, err := r.session(sessionKey)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	targets := r.expand(s, procs, opts.Group)
	r.mu.Unlock()

	r.apply(s, targets, opts)
	return nil
}

// KillAll applies opts to every process of the session, newest first.
func (r *Registry) KillAll(sessionKey string, opts KillOpts) error {
	r.mu.Lock()
	s, err := r.session(sessionKey)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	targets := make([]*Process, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		targets = append(targets, s.procs[s.order[i]])
	}
	r.mu.Unlock()

	r.apply(s, targets, opts)
	return nil
}

// must hold r.mu
func (r *Registry) expand(s *Session, procs []*Process, group bool) []*Process {
	seen := make(map[int]bool)
	var out []*Process
	add := func(p *Process) {
		if !seen[p.PID] {
			seen[p.PID] = true
			out = append(out, p)
		}
	}

	for _, p := range procs {
		if p == nil {
			continue
		}
		if !group && !p.IsGroupLeader() {
			add(p)
			continue
		}
		for i := len(s.order) - 1; i >= 0; i-- {
			if member := s.procs[s.order[i]]; member.PGID == p.PGID {
				add(member)
			}
		}
		// Already finished processes can still be signalled directly.
		add(p)
	}
	return out
}

func (r *Registry) apply(s *Session, targets []*Process, opts KillOpts) {
	sig := opts.signal()
	var events []Event
	event := func(p *Process, kind EventKind) {
		if p.IsGroupLeader() {
			events = append(events, Event{Kind: kind, SessionKey: s.Key, PID: p.PID, Src: p.Src})
		}
	}

	switch {
	case opts.STOP:
		hooks := make([][]Hook, len(targets))
		r.mu.Lock()
		for i, p := range targets {
			if p.suspend() {
				event(p, EventPaused)
			}
			hooks[i], p.onSuspends = p.onSuspends, nil
		}
		r.mu.Unlock()

		for i, p := range targets {
			keep := runHooks(hooks[i], opts.Global)
			r.mu.Lock()
			p.onSuspends = append(keep, p.onSuspends...)
			r.mu.Unlock()
		}

	case opts.CONT:
		hooks := make([][]Hook, len(targets))
		r.mu.Lock()
		for i, p := range targets {
			if p.resume() {
				event(p, EventResumed)
			}
			hooks[i], p.onResumes = p.onResumes, nil
		}
		r.mu.Unlock()

		for i, p := range targets {
			keep := runHooks(hooks[i], opts.Global)
			r.mu.Lock()
			p.onResumes = append(keep, p.onResumes...)
			r.mu.Unlock()
		}

	default:
		cleanups := make([][]Cleanup, len(targets))
		r.mu.Lock()
		for i, p := range targets {
			cleanups[i] = p.kill(p.KillError(sig))
		}
		r.mu.Unlock()

		for _, list := range cleanups {
			for _, fn := range list {
				fn(opts.SIGINT)
			}
		}
	}

	r.log.Debug("signal delivered", "session", s.Key, "signal", sig.String(), "targets", len(targets))
	s.emit(events)
}

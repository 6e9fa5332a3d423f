package shell

import (
	"strconv"
	"strings"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vos"
	"mvdan.cc/sh/v3/syntax"
)

// redirect rebinds the descriptor table for one statement. The returned
// function restores it and releases the devices created for it.
func (f *frame) redirect(redirs []*syntax.Redirect) (func(), error) {
	if len(redirs) == 0 {
		return func() {}, nil
	}

	saved := f.fd
	f.fd = f.fdCopy()
	var created []string
	restore := func() {
		f.fd = saved
		for _, key := range created {
			f.in.reg.RemoveDevice(key)
		}
	}

	for _, rd := range redirs {
		key, err := f.redirectOne(rd)
		if err != nil {
			return restore, err
		}
		if key != "" {
			created = append(created, key)
		}
	}
	return restore, nil
}

// redirectOne applies rd and returns the key of a device it created.
func (f *frame) redirectOne(rd *syntax.Redirect) (string, error) {
	n := 1
	switch rd.Op {
	case syntax.RdrIn, syntax.DplIn, syntax.WordHdoc, syntax.Hdoc, syntax.DashHdoc:
		n = 0
	}
	if rd.N != nil {
		var err error
		if n, err = strconv.Atoi(rd.N.Value); err != nil {
			return "", vos.Errorf(vos.ExitFailure, "npcsh: %s: bad file descriptor", rd.N.Value)
		}
	}

	switch rd.Op {
	case syntax.DplOut, syntax.DplIn:
		target, err := f.literal(rd.Word)
		if err != nil {
			return "", err
		}
		if target == "-" {
			delete(f.fd, n)
			return "", nil
		}
		m, err := strconv.Atoi(target)
		if err != nil {
			return "", vos.Errorf(vos.ExitFailure, "npcsh: %s: bad file descriptor", target)
		}
		key, ok := f.fd[m]
		if !ok {
			return "", vos.Errorf(vos.ExitFailure, "npcsh: %d: bad file descriptor", m)
		}
		f.fd[n] = key
		return "", nil

	case syntax.RdrOut, syntax.AppOut, syntax.ClbOut, syntax.RdrAll, syntax.AppAll:
		target, err := f.literal(rd.Word)
		if err != nil {
			return "", err
		}
		key, created, err := f.sink(target, rd.Op)
		if err != nil {
			return "", err
		}
		if rd.Op == syntax.RdrAll || rd.Op == syntax.AppAll {
			f.fd[1], f.fd[2] = key, key
		} else {
			f.fd[n] = key
		}
		if created {
			return key, nil
		}
		return "", nil

	case syntax.RdrIn:
		target, err := f.literal(rd.Word)
		if err != nil {
			return "", err
		}
		if target == device.KeyNull {
			f.fd[n] = device.KeyNull
			return "", nil
		}
		v, err := (&API{f: f}).Lookup(target)
		if err != nil {
			return "", vos.Errorf(vos.ExitFailure, "npcsh: %s: %v", target, err)
		}
		var vals []any
		if list, ok := v.([]any); ok {
			vals = list
		} else {
			vals = []any{v}
		}
		return f.feed(n, vals), nil

	case syntax.WordHdoc:
		s, err := f.literal(rd.Word)
		if err != nil {
			return "", err
		}
		return f.feed(n, []any{s}), nil

	case syntax.Hdoc, syntax.DashHdoc:
		body, err := f.literal(rd.Hdoc)
		if err != nil {
			return "", err
		}
		lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
		vals := make([]any, len(lines))
		for i, line := range lines {
			if rd.Op == syntax.DashHdoc {
				line = strings.TrimLeft(line, "\t")
			}
			vals[i] = line
		}
		return f.feed(n, vals), nil
	}
	return "", f.syntaxError(rd)
}

// sink resolves an output target: a registered device or a variable path.
func (f *frame) sink(target string, op syntax.RedirOperator) (key string, created bool, err error) {
	if strings.HasPrefix(target, "/dev/") {
		if _, ok := f.in.reg.Device(target); !ok {
			return "", false, vos.Errorf(vos.ExitFailure, "npcsh: %s: no such device", target)
		}
		return target, false, nil
	}
	if target == "" {
		return "", false, vos.Errorf(vos.ExitFailure, "npcsh: ambiguous redirect")
	}

	mode := device.ModeLast
	switch op {
	case syntax.AppOut, syntax.AppAll:
		mode = device.ModeArray
	case syntax.ClbOut:
		mode = device.ModeFreshArray
	}
	key = f.in.newKey("var")
	f.in.reg.AddDevice(device.NewVarSink(key, varStore{&API{f: f}}, target, mode))
	return key, true, nil
}

// feed binds fd n to a FIFO preloaded with vals.
func (f *frame) feed(n int, vals []any) string {
	fifo := device.NewFIFO(f.in.newKey("in"), 0)
	for _, v := range vals {
		fifo.WriteData(f.ctx, v)
	}
	fifo.FinishedWriting()
	f.in.reg.AddDevice(fifo)
	f.fd[n] = fifo.Key()
	return fifo.Key()
}

// varStore writes sink output through the process's path resolution.
type varStore struct {
	api *API
}

func (s varStore) Get(path string) (any, bool) {
	v, err := s.api.Lookup(path)
	return v, err == nil
}

func (s varStore) Set(path string, v any) error {
	return s.api.Assign(path, v)
}

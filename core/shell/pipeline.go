package shell

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/josephlewis42/npcsh/core/device"
	"github.com/josephlewis42/npcsh/core/vos"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/syntax"
)

// pipeStages flattens a | b | c into its stages.
func pipeStages(st *syntax.Stmt) []*syntax.Stmt {
	bc, ok := st.Cmd.(*syntax.BinaryCmd)
	if !ok || (bc.Op != syntax.Pipe && bc.Op != syntax.PipeAll) || st.Negated || st.Background || len(st.Redirs) > 0 {
		return []*syntax.Stmt{st}
	}
	return append(pipeStages(bc.X), pipeStages(bc.Y)...)
}

// pipeline runs every stage concurrently in its own process of the
// pipeline's process group, connected by FIFOs.
func (f *frame) pipeline(bc *syntax.BinaryCmd) error {
	stages := append(pipeStages(bc.X), pipeStages(bc.Y)...)
	n := len(stages)

	fifos := make([]*device.FIFO, n-1)
	for i := range fifos {
		fifos[i] = device.NewFIFO(f.in.newKey("pipe"), f.in.cfg.FIFOSize)
		f.in.reg.AddDevice(fifos[i])
	}
	defer func() {
		for _, fifo := range fifos {
			f.in.reg.RemoveDevice(fifo.Key())
		}
	}()

	procs := make([]*vos.Process, n)
	for i, st := range stages {
		fd := f.fdCopy()
		if i > 0 {
			fd[0] = fifos[i-1].Key()
		}
		if i < n-1 {
			fd[1] = fifos[i].Key()
			if bc.Op == syntax.PipeAll {
				fd[2] = fifos[i].Key()
			}
		}
		p, err := f.in.start(f.proc.SessionKey, SpawnOpts{
			Parent:      f.proc,
			Internal:    true,
			FD:          fd,
			Positionals: f.proc.Positionals,
			Src:         printNode(st),
		})
		if err != nil {
			for _, started := range procs[:i] {
				f.in.reg.Finish(started, vos.ExitKilled)
			}
			return err
		}
		procs[i] = p
	}

	codes := make([]int, n)
	done := make([]atomic.Bool, n)
	var g errgroup.Group
	for i, st := range stages {
		g.Go(func() error {
			code, err := f.in.runStage(f.ctx, procs[i], []*syntax.Stmt{st}, SpawnOpts{Internal: true})
			done[i].Store(true)
			if i > 0 {
				fifos[i-1].FinishedReading()
			}
			if i < n-1 {
				fifos[i].FinishedWriting()
			}
			codes[i] = code

			if err == nil {
				return nil
			}
			if _, ok := vos.AsKill(err); ok {
				return nil
			}
			f.killStages(procs, done)
			return err
		})
	}
	err := g.Wait()

	if err != nil {
		f.log.Debug("pipeline failed", "err", err)
		return f.proc.KillError(vos.SIGKILL)
	}
	if f.ctx.Err() != nil {
		return context.Cause(f.ctx)
	}
	if last := codes[n-1]; last == vos.ExitInterrupt {
		return f.proc.KillError(vos.SIGINT)
	}
	f.exit = codes[n-1]
	return nil
}

// killStages kills the stages still running once the grace period passed,
// leaving them time to register their own cleanups.
func (f *frame) killStages(procs []*vos.Process, done []atomic.Bool) {
	timer := time.NewTimer(f.in.cfg.PipelineKillGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-f.ctx.Done():
	}

	var alive []*vos.Process
	for i, p := range procs {
		if !done[i].Load() {
			alive = append(alive, p)
		}
	}
	f.in.reg.Kill(f.proc.SessionKey, alive, vos.KillOpts{})
}

// TagOwner is the tag holding the pid that started a background job.
const TagOwner = "owner"

// background starts the statement as a job in its own process group and
// returns at once. The job is tagged with its owner.
func (f *frame) background(st *syntax.Stmt) error {
	job := *st
	job.Background = false
	job.Negated = false

	opts := SpawnOpts{
		Parent:      f.proc,
		Background:  true,
		NewGroup:    true,
		FreshCwd:    true,
		FD:          f.fdCopy(),
		Positionals: f.proc.Positionals,
		Src:         printNode(&job),
		PTags:       map[string]any{TagOwner: f.proc.PID},
	}
	p, err := f.in.start(f.proc.SessionKey, opts)
	if err != nil {
		return err
	}
	f.log.Debug("background job", "job", p.PID, "src", opts.Src)

	go func() {
		code, err := f.in.run(context.Background(), p, []*syntax.Stmt{&job}, opts)
		f.in.topLevel(p, true, code, err)
	}()

	f.exit = 0
	if st.Negated {
		f.exit = 1
	}
	return nil
}

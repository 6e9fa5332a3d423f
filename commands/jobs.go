package commands

import (
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/josephlewis42/npcsh/core/vos"
)

// Kill kills, suspends or resumes processes of the session. %N names the
// process group N.
func Kill(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "kill [--all|--ALL|--others] [--STOP|--CONT|--INT] [-t KEY=VALUE] [PID|%PGID]...",
		Short: "Kill, suspend or resume processes.",
	}

	opts := cmd.Flags()
	all := opts.BoolLong("all", 0, "target every process of the session, the caller included")
	everything := opts.BoolLong("ALL", 0, "same as --all")
	others := opts.BoolLong("others", 'o', "target every process outside the caller's process group")
	stop := opts.BoolLong("STOP", 0, "suspend the targets")
	cont := opts.BoolLong("CONT", 0, "resume the targets")
	interrupt := opts.BoolLong("INT", 0, "interrupt the targets")
	tag := opts.StringLong("tag", 't', "", "only target processes tagged KEY=VALUE")

	return cmd.Run(c, func(yield func(any) bool) error {
		reg := c.Registry()
		session := c.SessionKey()
		killOpts := vos.KillOpts{STOP: *stop, CONT: *cont, SIGINT: *interrupt}

		match, err := tagFilter(*tag)
		if err != nil {
			return programError(c, err)
		}

		switch {
		case (*all || *everything) && *tag == "":
			if err := reg.KillAll(session, killOpts); err != nil {
				return programError(c, err)
			}
			return c.AwaitRunning()

		case *all || *everything || *others || (*tag != "" && len(opts.Args()) == 0):
			self := c.Process().PGID
			var targets []*vos.Process
			for _, p := range reg.Processes(session, nil) {
				if *others && p.PGID == self {
					continue
				}
				if match(p) {
					targets = append(targets, p)
				}
			}
			if err := reg.Kill(session, targets, killOpts); err != nil {
				return programError(c, err)
			}
			return c.AwaitRunning()
		}

		args := opts.Args()
		if len(args) == 0 {
			return programError(c, errMissingOperand("PID"))
		}

		var procs, groups []*vos.Process
		anyFailed := false
		for _, arg := range args {
			targets, err := killTargets(c, arg)
			if err != nil {
				anyFailed = true
				if err := c.WriteErr(fmt.Sprintf("kill: %s: %v\n", arg, err)); err != nil {
					return err
				}
				continue
			}
			for _, p := range targets {
				if !match(p) {
					continue
				}
				if strings.HasPrefix(arg, "%") {
					groups = append(groups, p)
				} else {
					procs = append(procs, p)
				}
			}
		}

		if err := reg.Kill(session, procs, killOpts); err != nil {
			return programError(c, err)
		}
		killOpts.Group = true
		if err := reg.Kill(session, groups, killOpts); err != nil {
			return programError(c, err)
		}
		if anyFailed {
			c.SetExitCode(vos.ExitFailure)
		}
		return c.AwaitRunning()
	})
}

// tagFilter parses a KEY=VALUE tag filter, the empty filter matches every
// process.
func tagFilter(filter string) (func(*vos.Process) bool, error) {
	if filter == "" {
		return func(*vos.Process) bool { return true }, nil
	}
	key, value, ok := strings.Cut(filter, "=")
	if !ok || key == "" {
		return nil, fmt.Errorf("invalid tag %q, want KEY=VALUE", filter)
	}
	return func(p *vos.Process) bool {
		return p.HasTag(key, value)
	}, nil
}

func killTargets(c *shell.Call, arg string) ([]*vos.Process, error) {
	reg := c.Registry()
	if group, ok := strings.CutPrefix(arg, "%"); ok {
		pgid, err := strconv.Atoi(group)
		if err != nil {
			return nil, fmt.Errorf("arguments must be process or job IDs")
		}
		procs := reg.Processes(c.SessionKey(), &pgid)
		if len(procs) == 0 {
			return nil, fmt.Errorf("no such job")
		}
		return procs, nil
	}

	pid, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("arguments must be process or job IDs")
	}
	p, err := reg.Process(c.SessionKey(), pid)
	if err != nil {
		return nil, fmt.Errorf("no such process")
	}
	return []*vos.Process{p}, nil
}

var _ shell.Builtin = Kill

func procStat(p *vos.Process) string {
	var stat string
	switch p.Status() {
	case vos.Running:
		stat = "R"
	case vos.Suspended:
		stat = "T"
	default:
		stat = "X"
	}
	if p.IsGroupLeader() {
		stat += "s"
	}
	if p.Background {
		stat += "&"
	}
	return stat
}

func cpuTime(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// Ps lists the processes of the session.
func Ps(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "ps [-g PGID] [-t KEY=VALUE]",
		Short: "Report a snapshot of the session's processes.",
	}

	group := cmd.Flags().Int('g', -1, "only show members of this process group")
	tag := cmd.Flags().String('t', "", "only show processes tagged KEY=VALUE")

	return cmd.Run(c, func(yield func(any) bool) error {
		var pgid *int
		if *group >= 0 {
			pgid = group
		}
		match, err := tagFilter(*tag)
		if err != nil {
			return programError(c, err)
		}

		var b strings.Builder
		w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tPPID\tPGID\tSTAT\tTIME\tCMD")
		for _, p := range c.Registry().Processes(c.SessionKey(), pgid) {
			if !match(p) {
				continue
			}
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n", p.PID, p.PPID, p.PGID, procStat(p), cpuTime(time.Since(p.Started)), p.Src)
		}
		w.Flush()

		yield(b.String())
		return nil
	})
}

var _ shell.Builtin = Ps

// parseSleep reads a number of seconds with an optional s, m, h or d suffix.
func parseSleep(arg string) (time.Duration, error) {
	unit := time.Second
	switch {
	case strings.HasSuffix(arg, "s"):
		arg = strings.TrimSuffix(arg, "s")
	case strings.HasSuffix(arg, "m"):
		arg, unit = strings.TrimSuffix(arg, "m"), time.Minute
	case strings.HasSuffix(arg, "h"):
		arg, unit = strings.TrimSuffix(arg, "h"), time.Hour
	case strings.HasSuffix(arg, "d"):
		arg, unit = strings.TrimSuffix(arg, "d"), 24*time.Hour
	}
	n, err := strconv.ParseFloat(arg, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid time interval %q", arg)
	}
	return time.Duration(n * float64(unit)), nil
}

// Sleep pauses for the sum of its arguments. Time spent suspended does not
// count.
func Sleep(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "sleep NUMBER[SUFFIX]...",
		Short: "Pause for NUMBER seconds, or minutes, hours or days with a m, h or d suffix.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			return programError(c, errMissingOperand("NUMBER"))
		}

		var total time.Duration
		for _, arg := range args {
			d, err := parseSleep(arg)
			if err != nil {
				return programError(c, err)
			}
			total += d
		}
		return c.Sleep(total)
	})
}

var _ shell.Builtin = Sleep

// Poll writes 1, 2, 3, ... once per poll interval.
func Poll(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "poll [-n COUNT]",
		Short: "Write an increasing counter once per poll interval.",
	}

	count := cmd.Flags().Int('n', 0, "stop after COUNT ticks, 0 polls until killed")

	return cmd.Run(c, func(yield func(any) bool) error {
		for n, err := range c.Poll() {
			if err != nil {
				return err
			}
			if !yield(float64(n)) {
				return nil
			}
			if *count > 0 && n >= *count {
				return nil
			}
		}
		return nil
	})
}

var _ shell.Builtin = Poll

// Tag sets tags on the calling process, which the processes it spawns
// inherit. Without arguments it lists the current tags.
func Tag(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "tag [KEY=VALUE]...",
		Short: "Tag the current process for ps -t and kill -t.",
	}

	return cmd.Run(c, func(yield func(any) bool) error {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			tags := c.Process().Tags()
			keys := make([]string, 0, len(tags))
			for k := range tags {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if !yield(fmt.Sprintf("%s=%s", k, vars.String(tags[k]))) {
					return nil
				}
			}
			return nil
		}

		tags := make(map[string]any, len(args))
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok || key == "" {
				return programError(c, fmt.Errorf("invalid tag %q, want KEY=VALUE", arg))
			}
			tags[key] = value
		}
		c.Registry().SetTags(c.Process(), tags)
		return nil
	})
}

var _ shell.Builtin = Tag

func init() {
	mustAddBuiltin(Tag, "tag")
	mustAddBuiltin(Kill, "kill")
	mustAddBuiltin(Ps, "ps")
	mustAddBuiltin(Sleep, "sleep")
	mustAddBuiltin(Poll, "poll")
}

//go:build linux

package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const memoryPollInterval = 5 * time.Millisecond

// namespaceFlags give every program its own user, network, pid, ipc and uts
// namespaces. The program is init of its pid namespace, so anything it forks,
// setsid or not, is killed by the kernel when it exits.
const namespaceFlags = unix.CLONE_NEWUSER | unix.CLONE_NEWNET | unix.CLONE_NEWPID |
	unix.CLONE_NEWIPC | unix.CLONE_NEWUTS

type ProcessOptions struct {
	// TempRoot is where per-sandbox directories are created; empty means os.TempDir.
	TempRoot     string
	SafetyFactor float64
	OutputLimit  int64
	// SharedNamespaces runs programs in the host namespaces. Only for hosts
	// without unprivileged user namespaces; programs then reach the network.
	SharedNamespaces bool
}

// ProcessExecutor runs programs as local child processes in a private
// directory and process group. The filesystem outside that directory is
// shared with the host, which is why the server only starts it on request.
type ProcessExecutor struct {
	opts ProcessOptions
}

func NewProcessExecutor(opts ProcessOptions) *ProcessExecutor {
	if opts.SafetyFactor < 1 {
		opts.SafetyFactor = 3
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = 64 << 20
	}
	return &ProcessExecutor{opts: opts}
}

func (e *ProcessExecutor) Open(ctx context.Context) (Sandbox, error) {
	dir, err := os.MkdirTemp(e.opts.TempRoot, "judge-")
	if err != nil {
		return nil, errors.Wrap(ErrInfrastructure, err.Error())
	}
	return &processSandbox{opts: e.opts, dir: dir}, nil
}

type processSandbox struct {
	opts ProcessOptions
	dir  string
	unit *Unit
}

func (s *processSandbox) Prepare(ctx context.Context, unit Unit) (*Result, error) {
	if len(unit.Run.Args) == 0 {
		return nil, errors.New("unit has no run step")
	}
	if unit.SourceName != "" {
		path := filepath.Join(s.dir, unit.SourceName)
		if err := os.WriteFile(path, []byte(unit.Source), 0o644); err != nil {
			return nil, errors.Wrap(ErrInfrastructure, err.Error())
		}
	}
	s.unit = &unit
	if unit.Compile == nil {
		return nil, nil
	}

	timeout := unit.Compile.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	res, err := s.run(ctx, unit.Compile.Args, "", timeout, unit.Compile.MemoryKb)
	if err != nil {
		return nil, errors.Wrap(err, "compile step")
	}
	if res.Outcome != OutcomeOK {
		res.Outcome = OutcomeCompileError
	}
	return res, nil
}

func (s *processSandbox) Execute(ctx context.Context, stdin string, limits Limits) (*Result, error) {
	if s.unit == nil {
		return nil, errors.New("execute before prepare")
	}
	limits = limits.WithDefaults()
	return s.run(ctx, s.unit.Run.Args, stdin, s.unit.runTimeout(limits), limits.MemoryKb)
}

func (s *processSandbox) Close() error {
	return os.RemoveAll(s.dir)
}

func (s *processSandbox) run(ctx context.Context, args []string, stdin string, timeout time.Duration, memoryKb int) (*Result, error) {
	return withCeiling(ctx, Ceiling(timeout, s.opts.SafetyFactor), func() (*Result, error) {
		return s.spawn(ctx, args, stdin, timeout, memoryKb)
	})
}

func (s *processSandbox) spawn(ctx context.Context, args []string, stdin string, timeout time.Duration, memoryKb int) (*Result, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = s.dir
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + s.dir,
		"TMPDIR=" + s.dir,
		"LANG=C.UTF-8",
	}
	cmd.Stdin = strings.NewReader(stdin)
	stdout := &cappedBuffer{limit: s.opts.OutputLimit}
	stderr := &cappedBuffer{limit: s.opts.OutputLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
	if !s.opts.SharedNamespaces {
		isolate(cmd.SysProcAttr)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrInfrastructure, "start %s: %v", args[0], err)
	}
	pid := cmd.Process.Pid

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(memoryPollInterval)
	defer poll.Stop()

	var timedOut, oom bool
	peakKb := 0
	kill := func() { _ = unix.Kill(-pid, unix.SIGKILL) }

wait:
	for {
		select {
		case <-waitDone:
			break wait
		case <-deadline.C:
			timedOut = true
			kill()
		case <-poll.C:
			if rss, err := readRSS(pid); err == nil {
				if rss > peakKb {
					peakKb = rss
				}
				if memoryKb > 0 && rss > memoryKb && !oom {
					oom = true
					kill()
				}
			}
		case <-ctx.Done():
			kill()
			<-waitDone
			return nil, ctx.Err()
		}
	}
	// Reap anything the program left behind in its group.
	kill()

	res := &Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   cmd.ProcessState.ExitCode(),
		WallTimeMs: int(time.Since(start).Milliseconds()),
	}
	if ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok && int(ru.Maxrss) > peakKb {
		peakKb = int(ru.Maxrss)
	}
	res.PeakMemoryKb = peakKb

	switch {
	case oom || (memoryKb > 0 && peakKb > memoryKb):
		res.Outcome = OutcomeOOM
	case timedOut:
		res.Outcome = OutcomeTimeout
	case !cmd.ProcessState.Success():
		res.Outcome = OutcomeRuntimeError
	case stdout.overflow || stderr.overflow:
		res.Outcome = OutcomeRuntimeError
		res.Stderr += fmt.Sprintf("\noutput limit of %d bytes exceeded", s.opts.OutputLimit)
	default:
		res.Outcome = OutcomeOK
	}
	return res, nil
}

// isolate maps the caller's own uid and gid into fresh namespaces, which
// needs no privileges where user namespaces are enabled.
func isolate(attr *syscall.SysProcAttr) {
	attr.Cloneflags = namespaceFlags
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getuid(), HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getgid(), HostID: os.Getgid(), Size: 1}}
	attr.GidMappingsEnableSetgroups = false
}

// NamespacesSupported reports whether this host lets the process backend
// create its namespaces.
func NamespacesSupported() error {
	cmd := exec.Command("/bin/true")
	cmd.SysProcAttr = &syscall.SysProcAttr{}
	isolate(cmd.SysProcAttr)
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "user namespaces unavailable")
	}
	return nil
}

// readRSS returns the resident set size of pid in kilobytes.
func readRSS(pid int) (int, error) {
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		return strconv.Atoi(fields[1])
	}
	return 0, fmt.Errorf("no VmRSS for pid %d", pid)
}

type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.overflow = true
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.overflow = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}

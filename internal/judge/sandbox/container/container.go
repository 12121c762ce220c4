//go:build linux

// Package container is the namespace and cgroup backed sandbox. It needs root
// and a cgroup hierarchy; Init must run first thing in main.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"tle_zone_judge/internal/judge/sandbox"

	sbcontainer "github.com/criyle/go-sandbox/container"
	"github.com/criyle/go-sandbox/pkg/cgroup"
	"github.com/criyle/go-sandbox/pkg/mount"
	"github.com/criyle/go-sandbox/pkg/rlimit"
	"github.com/criyle/go-sandbox/runner"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const workDir = "/w"

// Init lets the binary act as the container init process when re-executed by
// go-sandbox. It returns immediately in the normal case.
func Init() error {
	return sbcontainer.Init()
}

type Options struct {
	PoolSize     int
	SafetyFactor float64
	OutputLimit  int64
}

type Executor struct {
	opts   Options
	rootCG cgroup.Cgroup
	envs   chan *environment
}

type environment struct {
	sbcontainer.Environment
	root string
}

func New(opts Options) (*Executor, error) {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	if opts.SafetyFactor < 1 {
		opts.SafetyFactor = 3
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = 64 << 20
	}

	if cgroup.DetectType() == cgroup.TypeV2 {
		cgroup.EnableV2Nesting()
	}
	ct, err := cgroup.GetAvailableController()
	if err != nil {
		return nil, errors.Wrap(err, "cgroup controllers")
	}
	rootCG, err := cgroup.New("tle_zone_judge", ct)
	if err != nil {
		return nil, errors.Wrap(err, "cgroup.New")
	}

	e := &Executor{opts: opts, rootCG: rootCG, envs: make(chan *environment, opts.PoolSize)}
	for i := 0; i < opts.PoolSize; i++ {
		env, err := newEnvironment()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.envs <- env
	}
	return e, nil
}

func newEnvironment() (*environment, error) {
	root, err := os.MkdirTemp("", "judge-container-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create container root")
	}
	mb := mount.NewBuilder().
		WithBind("/bin", "bin", true).
		WithBind("/lib", "lib", true).
		WithBind("/lib64", "lib64", true).
		WithBind("/usr", "usr", true).
		WithBind("/etc/ld.so.cache", "etc/ld.so.cache", true).
		WithBind("/etc/alternatives", "etc/alternatives", true).
		WithProc().
		WithBind("/dev/null", "dev/null", false).
		WithTmpfs("tmp", "size=128m,nr_inodes=4k").
		WithTmpfs("w", "size=64m,nr_inodes=4k").
		FilterNotExist()

	cloneFlags := unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWNS |
		unix.CLONE_NEWPID | unix.CLONE_NEWUSER | unix.CLONE_NEWUTS

	b := sbcontainer.Builder{
		Root:          root,
		WorkDir:       workDir,
		Mounts:        mb.Mounts,
		Stderr:        os.Stderr,
		CredGenerator: newCredGen(),
		CloneFlags:    uintptr(cloneFlags),
	}
	env, err := b.Build()
	if err != nil {
		os.RemoveAll(root)
		return nil, errors.Wrap(err, "failed to build container")
	}
	return &environment{Environment: env, root: root}, nil
}

func (env *environment) destroy() {
	if env == nil {
		return
	}
	env.Destroy()
	os.RemoveAll(env.root)
}

// replace destroys env and builds a fresh one in its place.
func replace(env *environment) (*environment, error) {
	env.destroy()
	return newEnvironment()
}

// Close destroys every pooled container. Sandboxes still open are destroyed
// when they are returned.
func (e *Executor) Close() {
	for {
		select {
		case env := <-e.envs:
			env.destroy()
		default:
			return
		}
	}
}

// Open takes an environment from the pool. A nil slot is one whose rebuild
// failed earlier; it is retried here so the pool never shrinks.
func (e *Executor) Open(ctx context.Context) (sandbox.Sandbox, error) {
	select {
	case env := <-e.envs:
		var err error
		if env == nil {
			env, err = newEnvironment()
		} else if err = env.Reset(); err != nil {
			slog.Warn("container reset failed, replacing", "error", err)
			env, err = replace(env)
		}
		if err != nil {
			e.envs <- nil
			return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
		}
		return &containerSandbox{exec: e, env: env}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type containerSandbox struct {
	exec *Executor
	env  *environment
	unit *sandbox.Unit
	once sync.Once
	// broken is set when a run outlived its ceiling; the environment may still
	// hold the runaway process and is never reused.
	broken atomic.Bool
}

func (s *containerSandbox) Close() error {
	s.once.Do(func() {
		env := s.env
		var err error
		if s.broken.Load() {
			env, err = replace(env)
		} else if err = env.Reset(); err != nil {
			// Reset wipes the work tmpfs so nothing leaks to the next job.
			slog.Warn("container reset failed, replacing", "error", err)
			env, err = replace(env)
		}
		if err != nil {
			slog.Error("container rebuild failed", "error", err)
			env = nil
		}
		s.exec.envs <- env
	})
	return nil
}

func (s *containerSandbox) Prepare(ctx context.Context, unit sandbox.Unit) (*sandbox.Result, error) {
	if err := s.env.Ping(); err != nil {
		return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
	}
	if unit.SourceName != "" {
		files, err := s.env.Open([]sbcontainer.OpenCmd{
			{Path: path.Join(workDir, unit.SourceName), Flag: os.O_WRONLY | os.O_CREATE | os.O_TRUNC, Perm: 0o644},
		})
		if err != nil {
			return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
		}
		_, err = io.Copy(files[0], strings.NewReader(unit.Source))
		files[0].Close()
		if err != nil {
			return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
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
	memKb := unit.Compile.MemoryKb
	if memKb <= 0 {
		memKb = 512 * 1024
	}
	res, err := s.run(ctx, unit.Compile.Args, "", timeout, memKb)
	if err != nil {
		return nil, errors.Wrap(err, "compile step")
	}
	if res.Outcome != sandbox.OutcomeOK {
		res.Outcome = sandbox.OutcomeCompileError
	}
	return res, nil
}

func (s *containerSandbox) Execute(ctx context.Context, stdin string, limits sandbox.Limits) (*sandbox.Result, error) {
	if s.unit == nil {
		return nil, errors.New("execute before prepare")
	}
	limits = limits.WithDefaults()
	timeout := time.Duration(limits.TimeMs) * time.Millisecond
	if s.unit.TimeMultiplier > 1 {
		timeout = time.Duration(float64(timeout) * s.unit.TimeMultiplier)
	}
	return s.run(ctx, s.unit.Run.Args, stdin, timeout, limits.MemoryKb)
}

func (s *containerSandbox) run(ctx context.Context, args []string, stdin string, timeout time.Duration, memoryKb int) (*sandbox.Result, error) {
	ceiling := sandbox.Ceiling(timeout, s.exec.opts.SafetyFactor)
	type outcome struct {
		res *sandbox.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.execve(ctx, args, stdin, timeout, memoryKb)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(ceiling):
		s.broken.Store(true)
		return nil, errors.Wrapf(sandbox.ErrInfrastructure, "container execution exceeded %s", ceiling)
	}
}

type containerRunner struct {
	sbcontainer.Environment
	sbcontainer.ExecveParam
}

func (r *containerRunner) Run(c context.Context) runner.Result {
	return r.Execve(c, r.ExecveParam)
}

func (s *containerSandbox) execve(parent context.Context, args []string, stdin string, timeout time.Duration, memoryKb int) (*sandbox.Result, error) {
	bin, err := exec.LookPath(args[0])
	if err != nil && !strings.HasPrefix(args[0], ".") {
		return nil, errors.Wrapf(sandbox.ErrInfrastructure, "resolve %s: %v", args[0], err)
	}
	if bin != "" {
		args = append([]string{bin}, args[1:]...)
	}

	cg, err := s.exec.rootCG.Random("sandbox")
	if err != nil {
		return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
	}
	defer cg.Destroy()
	memBytes := uint64(memoryKb) * 1024
	_ = cg.SetMemoryLimit(memBytes)

	cgDir, err := cg.Open()
	if err != nil {
		return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
	}
	defer cgDir.Close()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(sandbox.ErrInfrastructure, err.Error())
	}

	limit := s.exec.opts.OutputLimit
	stdout := bytes.NewBuffer(nil)
	stderr := bytes.NewBuffer(nil)
	var overflow atomic.Bool
	wg := &sync.WaitGroup{}
	wg.Add(2)
	syncFunc := func(pid int) error {
		if err := cg.AddProc(pid); err != nil {
			return err
		}
		go pipeWriter(stdinW, stdin)
		go pipeReader(wg, cancel, stdoutR, stdout, limit, &overflow)
		go pipeReader(wg, cancel, stderrR, stderr, limit, &overflow)
		return nil
	}

	secs := uint64(timeout.Seconds())
	rlims := rlimit.RLimits{
		CPU:      secs + 1,
		CPUHard:  secs + 2,
		FileSize: uint64(limit),
		Stack:    uint64(memBytes),
		Data:     memBytes,
		OpenFile: 256,
	}

	r := containerRunner{
		Environment: s.env,
		ExecveParam: sbcontainer.ExecveParam{
			Args:     args,
			Env:      []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=/w", "LANG=C.UTF-8"},
			Files:    []uintptr{stdinR.Fd(), stdoutW.Fd(), stderrW.Fd()},
			RLimits:  rlims.PrepareRLimit(),
			SyncFunc: syncFunc,
			CgroupFD: cgDir.Fd(),
		},
	}

	start := time.Now()
	res := r.Run(ctx)
	wall := time.Since(start)
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()
	stdoutR.Close()
	stderrR.Close()

	out := &sandbox.Result{
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		ExitCode:     res.ExitStatus,
		WallTimeMs:   int(wall.Milliseconds()),
		PeakMemoryKb: int(res.Memory.KiB()),
	}
	if mem, err := cg.MemoryMaxUsage(); err == nil {
		out.PeakMemoryKb = int(mem / 1024)
	}

	switch res.Status {
	case runner.StatusNormal:
		out.Outcome = sandbox.OutcomeOK
		if res.ExitStatus != 0 {
			out.Outcome = sandbox.OutcomeRuntimeError
		}
	case runner.StatusMemoryLimitExceeded:
		out.Outcome = sandbox.OutcomeOOM
	case runner.StatusTimeLimitExceeded:
		out.Outcome = sandbox.OutcomeTimeout
	case runner.StatusRunnerError:
		return nil, errors.Wrapf(sandbox.ErrInfrastructure, "runner: %s", res.Error)
	default:
		out.Outcome = sandbox.OutcomeRuntimeError
	}
	if out.Outcome == sandbox.OutcomeOK && memoryKb > 0 && out.PeakMemoryKb > memoryKb {
		out.Outcome = sandbox.OutcomeOOM
	}
	if overflow.Load() && out.Outcome == sandbox.OutcomeOK {
		out.Outcome = sandbox.OutcomeRuntimeError
		out.Stderr += fmt.Sprintf("\noutput limit of %d bytes exceeded", limit)
	}
	return out, nil
}

func pipeReader(wg *sync.WaitGroup, cancel context.CancelFunc, pipe *os.File, out *bytes.Buffer, maxSize int64, overflow *atomic.Bool) {
	defer wg.Done()
	n, _ := io.Copy(out, io.LimitReader(pipe, maxSize+1))
	if n > maxSize {
		overflow.Store(true)
		out.Truncate(int(maxSize))
		cancel()
		io.Copy(io.Discard, pipe)
	}
}

func pipeWriter(pipe *os.File, in string) {
	defer pipe.Close()
	io.Copy(pipe, strings.NewReader(in))
}

type credGen struct {
	cur uint32
}

func newCredGen() *credGen {
	return &credGen{cur: 10000}
}

func (c *credGen) Get() syscall.Credential {
	n := atomic.AddUint32(&c.cur, 1)
	return syscall.Credential{Uid: n, Gid: n}
}

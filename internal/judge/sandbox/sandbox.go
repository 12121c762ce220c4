// Package sandbox runs one untrusted program at a time under time and memory
// limits. A Sandbox is owned by a single job from Open until Close.
package sandbox

import (
	"context"
	"errors"
	"time"
)

type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeOOM          Outcome = "oom"
	OutcomeRuntimeError Outcome = "runtime_error"
	OutcomeCompileError Outcome = "compile_error"
)

const (
	DefaultTimeLimitMs   = 2000
	DefaultMemoryLimitKb = 128 * 1024
)

// ErrInfrastructure marks failures of the sandbox itself, as opposed to
// outcomes of the submitted program.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

type Limits struct {
	TimeMs   int
	MemoryKb int
}

func (l Limits) WithDefaults() Limits {
	if l.TimeMs <= 0 {
		l.TimeMs = DefaultTimeLimitMs
	}
	if l.MemoryKb <= 0 {
		l.MemoryKb = DefaultMemoryLimitKb
	}
	return l
}

type Step struct {
	Args     []string
	Timeout  time.Duration
	MemoryKb int
}

// Unit is an executable produced by the language adapter: an optional compile
// step followed by the run step.
type Unit struct {
	SourceName     string
	Source         string
	Compile        *Step
	Run            Step
	TimeMultiplier float64
}

func (u Unit) runTimeout(l Limits) time.Duration {
	d := time.Duration(l.TimeMs) * time.Millisecond
	if u.TimeMultiplier > 1 {
		d = time.Duration(float64(d) * u.TimeMultiplier)
	}
	return d
}

type Result struct {
	Stdout       string  `json:"stdout"`
	Stderr       string  `json:"stderr"`
	ExitCode     int     `json:"exit_code"`
	WallTimeMs   int     `json:"wall_time_ms"`
	PeakMemoryKb int     `json:"peak_memory_kb"`
	Outcome      Outcome `json:"outcome"`
}

type Executor interface {
	Open(ctx context.Context) (Sandbox, error)
}

type Sandbox interface {
	// Prepare installs the unit and runs its compile step. A non-nil result
	// with OutcomeCompileError means the program did not build.
	Prepare(ctx context.Context, unit Unit) (*Result, error)
	Execute(ctx context.Context, stdin string, limits Limits) (*Result, error)
	Close() error
}

// Package judge compiles a submission once and runs it against a problem's
// test cases, producing either a persisted judgement or a run report.
package judge

import (
	"context"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/judge/language"
	"tle_zone_judge/internal/judge/sandbox"
	"tle_zone_judge/internal/judge/verdict"
)

type Request struct {
	Language model.Language
	Code     string
	Limits   sandbox.Limits
	Samples  []model.TestCase
	Hidden   []model.TestCase
	Stdin    *string // run mode only
}

type Judge struct {
	exec  sandbox.Executor
	langs *language.Registry
}

func New(exec sandbox.Executor, langs *language.Registry) *Judge {
	return &Judge{exec: exec, langs: langs}
}

// Submit evaluates every sample for display, then the hidden tests in order,
// stopping at the first failure. Errors are infrastructure failures only.
func (j *Judge) Submit(ctx context.Context, req Request) (*model.Judgement, error) {
	sb, compiled, err := j.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer sb.Close()

	if compiled != nil {
		return &model.Judgement{
			Verdict: model.VerdictCompileError,
			Details: model.JudgeDetails{Samples: []model.SampleVerdict{}, CompileOutput: compileOutput(compiled)},
		}, nil
	}

	out := &model.Judgement{Details: model.JudgeDetails{Samples: make([]model.SampleVerdict, 0, len(req.Samples))}}
	for i, tc := range req.Samples {
		res, err := sb.Execute(ctx, tc.Input, req.Limits)
		if err != nil {
			return nil, err
		}
		out.Details.TestsRun++
		out.Details.Samples = append(out.Details.Samples, model.SampleVerdict{Index: i + 1, Verdict: verdict.Of(res, tc.Expected)})
	}

	out.Verdict = model.VerdictAccepted
	for i, tc := range req.Hidden {
		res, err := sb.Execute(ctx, tc.Input, req.Limits)
		if err != nil {
			return nil, err
		}
		out.Details.TestsRun++
		if res.WallTimeMs > out.RuntimeMs {
			out.RuntimeMs = res.WallTimeMs
		}
		if res.PeakMemoryKb > out.MemoryKb {
			out.MemoryKb = res.PeakMemoryKb
		}
		if v := verdict.Of(res, tc.Expected); v != model.VerdictAccepted {
			failed := i + 1
			out.Verdict = v
			out.Details.HiddenFailed = &failed
			break
		}
	}
	return out, nil
}

// Run executes all samples without short-circuiting, plus the caller's own
// stdin when given. Nothing in the report is persisted.
func (j *Judge) Run(ctx context.Context, req Request) (*model.RunReport, error) {
	sb, compiled, err := j.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer sb.Close()

	if compiled != nil {
		return &model.RunReport{
			Verdict:       model.VerdictCompileError,
			Samples:       []model.SampleRun{},
			CompileOutput: compileOutput(compiled),
		}, nil
	}

	report := &model.RunReport{Samples: make([]model.SampleRun, 0, len(req.Samples))}
	verdicts := make([]model.Verdict, 0, len(req.Samples))
	for _, tc := range req.Samples {
		res, err := sb.Execute(ctx, tc.Input, req.Limits)
		if err != nil {
			return nil, err
		}
		v := verdict.Of(res, tc.Expected)
		verdicts = append(verdicts, v)
		report.Samples = append(report.Samples, model.SampleRun{
			Sample:   tc.Input,
			Output:   res.Stdout,
			Expected: tc.Expected,
			Verdict:  v,
			Stderr:   res.Stderr,
			TimeMs:   res.WallTimeMs,
			MemoryKb: res.PeakMemoryKb,
		})
	}
	report.Verdict = verdict.Overall(verdicts)

	if req.Stdin != nil {
		res, err := sb.Execute(ctx, *req.Stdin, req.Limits)
		if err != nil {
			return nil, err
		}
		custom := &model.CustomRun{
			Input:   *req.Stdin,
			Output:  res.Stdout,
			Stderr:  res.Stderr,
			Verdict: model.VerdictAccepted,
			TimeMs:  res.WallTimeMs,
		}
		if res.Outcome != sandbox.OutcomeOK {
			custom.Verdict = verdict.FromOutcome(res.Outcome)
		}
		report.Custom = custom
	}
	return report, nil
}

// prepare opens a sandbox and builds the unit. A non-nil result means the
// compile step failed; the sandbox is still open and must be closed.
func (j *Judge) prepare(ctx context.Context, req Request) (sandbox.Sandbox, *sandbox.Result, error) {
	unit, err := j.langs.Unit(req.Language, req.Code)
	if err != nil {
		return nil, nil, err
	}
	sb, err := j.exec.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	res, err := sb.Prepare(ctx, unit)
	if err != nil {
		sb.Close()
		return nil, nil, err
	}
	if res != nil && res.Outcome == sandbox.OutcomeCompileError {
		return sb, res, nil
	}
	return sb, nil, nil
}

func compileOutput(res *sandbox.Result) string {
	const limit = 8 << 10
	out := res.Stderr
	if out == "" {
		out = res.Stdout
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

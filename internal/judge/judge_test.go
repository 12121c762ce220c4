package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/judge/language"
	"tle_zone_judge/internal/judge/sandbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor plays back a scripted program: output is looked up by input.
type fakeExecutor struct {
	compileFail bool
	openErr     error
	outputs     map[string]sandbox.Result
	executed    []string
	closed      int
}

func (f *fakeExecutor) Open(ctx context.Context) (sandbox.Sandbox, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeSandbox{f: f}, nil
}

type fakeSandbox struct{ f *fakeExecutor }

func (s *fakeSandbox) Prepare(ctx context.Context, unit sandbox.Unit) (*sandbox.Result, error) {
	if s.f.compileFail {
		return &sandbox.Result{Outcome: sandbox.OutcomeCompileError, Stderr: "main.cpp:1: error: expected ';'"}, nil
	}
	return nil, nil
}

func (s *fakeSandbox) Execute(ctx context.Context, stdin string, limits sandbox.Limits) (*sandbox.Result, error) {
	s.f.executed = append(s.f.executed, stdin)
	if r, ok := s.f.outputs[stdin]; ok {
		return &r, nil
	}
	return &sandbox.Result{Outcome: sandbox.OutcomeOK, Stdout: strings.ToUpper(stdin)}, nil
}

func (s *fakeSandbox) Close() error {
	s.f.closed++
	return nil
}

func tc(input, expected string, vis model.TestVisibility) model.TestCase {
	return model.TestCase{Input: input, Expected: expected, Visibility: vis}
}

func TestSubmit_ShortCircuitsOnFirstHiddenFailure(t *testing.T) {
	f := &fakeExecutor{outputs: map[string]sandbox.Result{
		"h2": {Outcome: sandbox.OutcomeTimeout, WallTimeMs: 2000},
	}}
	j := New(f, language.Default())

	hidden := []model.TestCase{
		tc("h1", "H1", model.VisibilityHidden),
		tc("h2", "H2", model.VisibilityHidden),
		tc("h3", "H3", model.VisibilityHidden),
		tc("h4", "H4", model.VisibilityHidden),
		tc("h5", "H5", model.VisibilityHidden),
	}
	out, err := j.Submit(context.Background(), Request{Language: model.LanguageCpp, Hidden: hidden})
	require.NoError(t, err)

	assert.Equal(t, []string{"h1", "h2"}, f.executed)
	assert.Equal(t, model.VerdictTimeLimitExceeded, out.Verdict)
	require.NotNil(t, out.Details.HiddenFailed)
	assert.Equal(t, 2, *out.Details.HiddenFailed)
	assert.Equal(t, 2000, out.RuntimeMs)
	assert.Equal(t, 1, f.closed)
}

func TestSubmit_WrongAnswer(t *testing.T) {
	f := &fakeExecutor{outputs: map[string]sandbox.Result{
		"x": {Outcome: sandbox.OutcomeOK, Stdout: "nope"},
	}}
	out, err := New(f, language.Default()).Submit(context.Background(), Request{
		Language: model.LanguagePython,
		Hidden:   []model.TestCase{tc("a", "A", model.VisibilityHidden), tc("x", "X", model.VisibilityHidden)},
	})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictWrongAnswer, out.Verdict)
	assert.Equal(t, 2, *out.Details.HiddenFailed)
}

func TestSubmit_AcceptedReportsSamples(t *testing.T) {
	f := &fakeExecutor{outputs: map[string]sandbox.Result{
		"s2": {Outcome: sandbox.OutcomeOK, Stdout: "wrong"},
	}}
	out, err := New(f, language.Default()).Submit(context.Background(), Request{
		Language: model.LanguageJava,
		Samples:  []model.TestCase{tc("s1", "S1", model.VisibilitySample), tc("s2", "S2", model.VisibilitySample)},
		Hidden:   []model.TestCase{tc("h1", "H1", model.VisibilityHidden)},
	})
	require.NoError(t, err)

	assert.Equal(t, model.VerdictAccepted, out.Verdict)
	assert.Nil(t, out.Details.HiddenFailed)
	assert.Equal(t, []model.SampleVerdict{{Index: 1, Verdict: "AC"}, {Index: 2, Verdict: "WA"}}, out.Details.Samples)
	assert.Equal(t, 3, out.Details.TestsRun)
}

func TestSubmit_CompileErrorRunsNothing(t *testing.T) {
	f := &fakeExecutor{compileFail: true}
	out, err := New(f, language.Default()).Submit(context.Background(), Request{
		Language: model.LanguageCpp,
		Samples:  []model.TestCase{tc("s1", "S1", model.VisibilitySample)},
		Hidden:   []model.TestCase{tc("h1", "H1", model.VisibilityHidden)},
	})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictCompileError, out.Verdict)
	assert.Empty(t, f.executed)
	assert.Contains(t, out.Details.CompileOutput, "expected ';'")
	assert.Equal(t, 1, f.closed)
}

func TestSubmit_InfrastructureErrorPropagates(t *testing.T) {
	f := &fakeExecutor{openErr: sandbox.ErrInfrastructure}
	_, err := New(f, language.Default()).Submit(context.Background(), Request{Language: model.LanguageCpp})
	assert.True(t, errors.Is(err, sandbox.ErrInfrastructure))
}

func TestRun_NeverShortCircuits(t *testing.T) {
	f := &fakeExecutor{outputs: map[string]sandbox.Result{
		"s1": {Outcome: sandbox.OutcomeRuntimeError, Stderr: "segfault"},
	}}
	stdin := "custom"
	report, err := New(f, language.Default()).Run(context.Background(), Request{
		Language: model.LanguageCpp,
		Samples: []model.TestCase{
			tc("s1", "S1", model.VisibilitySample),
			tc("s2", "S2", model.VisibilitySample),
			tc("s3", "S3", model.VisibilitySample),
		},
		Stdin: &stdin,
	})
	require.NoError(t, err)

	require.Len(t, report.Samples, 3)
	assert.Equal(t, model.VerdictRuntimeError, report.Samples[0].Verdict)
	assert.Equal(t, model.VerdictAccepted, report.Samples[1].Verdict)
	assert.Equal(t, "S3", report.Samples[2].Output)
	assert.Equal(t, model.VerdictRuntimeError, report.Verdict)
	require.NotNil(t, report.Custom)
	assert.Equal(t, "CUSTOM", report.Custom.Output)
	assert.Equal(t, []string{"s1", "s2", "s3", "custom"}, f.executed)
}

func TestRun_UnsupportedLanguage(t *testing.T) {
	_, err := New(&fakeExecutor{}, language.Default()).Run(context.Background(), Request{Language: "cobol"})
	require.Error(t, err)
}

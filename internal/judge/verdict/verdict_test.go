package verdict

import (
	"testing"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/judge/sandbox"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{"identical", "1 2 3\n", "1 2 3\n", true},
		{"missing trailing newline", "42", "42\n", true},
		{"crlf endings", "a\r\nb\r\n", "a\nb\n", true},
		{"bare cr endings", "a\rb", "a\nb", true},
		{"trailing spaces per line", "a  \nb\t\n", "a\nb\n", true},
		{"only one trailing newline trimmed", "42\n\n", "42", false},
		{"leading whitespace matters", " 42", "42", false},
		{"inner whitespace matters", "1  2", "1 2", false},
		{"different tokens", "41", "42", false},
		{"no float tolerance", "0.3000001", "0.3", false},
		{"empty both", "", "\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.actual, tt.expected))
		})
	}
}

func TestOf(t *testing.T) {
	tests := []struct {
		res  sandbox.Result
		want model.Verdict
	}{
		{sandbox.Result{Outcome: sandbox.OutcomeOK, Stdout: "3\n"}, model.VerdictAccepted},
		{sandbox.Result{Outcome: sandbox.OutcomeOK, Stdout: "4\n"}, model.VerdictWrongAnswer},
		{sandbox.Result{Outcome: sandbox.OutcomeTimeout, Stdout: "3\n"}, model.VerdictTimeLimitExceeded},
		{sandbox.Result{Outcome: sandbox.OutcomeOOM}, model.VerdictMemoryLimitExceeded},
		{sandbox.Result{Outcome: sandbox.OutcomeRuntimeError, Stdout: "3\n"}, model.VerdictRuntimeError},
		{sandbox.Result{Outcome: sandbox.OutcomeCompileError}, model.VerdictCompileError},
	}
	for _, tt := range tests {
		res := tt.res
		assert.Equal(t, tt.want, Of(&res, "3"), string(tt.res.Outcome))
	}
}

func TestOverall(t *testing.T) {
	assert.Equal(t, model.VerdictAccepted, Overall(nil))
	assert.Equal(t, model.VerdictAccepted, Overall([]model.Verdict{"AC", "AC"}))
	assert.Equal(t, model.VerdictTimeLimitExceeded, Overall([]model.Verdict{"AC", "TLE", "WA"}))
}

// Package verdict compares program output with expected output and maps
// sandbox outcomes onto the verdict vocabulary.
package verdict

import (
	"strings"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/judge/sandbox"
)

// Normalize converts line endings to \n, strips trailing whitespace from every
// line and drops a single trailing newline.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSuffix(s, "\n")
}

// Compare is exact apart from the differences Normalize removes.
func Compare(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

// FromOutcome maps a non-ok outcome to its verdict category.
func FromOutcome(o sandbox.Outcome) model.Verdict {
	switch o {
	case sandbox.OutcomeTimeout:
		return model.VerdictTimeLimitExceeded
	case sandbox.OutcomeOOM:
		return model.VerdictMemoryLimitExceeded
	case sandbox.OutcomeRuntimeError:
		return model.VerdictRuntimeError
	case sandbox.OutcomeCompileError:
		return model.VerdictCompileError
	default:
		return model.VerdictAccepted
	}
}

// Of judges one test case execution.
func Of(res *sandbox.Result, expected string) model.Verdict {
	if res.Outcome != sandbox.OutcomeOK {
		return FromOutcome(res.Outcome)
	}
	if !Compare(res.Stdout, expected) {
		return model.VerdictWrongAnswer
	}
	return model.VerdictAccepted
}

// Overall is the verdict of an ordered list of case verdicts: the first
// non-AC one, or AC when every case passed.
func Overall(cases []model.Verdict) model.Verdict {
	for _, v := range cases {
		if v != model.VerdictAccepted {
			return v
		}
	}
	return model.VerdictAccepted
}

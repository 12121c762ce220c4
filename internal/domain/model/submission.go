package model

import "time"

type SubmissionMode string

const (
	ModeRun    SubmissionMode = "run"
	ModeSubmit SubmissionMode = "submit"
)

type Verdict string

const (
	VerdictAccepted            Verdict = "AC"
	VerdictWrongAnswer         Verdict = "WA"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictRuntimeError        Verdict = "RE"
	VerdictCompileError        Verdict = "CE"
	VerdictJudgeError          Verdict = "JudgeError" // infrastructure failed twice
	VerdictCancelled           Verdict = "Cancelled"  // dropped from the queue by an admin

	// VerdictJudging is never stored; it is what clients see while verdict is NULL.
	VerdictJudging Verdict = "Judging"
)

// Scored reports whether the verdict takes part in contest scoring.
func (v Verdict) Scored() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded,
		VerdictMemoryLimitExceeded, VerdictRuntimeError, VerdictCompileError:
		return true
	}
	return false
}

type Submission struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	ProblemID int64          `json:"problem_id"`
	ContestID *int64         `json:"contest_id,omitempty"`
	Language  Language       `json:"language"`
	Code      string         `json:"code,omitempty"`
	Mode      SubmissionMode `json:"mode"`
	CreatedAt time.Time      `json:"created_at"`

	// Set once, together, when judging finishes.
	Verdict   *Verdict      `json:"verdict,omitempty"`
	RuntimeMs *int          `json:"runtime_ms,omitempty"`
	MemoryKb  *int          `json:"memory_kb,omitempty"`
	Details   *JudgeDetails `json:"details,omitempty"`
	JudgedAt  *time.Time    `json:"judged_at,omitempty"`
}

func (s *Submission) Pending() bool {
	return s.Verdict == nil
}

// SampleVerdict is the per-sample summary shown next to a submission.
type SampleVerdict struct {
	Index   int     `json:"index"`
	Verdict Verdict `json:"verdict"`
}

// JudgeDetails is persisted next to the verdict.
type JudgeDetails struct {
	Samples       []SampleVerdict `json:"samples"`
	HiddenFailed  *int            `json:"hidden_failed,omitempty"` // 1-based ordinal of the first failing hidden test
	TestsRun      int             `json:"tests_run"`
	CompileOutput string          `json:"compile_output,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Judgement is the terminal outcome written onto a submission.
type Judgement struct {
	Verdict   Verdict
	RuntimeMs int
	MemoryKb  int
	Details   JudgeDetails
}

// SampleRun is one sample test executed in run mode.
type SampleRun struct {
	Sample   string  `json:"sample"`
	Output   string  `json:"output"`
	Expected string  `json:"expected"`
	Verdict  Verdict `json:"verdict"`
	Stderr   string  `json:"stderr,omitempty"`
	TimeMs   int     `json:"time_ms"`
	MemoryKb int     `json:"memory_kb"`
}

// CustomRun is the optional user-supplied stdin execution in run mode.
type CustomRun struct {
	Input   string  `json:"input"`
	Output  string  `json:"output"`
	Stderr  string  `json:"stderr,omitempty"`
	Verdict Verdict `json:"verdict"`
	TimeMs  int     `json:"time_ms"`
}

// RunReport is the ephemeral result of a run-mode job.
type RunReport struct {
	Verdict       Verdict     `json:"verdict"`
	Samples       []SampleRun `json:"samples"`
	Custom        *CustomRun  `json:"custom,omitempty"`
	CompileOutput string      `json:"compile_output,omitempty"`
	Error         string      `json:"error,omitempty"`
}

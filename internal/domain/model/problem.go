package model

import (
	"time"
)

type ProblemDifficulty string

const (
	DifficultyEasy   ProblemDifficulty = "Easy"
	DifficultyMedium ProblemDifficulty = "Medium"
	DifficultyHard   ProblemDifficulty = "Hard"
)

type Problem struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Slug          string            `json:"slug"`
	Difficulty    ProblemDifficulty `json:"difficulty"`
	TimeLimitMs   int               `json:"time_limit_ms"`
	MemoryLimitKb int               `json:"memory_limit_kb"`
	Published     bool              `json:"published"`
	CreatedAt     time.Time         `json:"created_at"`
}

type TestVisibility string

const (
	VisibilitySample TestVisibility = "sample"
	VisibilityHidden TestVisibility = "hidden"
)

type TestCase struct {
	ProblemID  int64          `json:"problem_id"`
	Ordinal    int            `json:"ordinal"`
	Input      string         `json:"input"`
	Expected   string         `json:"expected"`
	Visibility TestVisibility `json:"visibility"`

	// Object storage keys; when set the blob is fetched instead of the inline column.
	InputKey    *string `json:"-"`
	ExpectedKey *string `json:"-"`
}

// SplitTests partitions tests by visibility keeping their order.
func SplitTests(tests []TestCase) (samples, hidden []TestCase) {
	for _, tc := range tests {
		if tc.Visibility == VisibilitySample {
			samples = append(samples, tc)
		} else {
			hidden = append(hidden, tc)
		}
	}
	return samples, hidden
}

package model

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username,omitempty"`
	SolvedCount int    `json:"solved_count"`
	Penalty     int    `json:"penalty"`
}

// ProblemResult is one row of a contestant's per-problem breakdown.
type ProblemResult struct {
	ProblemIndex       int               `json:"problem_index"`
	ProblemID          int64             `json:"problem_id"`
	Solved             bool              `json:"solved"`
	FirstACTimeMinutes *int              `json:"first_ac_time_minutes"`
	WrongAttempts      int               `json:"wrong_attempts"`
	Difficulty         ProblemDifficulty `json:"difficulty"`
}

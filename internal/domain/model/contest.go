package model

import "time"

type Contest struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Slug      string           `json:"slug"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Problems  []ContestProblem `json:"problems,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type ContestProblem struct {
	ContestID  int64             `json:"contest_id"`
	Index      int               `json:"problem_index"`
	ProblemID  int64             `json:"problem_id"`
	Difficulty ProblemDifficulty `json:"difficulty"`
}

// Active reports whether t falls inside [StartTime, EndTime).
func (c *Contest) Active(t time.Time) bool {
	return !t.Before(c.StartTime) && t.Before(c.EndTime)
}

func (c *Contest) Ended(t time.Time) bool {
	return !t.Before(c.EndTime)
}

func (c *Contest) HasProblem(problemID int64) bool {
	for _, p := range c.Problems {
		if p.ProblemID == problemID {
			return true
		}
	}
	return false
}

// ProblemState is the per (contest, user, problem) aggregate.
type ProblemState struct {
	ContestID        int64 `json:"contest_id"`
	UserID           int64 `json:"user_id"`
	ProblemID        int64 `json:"problem_id"`
	Solved           bool  `json:"solved"`
	WrongAttempts    int   `json:"wrong_attempts"`
	FirstACOffsetMin *int  `json:"first_ac_time_minutes,omitempty"`
	LastSubmissionID int64 `json:"last_submission_id"`
}

// PenaltyMinutes is zero until the problem is solved.
func (s ProblemState) PenaltyMinutes(perWrong int) int {
	if !s.Solved || s.FirstACOffsetMin == nil {
		return 0
	}
	return s.WrongAttempts*perWrong + *s.FirstACOffsetMin
}

// ContestParticipantState rolls a user's problem states up.
type ContestParticipantState struct {
	ContestID      int64          `json:"contest_id"`
	UserID         int64          `json:"user_id"`
	Problems       []ProblemState `json:"problems"`
	SolvedCount    int            `json:"solved_count"`
	PenaltyMinutes int            `json:"penalty"`
}

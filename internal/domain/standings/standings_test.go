package standings

import (
	"testing"
	"time"

	"tle_zone_judge/internal/domain/model"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func testContest() *model.Contest {
	return &model.Contest{
		ID:        7,
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Problems: []model.ContestProblem{
			{Index: 2, ProblemID: 20, Difficulty: model.DifficultyHard},
			{Index: 1, ProblemID: 10, Difficulty: model.DifficultyEasy},
		},
	}
}

func sub(id int64, minute int, v model.Verdict) model.Submission {
	s := model.Submission{ID: id, CreatedAt: start.Add(time.Duration(minute) * time.Minute)}
	if v != "" {
		s.Verdict = &v
	}
	return s
}

func TestFoldProblem_PenaltyArithmetic(t *testing.T) {
	state := FoldProblem(testContest(), 1, 10, []model.Submission{
		sub(1, 5, model.VerdictWrongAnswer),
		sub(2, 20, model.VerdictTimeLimitExceeded),
		sub(3, 37, model.VerdictAccepted),
	})

	assert.True(t, state.Solved)
	assert.Equal(t, 2, state.WrongAttempts)
	require.NotNil(t, state.FirstACOffsetMin)
	assert.Equal(t, 37, *state.FirstACOffsetMin)
	assert.Equal(t, 57, state.PenaltyMinutes(PenaltyPerWrong))
}

func TestFoldProblem_FrozenAfterSolve(t *testing.T) {
	state := FoldProblem(testContest(), 1, 10, []model.Submission{
		sub(1, 10, model.VerdictAccepted),
		sub(2, 11, model.VerdictWrongAnswer),
		sub(3, 12, model.VerdictAccepted),
	})
	assert.Equal(t, 0, state.WrongAttempts)
	assert.Equal(t, 10, *state.FirstACOffsetMin)
	assert.Equal(t, int64(3), state.LastSubmissionID)
}

func TestFoldProblem_OrderIndependent(t *testing.T) {
	subs := []model.Submission{
		sub(3, 37, model.VerdictAccepted),
		sub(1, 5, model.VerdictWrongAnswer),
		sub(2, 20, model.VerdictRuntimeError),
	}
	a := FoldProblem(testContest(), 1, 10, subs)
	b := FoldProblem(testContest(), 1, 10, []model.Submission{subs[1], subs[2], subs[0]})
	assert.Equal(t, a, b)
}

func TestFoldProblem_StopsAtPending(t *testing.T) {
	state := FoldProblem(testContest(), 1, 10, []model.Submission{
		sub(1, 5, model.VerdictWrongAnswer),
		sub(2, 6, ""),
		sub(3, 7, model.VerdictAccepted),
	})
	assert.False(t, state.Solved)
	assert.Equal(t, 1, state.WrongAttempts)
}

func TestFoldProblem_IgnoresOutsideWindowAndUnscored(t *testing.T) {
	state := FoldProblem(testContest(), 1, 10, []model.Submission{
		sub(1, -1, model.VerdictWrongAnswer),
		sub(2, 3, model.VerdictJudgeError),
		sub(3, 4, model.VerdictCancelled),
		sub(4, 5, model.VerdictCompileError),
		sub(5, 120, model.VerdictAccepted), // exactly at end_time
	})
	assert.False(t, state.Solved)
	assert.Equal(t, 1, state.WrongAttempts)
}

func solvedState(user, problem int64, wrong, minute int) model.ProblemState {
	return model.ProblemState{UserID: user, ProblemID: problem, Solved: true, WrongAttempts: wrong, FirstACOffsetMin: &minute}
}

func TestRank_Ordering(t *testing.T) {
	states := []model.ProblemState{
		// C: 2 solved, 5 penalty
		solvedState(3, 10, 0, 2), solvedState(3, 20, 0, 3),
		// B: 3 solved, 41 penalty
		solvedState(2, 10, 0, 10), solvedState(2, 20, 0, 11), solvedState(2, 30, 1, 10),
		// A: 3 solved, 40 penalty
		solvedState(1, 10, 0, 10), solvedState(1, 20, 0, 10), solvedState(1, 30, 1, 10),
	}
	board := Rank(states, nil)
	require.Len(t, board, 3)

	assert.Equal(t, int64(1), board[0].UserID)
	assert.Equal(t, 40, board[0].Penalty)
	assert.Equal(t, int64(2), board[1].UserID)
	assert.Equal(t, 41, board[1].Penalty)
	assert.Equal(t, int64(3), board[2].UserID)
	assert.Equal(t, []int{1, 2, 3}, []int{board[0].Rank, board[1].Rank, board[2].Rank})
}

func TestRank_TiesShareRankAndBreakByUserID(t *testing.T) {
	states := []model.ProblemState{
		solvedState(9, 10, 0, 15),
		solvedState(4, 10, 0, 15),
		{UserID: 5, ProblemID: 10, WrongAttempts: 2},
	}
	board := Rank(states, nil)
	require.Len(t, board, 3)
	assert.Equal(t, int64(4), board[0].UserID)
	assert.Equal(t, int64(9), board[1].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 1, board[1].Rank)
	assert.Equal(t, 3, board[2].Rank)
}

func TestRank_ExcludesBannedAndUnattempted(t *testing.T) {
	states := []model.ProblemState{
		solvedState(1, 10, 0, 1), solvedState(1, 20, 0, 2),
		solvedState(2, 10, 3, 50),
		{UserID: 3, ProblemID: 10},
	}
	board := Rank(states, mapset.NewSet[int64](1))
	require.Len(t, board, 1)
	assert.Equal(t, int64(2), board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
}

func TestRank_EmptyIsNotNil(t *testing.T) {
	assert.NotNil(t, Rank(nil, nil))
}

func TestResults(t *testing.T) {
	results := Results(testContest(), []model.ProblemState{
		solvedState(1, 20, 1, 44),
	})
	require.Len(t, results, 2)

	assert.Equal(t, 1, results[0].ProblemIndex)
	assert.False(t, results[0].Solved)
	assert.Nil(t, results[0].FirstACTimeMinutes)
	assert.Equal(t, model.DifficultyEasy, results[0].Difficulty)

	assert.Equal(t, 2, results[1].ProblemIndex)
	assert.True(t, results[1].Solved)
	assert.Equal(t, 44, *results[1].FirstACTimeMinutes)
	assert.Equal(t, 1, results[1].WrongAttempts)
}

// Package standings folds judged contest submissions into ICPC-style
// per-problem states and ranks contestants.
package standings

import (
	"sort"

	"tle_zone_judge/internal/domain/model"

	mapset "github.com/deckarep/golang-set/v2"
)

const PenaltyPerWrong = 10

// FoldProblem derives the state of one (contest, user, problem) from all of
// that key's submissions. Submissions are applied in id order; folding stops
// at the first one still being judged so later verdicts cannot overtake it.
// Submissions outside the contest window and unscored verdicts are skipped.
func FoldProblem(contest *model.Contest, userID, problemID int64, subs []model.Submission) model.ProblemState {
	ordered := make([]model.Submission, len(subs))
	copy(ordered, subs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	state := model.ProblemState{ContestID: contest.ID, UserID: userID, ProblemID: problemID}
	for _, s := range ordered {
		if !contest.Active(s.CreatedAt) {
			continue
		}
		if s.Pending() {
			break
		}
		if !s.Verdict.Scored() {
			continue
		}
		state.LastSubmissionID = s.ID
		if state.Solved {
			continue
		}
		if *s.Verdict == model.VerdictAccepted {
			offset := int(s.CreatedAt.Sub(contest.StartTime).Minutes())
			state.Solved = true
			state.FirstACOffsetMin = &offset
			continue
		}
		state.WrongAttempts++
	}
	return state
}

// Participants rolls problem states up per user, ordered by user id.
func Participants(states []model.ProblemState) []model.ContestParticipantState {
	byUser := make(map[int64]*model.ContestParticipantState)
	var order []int64
	for _, s := range states {
		p, ok := byUser[s.UserID]
		if !ok {
			p = &model.ContestParticipantState{ContestID: s.ContestID, UserID: s.UserID}
			byUser[s.UserID] = p
			order = append(order, s.UserID)
		}
		p.Problems = append(p.Problems, s)
		if s.Solved {
			p.SolvedCount++
			p.PenaltyMinutes += s.PenaltyMinutes(PenaltyPerWrong)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]model.ContestParticipantState, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	return out
}

// Rank orders contestants by solved count desc, then penalty asc, then user
// id. Equal (solved, penalty) pairs share a rank. Banned users and users with
// no scored attempt are left out.
func Rank(states []model.ProblemState, banned mapset.Set[int64]) []model.LeaderboardEntry {
	var entries []model.LeaderboardEntry
	for _, p := range Participants(states) {
		if banned != nil && banned.Contains(p.UserID) {
			continue
		}
		if !attempted(p) {
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			UserID:      p.UserID,
			SolvedCount: p.SolvedCount,
			Penalty:     p.PenaltyMinutes,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.SolvedCount != b.SolvedCount {
			return a.SolvedCount > b.SolvedCount
		}
		if a.Penalty != b.Penalty {
			return a.Penalty < b.Penalty
		}
		return a.UserID < b.UserID
	})

	for i := range entries {
		if i > 0 && entries[i].SolvedCount == entries[i-1].SolvedCount && entries[i].Penalty == entries[i-1].Penalty {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return entries
}

func attempted(p model.ContestParticipantState) bool {
	for _, s := range p.Problems {
		if s.Solved || s.WrongAttempts > 0 {
			return true
		}
	}
	return false
}

// Results lists a contestant's outcome for every contest problem in index
// order, including problems never attempted.
func Results(contest *model.Contest, userStates []model.ProblemState) []model.ProblemResult {
	byProblem := make(map[int64]model.ProblemState, len(userStates))
	for _, s := range userStates {
		byProblem[s.ProblemID] = s
	}
	problems := make([]model.ContestProblem, len(contest.Problems))
	copy(problems, contest.Problems)
	sort.Slice(problems, func(i, j int) bool { return problems[i].Index < problems[j].Index })

	out := make([]model.ProblemResult, 0, len(problems))
	for _, cp := range problems {
		s := byProblem[cp.ProblemID]
		r := model.ProblemResult{
			ProblemIndex:  cp.Index,
			ProblemID:     cp.ProblemID,
			Solved:        s.Solved,
			WrongAttempts: s.WrongAttempts,
			Difficulty:    cp.Difficulty,
		}
		if s.Solved {
			r.FirstACTimeMinutes = s.FirstACOffsetMin
		}
		out = append(out, r)
	}
	return out
}

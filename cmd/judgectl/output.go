package main

import (
	"fmt"
	"io"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/rating"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"
)

type standingsFile struct {
	Participants []struct {
		UserID int64 `toml:"user_id"`
		Rank   int   `toml:"rank"`
		Rating int   `toml:"rating"`
	} `toml:"participant"`
}

// previewRatings runs the rating computation over a TOML standings file:
//
//	[[participant]]
//	user_id = 1
//	rank = 1
//	rating = 1500
//
// A missing rating counts as the default.
func previewRatings(data []byte, maxDelta int) ([]rating.Change, error) {
	var f standingsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("standings: %w", err)
	}
	if len(f.Participants) == 0 {
		return nil, fmt.Errorf("standings: no participants")
	}
	ps := make([]rating.Participant, 0, len(f.Participants))
	for _, p := range f.Participants {
		if p.Rank < 1 {
			return nil, fmt.Errorf("standings: user %d has rank %d", p.UserID, p.Rank)
		}
		r := p.Rating
		if r == 0 {
			r = model.DefaultRating
		}
		ps = append(ps, rating.Participant{UserID: p.UserID, Rank: p.Rank, Rating: r})
	}
	return rating.Compute(ps, maxDelta), nil
}

func signedDelta(d int) string {
	switch {
	case d > 0:
		return color.GreenString("%+d", d)
	case d < 0:
		return color.RedString("%+d", d)
	default:
		return "0"
	}
}

func printChanges(w io.Writer, changes []rating.Change) {
	fmt.Fprintf(w, "%-8s %6s %6s %6s\n", "user", "before", "after", "delta")
	for _, c := range changes {
		fmt.Fprintf(w, "%-8d %6d %6d %6s\n", c.UserID, c.Before, c.After, signedDelta(c.Delta))
	}
}

func printRatingRecords(w io.Writer, records []model.RatingRecord) {
	fmt.Fprintf(w, "%-8s %6s %6s %6s\n", "user", "before", "after", "delta")
	for _, r := range records {
		fmt.Fprintf(w, "%-8d %6d %6d %6s\n", r.UserID, r.RatingBefore, r.RatingAfter, signedDelta(r.RatingChange))
	}
}

func printLeaderboard(w io.Writer, entries []model.LeaderboardEntry) {
	fmt.Fprintf(w, "%4s  %-20s %6s %8s\n", "rank", "user", "solved", "penalty")
	for _, e := range entries {
		name := e.Username
		if name == "" {
			name = fmt.Sprintf("#%d", e.UserID)
		}
		fmt.Fprintf(w, "%4d  %-20s %6d %8d\n", e.Rank, name, e.SolvedCount, e.Penalty)
	}
}

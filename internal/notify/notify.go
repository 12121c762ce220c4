// Package notify tells the outside world that a submission got its verdict.
package notify

import (
	"context"
	"errors"
	"time"

	"tle_zone_judge/internal/domain/model"
)

// Event is published once per judged submission.
type Event struct {
	SubmissionID int64         `json:"submission_id"`
	UserID       int64         `json:"user_id"`
	ProblemID    int64         `json:"problem_id"`
	ContestID    *int64        `json:"contest_id,omitempty"`
	Verdict      model.Verdict `json:"verdict"`
	RuntimeMs    int           `json:"runtime_ms"`
	MemoryKb     int           `json:"memory_kb"`
	JudgedAt     time.Time     `json:"judged_at"`
}

func EventFromSubmission(sub *model.Submission) Event {
	ev := Event{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		ProblemID:    sub.ProblemID,
		ContestID:    sub.ContestID,
	}
	if sub.Verdict != nil {
		ev.Verdict = *sub.Verdict
	}
	if sub.RuntimeMs != nil {
		ev.RuntimeMs = *sub.RuntimeMs
	}
	if sub.MemoryKb != nil {
		ev.MemoryKb = *sub.MemoryKb
	}
	if sub.JudgedAt != nil {
		ev.JudgedAt = *sub.JudgedAt
	}
	return ev
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS publishes each event on judge.submissions.<id>.
type NATS struct {
	nc *nats.Conn
}

func NewNATS(nc *nats.Conn) *NATS {
	return &NATS{nc: nc}
}

func Subject(submissionID int64) string {
	return fmt.Sprintf("judge.submissions.%d", submissionID)
}

func (n *NATS) Notify(_ context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}
	if err := n.nc.Publish(Subject(ev.SubmissionID), b); err != nil {
		return fmt.Errorf("nats: publish submission %d: %w", ev.SubmissionID, err)
	}
	return nil
}

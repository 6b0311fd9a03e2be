package publish

import (
	"context"

	"github.com/charmbracelet/log"

	"anonedits/internal/domain"
)

// RecordFunc persists one notification record.
type RecordFunc func(ctx context.Context, n *domain.Notification) error

// Recorder wraps a publisher and records every hand-off with its outcome.
// Recording failures are logged and never change the publish result.
type Recorder struct {
	next   Publisher
	record RecordFunc
}

func NewRecorder(next Publisher, record RecordFunc) *Recorder {
	return &Recorder{next: next, record: record}
}

func (r *Recorder) Publish(ctx context.Context, d domain.Delivery) error {
	publishErr := r.next.Publish(ctx, d)

	if r.record != nil {
		n := domain.NewNotification(d, publishErr)
		if err := r.record(ctx, &n); err != nil {
			log.Warn("Failed to record notification", "account", n.Account, "page", n.Page, "error", err)
		}
	}

	return publishErr
}

package memory

import (
	"context"

	notificationmodels "homeledger/internal/notification/models"
	id "homeledger/pkg/domain"
)

// Process hands up to limit unpublished events to publish and marks them
// published when it succeeds. The lock is not held while publishing.
func (b *Backend) Process(ctx context.Context, limit int, publish func(ctx context.Context, events []notificationmodels.Event) error) (int, error) {
	b.mu.RLock()
	batch := make([]notificationmodels.Event, 0, limit)
	for _, e := range b.st.outbox {
		if len(batch) == limit {
			break
		}
		if !e.published {
			batch = append(batch, e.event)
		}
	}
	b.mu.RUnlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	sent := make(map[string]struct{}, len(batch))
	for _, e := range batch {
		sent[e.ID.String()] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Events are matched by id: a transaction may have committed in between.
	for i := range b.st.outbox {
		if _, ok := sent[b.st.outbox[i].event.ID.String()]; ok {
			b.st.outbox[i].published = true
		}
	}
	return len(batch), nil
}

// Events returns every event ever appended, oldest first.
func (b *Backend) Events() []notificationmodels.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]notificationmodels.Event, 0, len(b.st.outbox))
	for _, e := range b.st.outbox {
		out = append(out, e.event)
	}
	return out
}

// EventsFor filters Events by recipient.
func (b *Backend) EventsFor(recipient id.UserID) []notificationmodels.Event {
	var out []notificationmodels.Event
	for _, e := range b.Events() {
		if e.RecipientID != nil && *e.RecipientID == recipient {
			out = append(out, e)
		}
	}
	return out
}

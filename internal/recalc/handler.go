package recalc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/toko-pricing/internal/queue"
)

// TaskHandler runs queued order recalculations.
type TaskHandler struct {
	Service *Service
}

// Handle implements queue.Handler.
func (h TaskHandler) Handle(ctx context.Context, task queue.Task) error {
	if task.Kind != queue.KindOrderRecalculate {
		return fmt.Errorf("%w: %q", queue.ErrInvalidKind, task.Kind)
	}
	var snap OrderSnapshot
	if err := json.Unmarshal(task.Payload, &snap); err != nil {
		return fmt.Errorf("recalc: decode payload: %w", err)
	}
	_, err := h.Service.Recalculate(ctx, snap)
	return err
}

// Enqueue schedules a recalculation of the order. Pending recalculations of
// the same order are deduplicated.
func Enqueue(ctx context.Context, enq queue.Enqueuer, snap OrderSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return enq.Enqueue(ctx, queue.Task{
		Kind:    queue.KindOrderRecalculate,
		Key:     snap.OrderID,
		Payload: payload,
	})
}

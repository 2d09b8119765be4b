package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
)

// ActivityRecorder credits activities to a user's progression.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, input domain.RecordActivityInput) (domain.ActivitySummary, bool, error)
}

// ActivityHandler turns upstream activity.created events into progression updates.
// The upstream activity id is the idempotency key, so redelivery never double-credits.
type ActivityHandler struct {
	recorder ActivityRecorder
	logger   *slog.Logger
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(recorder ActivityRecorder, logger *slog.Logger) *ActivityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityHandler{recorder: recorder, logger: logger}
}

// Handle implements Handler. Other event types are acknowledged without work.
func (h *ActivityHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityCreated {
		return nil
	}

	var evt events.ActivityCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
	}
	tenantID := evt.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	if evt.ActivityID == "" {
		return Permanent(fmt.Errorf("%s without activity_id", msg.EventType))
	}

	summary, replay, err := h.recorder.RecordActivity(ctx, domain.RecordActivityInput{
		TenantID:       tenantID,
		UserID:         evt.UserID,
		ActivityType:   evt.ActivityType,
		DurationMin:    evt.DurationMin,
		IdempotencyKey: evt.ActivityID,
	})
	if errors.Is(err, domain.ErrInvalidInput) {
		return Permanent(err)
	}
	if err != nil {
		return err
	}

	h.logger.DebugContext(ctx, "activity event applied",
		slog.String("tenant_id", tenantID),
		slog.String("activity_id", evt.ActivityID),
		slog.Int("points_earned", summary.PointsEarned),
		slog.Bool("replay", replay),
	)
	return nil
}

// Chain runs handlers in order and stops at the first error.
type Chain []Handler

// Handle implements Handler.
func (c Chain) Handle(ctx context.Context, msg Message) error {
	for _, handler := range c {
		if err := handler.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Package notify delivers committed status changes to outbound messaging.
package notify

import (
	"context"
	"log/slog"

	"civicdesk/internal/complaint/models"
)

// LogNotifier writes status changes to the log. It is the notifier when no
// broker is configured and the fallback while the broker is failing.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyStatusChanged(ctx context.Context, ev models.StatusChanged) error {
	if n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "complaint status changed",
		"complaint_id", ev.ComplaintID.String(),
		"from", string(ev.From),
		"to", string(ev.To),
		"actor_id", ev.ActorID.String(),
		"assigned_unit", ev.AssignedUnit,
		"log_type", "notification")
	return nil
}

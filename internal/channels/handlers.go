package channels

import (
	"context"
	"log/slog"
)

// StartEventLogger starts a goroutine that logs target state changes and
// first pass outcomes. Cycle completions are drained at debug level so a
// slow consumer never fills the channel.
func StartEventLogger(ctx context.Context, events *EventChannels, logger *slog.Logger) {
	go func() {
		for {
			select {
			case event, ok := <-events.TargetState:
				if !ok {
					return
				}
				if event.EventType == TargetDown {
					logger.WarnContext(ctx, "target is down",
						slog.String("target", event.Target),
						slog.String("host", event.Host),
						slog.Int("failures", event.Failures),
						slog.String("reason", event.Reason),
					)
					continue
				}
				logger.InfoContext(ctx, "target recovered",
					slog.String("target", event.Target),
					slog.String("host", event.Host),
				)
			case event, ok := <-events.FirstPass:
				if !ok {
					return
				}
				if event.Error != "" {
					logger.WarnContext(ctx, "table discovery incomplete",
						slog.String("target", event.Target),
						slog.Int("pending", event.Pending),
						slog.String("error", event.Error),
					)
					continue
				}
				logger.InfoContext(ctx, "table discovery complete",
					slog.String("target", event.Target),
					slog.Int("groups", event.Groups),
				)
			case event, ok := <-events.CycleCompleted:
				if !ok {
					return
				}
				logger.DebugContext(ctx, "cycle completed",
					slog.String("target", event.Target),
					slog.String("cycle_id", event.CycleID.String()),
					slog.Bool("success", event.Success),
					slog.Int("samples", event.Samples),
					slog.String("duration", event.Duration.String()),
				)
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}

// Package channels carries the poller's events.
//
// # Usage
//
// Producers never block on a full channel; they drop the event and log it:
//
//	select {
//	case events.TargetState <- channels.TargetStateEvent{...}:
//	default:
//	    logger.Warn("failed to emit target down event: channel full")
//	}
//
// Consumers select on the event channel, their context and Done:
//
//	events := channels.NewEventChannels(ctx, cfg)
//	defer events.Close()
//	channels.StartEventLogger(ctx, events, logger)
package channels

package broadcast

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// SinkSource yields the outbound sinks registered for a session
type SinkSource interface {
	Sinks(sessionID string) map[string]interfaces.Connection
}

// Broadcaster fans envelopes out to a session's connections
// ARCHITECTURAL DISCOVERY: Each sink enqueues without blocking, so one slow
// client never stalls the caller and per-connection order follows call order
type Broadcaster struct {
	sinks  SinkSource
	now    func() time.Time
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given sink source
func NewBroadcaster(sinks SinkSource, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sinks:  sinks,
		now:    time.Now,
		logger: logger.With(slog.String("component", "broadcast")),
	}
}

// Broadcast wraps payload in an envelope and enqueues it on every sink of the
// session. Failures are logged per sink; the result is the accepted count.
func (b *Broadcaster) Broadcast(ctx context.Context, sessionID, event string, payload interface{}) int {
	envelope := types.Envelope{
		Type:      event,
		SessionID: sessionID,
		Data:      payload,
		Timestamp: b.now(),
	}

	sinks := b.sinks.Sinks(sessionID)
	ids := make([]string, 0, len(sinks))
	for id := range sinks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	delivered := 0
	for _, id := range ids {
		if err := sinks[id].WriteJSON(envelope); err != nil {
			b.logger.WarnContext(ctx, "broadcast delivery failed",
				slog.String("session_id", sessionID),
				slog.String("conn_id", id),
				slog.String("event", event),
				slog.Any("error", err))
			continue
		}
		delivered++
	}

	b.logger.DebugContext(ctx, "broadcast",
		slog.String("session_id", sessionID),
		slog.String("event", event),
		slog.Int("delivered", delivered),
		slog.Int("targets", len(ids)))
	return delivered
}

// SendTo writes one envelope to a single sink; used for direct replies
func (b *Broadcaster) SendTo(sink interfaces.Connection, sessionID, event string, payload interface{}) error {
	return sink.WriteJSON(types.Envelope{
		Type:      event,
		SessionID: sessionID,
		Data:      payload,
		Timestamp: b.now(),
	})
}

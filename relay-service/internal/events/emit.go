package events

import (
	"context"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
)

// Emit publishes event and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, event *Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish event")
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/notify"
)

// EventNotifier forwards engine events from the signal bus to the operator
// notification channels. Delivery is best effort; a failed send is logged
// and the loop keeps consuming.
type EventNotifier struct {
	bus      domain.SignalBus
	notifier *notify.Notifier
	channels []string
	logger   *slog.Logger
}

// NewEventNotifier creates an EventNotifier consuming the given bus channels.
func NewEventNotifier(bus domain.SignalBus, notifier *notify.Notifier, channels []string, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{
		bus:      bus,
		notifier: notifier,
		channels: channels,
		logger:   logger,
	}
}

// Run subscribes to every configured channel and forwards events until the
// context is cancelled.
func (e *EventNotifier) Run(ctx context.Context) error {
	subs := make([]<-chan []byte, 0, len(e.channels))
	for _, ch := range e.channels {
		sub, err := e.bus.Subscribe(ctx, ch)
		if err != nil {
			return fmt.Errorf("pipeline: subscribe %q: %w", ch, err)
		}
		subs = append(subs, sub)
	}

	merged := make(chan envelope)
	for i, sub := range subs {
		channel := e.channels[i]
		sub := sub
		go func() {
			for payload := range sub {
				select {
				case merged <- envelope{channel: channel, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "pipeline: event notifier stopped")
			return ctx.Err()
		case env := <-merged:
			e.forward(ctx, env)
		}
	}
}

type envelope struct {
	channel string
	payload []byte
}

func (e *EventNotifier) forward(ctx context.Context, env envelope) {
	var fields map[string]any
	if err := json.Unmarshal(env.payload, &fields); err != nil {
		e.logger.WarnContext(ctx, "pipeline: malformed event payload",
			slog.String("channel", env.channel),
			slog.String("error", err.Error()),
		)
		return
	}

	event, _ := fields["event"].(string)
	marketID, _ := fields["market_id"].(string)
	title := fmt.Sprintf("%s on %s", event, marketID)

	if err := e.notifier.Notify(ctx, event, title, string(env.payload)); err != nil {
		e.logger.WarnContext(ctx, "pipeline: notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

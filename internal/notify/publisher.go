package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var _ domain.OrderListener = (*Publisher)(nil)

// Publisher writes each change as JSON to a bus channel.
type Publisher struct {
	bus     domain.SignalBus
	channel string
}

// NewPublisher creates a Publisher for channel.
func NewPublisher(bus domain.SignalBus, channel string) *Publisher {
	return &Publisher{bus: bus, channel: channel}
}

// OnOrderChanged publishes ev.
func (p *Publisher) OnOrderChanged(ctx context.Context, ev domain.OrderChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal change of %s: %w", ev.Hash.Hex(), err)
	}
	if err := p.bus.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("notify: publish change of %s: %w", ev.Hash.Hex(), err)
	}
	return nil
}

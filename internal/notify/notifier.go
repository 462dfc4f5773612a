// Package notify delivers order change notifications: to the Redis bus for
// the live feed, to HTTP webhooks, and to any other registered listener.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var _ domain.OrderListener = (*Notifier)(nil)

// Notifier fans a change out to several listeners. When statuses is not
// empty, only orders in one of them are forwarded.
type Notifier struct {
	listeners []namedListener
	statuses  map[domain.OrderStatus]bool
	logger    *slog.Logger
}

type namedListener struct {
	name string
	domain.OrderListener
}

// NewNotifier creates a Notifier that forwards orders in statuses, or every
// order when statuses is empty.
func NewNotifier(statuses []domain.OrderStatus, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		for _, e := range domain.ExpandStatus(s) {
			allowed[e] = true
		}
	}
	return &Notifier{
		statuses: allowed,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Add registers a listener under name.
func (n *Notifier) Add(name string, l domain.OrderListener) {
	n.listeners = append(n.listeners, namedListener{name: name, OrderListener: l})
}

// OnOrderChanged delivers ev to every listener. A failing listener does not
// prevent delivery to the rest; failures are joined.
func (n *Notifier) OnOrderChanged(ctx context.Context, ev domain.OrderChanged) error {
	if ev.Order != nil && len(n.statuses) > 0 && !n.statuses[ev.Order.Status] {
		n.logger.DebugContext(ctx, "change filtered out",
			slog.String("hash", ev.Hash.Hex()),
			slog.String("status", string(ev.Order.Status)),
		)
		return nil
	}

	var errs []error
	for _, l := range n.listeners {
		if err := l.OnOrderChanged(ctx, ev); err != nil {
			n.logger.ErrorContext(ctx, "listener failed",
				slog.String("listener", l.name),
				slog.String("hash", ev.Hash.Hex()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d listener(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

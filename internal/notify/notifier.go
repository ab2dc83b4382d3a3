// Package notify pushes operator alerts out of the engine. The alerts that
// matter here are the trading ones: a leg group frozen after a failed unwind
// ("group_halted") and the daily loss circuit breaker ("daily_loss_limit").
// Each alert fans out to every configured channel, filtered by event tag.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Alert is one operator notification. Event is the engine's event tag
// ("group_halted", "daily_loss_limit"), Title a short headline, Body the
// detail line shown under it.
type Alert struct {
	Event string
	Title string
	Body  string
}

// Sender delivers alerts over one channel.
type Sender interface {
	Deliver(ctx context.Context, a Alert) error
	// Name identifies the channel in logs ("telegram", "discord").
	Name() string
}

// Notifier fans alerts out to its senders. When an event allowlist is
// configured, Notify drops alerts whose event tag is not on it; an empty
// allowlist lets everything through.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. events is the
// allowlist of event tags; nil or empty means no filtering.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers an alert for the given event tag, subject to the allowlist.
func (n *Notifier) Notify(ctx context.Context, event, title, body string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "alert suppressed by event filter",
			slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Alert{Event: event, Title: title, Body: body})
}

// NotifyAll delivers an alert to every sender, ignoring the event allowlist.
func (n *Notifier) NotifyAll(ctx context.Context, event, title, body string) error {
	return n.dispatch(ctx, Alert{Event: event, Title: title, Body: body})
}

// dispatch tries every sender even when some fail, then reports the failures
// together.
func (n *Notifier) dispatch(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Deliver(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("event", a.Event),
		)
	}
	return errors.Join(errs...)
}

// Package notify sends operator alerts to Telegram and Discord. Alerts carry
// an event name and are dropped unless the event is enabled.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Event names accepted in the notify.events config list.
const (
	EventOpportunity = "opportunity"
	EventDegraded    = "degraded"
	EventExecution   = "execution"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to every sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list enables every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers title and message when event is enabled. A failing sender
// does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// NotifyOpportunities sends one alert per opportunity whose profit
// percentage reaches minPct and returns how many were sent.
func (n *Notifier) NotifyOpportunities(ctx context.Context, opps []domain.HedgeOpportunity, minPct float64) (int, error) {
	if !n.Enabled(EventOpportunity) {
		return 0, nil
	}
	sent := 0
	var errs []error
	for _, o := range opps {
		if o.ProfitPercentage < minPct {
			continue
		}
		if err := n.Notify(ctx, EventOpportunity, OpportunityTitle(o), OpportunityMessage(o)); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// OpportunityTitle is the one-line headline of an opportunity alert.
func OpportunityTitle(o domain.HedgeOpportunity) string {
	return fmt.Sprintf("%.2f%% %s: %s", o.ProfitPercentage, strings.ReplaceAll(string(o.Type), "_", " "), o.EventName)
}

// OpportunityMessage is the body of an opportunity alert.
func OpportunityMessage(o domain.HedgeOpportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selection: %s\n", o.RunnerName)
	if o.Competition != "" {
		fmt.Fprintf(&b, "Competition: %s\n", o.Competition)
	}
	fmt.Fprintf(&b, "Guaranteed profit: £%.2f\n", o.Profit)
	b.WriteString(o.Instructions())
	return b.String()
}

// Package notify alerts operators about run lifecycle events. Events are
// dispatched to every registered sender and can be filtered by type so
// operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfold/mmsim/internal/domain"
)

// Run lifecycle event types.
const (
	EventRunCompleted     = "run_completed"
	EventRunHalted        = "run_halted"
	EventAcceptanceFailed = "acceptance_failed"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns the channel identifier (e.g. "telegram").
	Name() string
}

// Notifier dispatches events to its senders. An empty allowed-event list
// passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, filtered
// to the given event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends the event to all senders if its type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyReport raises the events a finalized report warrants: completion or
// halt, plus a separate alert when acceptance failed.
func (n *Notifier) NotifyReport(ctx context.Context, report domain.RunReport) error {
	var errs []string

	if report.State == domain.RunStateHalted {
		title := fmt.Sprintf("Run %s HALTED", report.RunID)
		msg := fmt.Sprintf("reason: %s", report.HaltReason)
		if report.HaltTick != nil {
			msg = fmt.Sprintf("tick %d, %s", *report.HaltTick, msg)
		}
		if err := n.Notify(ctx, EventRunHalted, title, msg); err != nil {
			errs = append(errs, err.Error())
		}
	} else {
		title := fmt.Sprintf("Run %s completed: %s", report.RunID, report.Verdict)
		msg := fmt.Sprintf(
			"ticks=%d fills=%d truthful_rate=%.4f realized_pnl=%.2f USD",
			report.Ticks, report.FillCount, report.TruthfulRate, report.RealizedPnLUSD,
		)
		if err := n.Notify(ctx, EventRunCompleted, title, msg); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if report.Verdict == domain.VerdictFail && len(report.Violations) > 0 {
		var checks []string
		for _, v := range report.Violations {
			checks = append(checks, fmt.Sprintf("%s (observed %.4f, required %.4f)",
				v.Name, v.Observed, v.Required))
		}
		title := fmt.Sprintf("Run %s failed acceptance", report.RunID)
		if err := n.Notify(ctx, EventAcceptanceFailed, title, strings.Join(checks, "; ")); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: report alerts failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// dispatch fans the message out to every sender. A failing sender does not
// block the rest; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

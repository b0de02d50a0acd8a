// Package listeners wires the event bus to the automation engine, the
// SLA engine, and the webhook dispatcher (spec.md §4.12, component L12).
// Each listener runs its own goroutine over its own Subscribe()
// sequence, so a slow rule engine never blocks webhook delivery of the
// same event (spec.md §4.1 "no backpressure onto publishers").
package listeners

import (
	"context"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// RuleEngine is what the rule-engine listener calls. automation.Engine's
// Handle returns no error, so cmd/deskcored wraps it in an adapter that
// satisfies this interface.
type RuleEngine interface {
	Handle(ctx context.Context, evt events.SystemEvent) error
}

// SlaEngine is the subset of slaengine.Engine a listener depends on.
type SlaEngine interface {
	OnAgentMessage(ctx context.Context, conversationID string, at time.Time) error
	OnContactMessage(ctx context.Context, conversationID string, msgTS time.Time) error
	OnResolved(ctx context.Context, conversationID string, at time.Time) error
}

// WebhookDispatcher is the subset of webhook.Dispatcher a listener
// depends on.
type WebhookDispatcher interface {
	HandleEvent(ctx context.Context, evt events.SystemEvent)
}

// Group runs every registered listener goroutine and stops them all
// together.
type Group struct {
	Bus ports.EventBus
	log *logger.Logger

	cancel context.CancelFunc
}

func NewGroup(bus ports.EventBus, log *logger.Logger) *Group {
	if log == nil {
		log = logger.NewDefault("listeners")
	}
	return &Group{Bus: bus, log: log}
}

// Start launches one goroutine per listener against ctx. Call the
// returned stop function (or cancel ctx) to unwind them.
func (g *Group) Start(ctx context.Context, rules RuleEngine, sla SlaEngine, dispatcher WebhookDispatcher) func() {
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	if rules != nil {
		go g.runRules(runCtx, rules)
	}
	if sla != nil {
		go g.runSla(runCtx, sla)
	}
	if dispatcher != nil {
		go g.runWebhooks(runCtx, dispatcher)
	}

	return cancel
}

func (g *Group) runRules(ctx context.Context, rules RuleEngine) {
	sub := g.Bus.Subscribe()
	defer sub.Close()
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			if !isShutdown(err) {
				g.log.WithField("error", err).Warn("rule engine listener recv failed")
			}
			return
		}
		if err := rules.Handle(ctx, evt); err != nil {
			g.log.WithField("event_type", evt.Type).WithField("error", err).Warn("rule engine handle failed")
		}
	}
}

func (g *Group) runSla(ctx context.Context, sla SlaEngine) {
	sub := g.Bus.Subscribe()
	defer sub.Close()
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			if !isShutdown(err) {
				g.log.WithField("error", err).Warn("sla listener recv failed")
			}
			return
		}

		var handleErr error
		switch evt.Type {
		case events.MessageSent:
			handleErr = sla.OnAgentMessage(ctx, evt.ConversationID, evt.OccurredAt)
		case events.MessageReceived:
			handleErr = sla.OnContactMessage(ctx, evt.ConversationID, evt.OccurredAt)
		case events.ConversationStatusChanged:
			if status, ok := evt.After["status"].(string); ok && domain.ConversationStatus(status) == domain.StatusResolved {
				handleErr = sla.OnResolved(ctx, evt.ConversationID, evt.OccurredAt)
			}
		}
		if handleErr != nil {
			g.log.WithField("event_type", evt.Type).WithField("error", handleErr).Warn("sla listener handle failed")
		}
	}
}

func (g *Group) runWebhooks(ctx context.Context, dispatcher WebhookDispatcher) {
	sub := g.Bus.Subscribe()
	defer sub.Close()
	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			if !isShutdown(err) {
				g.log.WithField("error", err).Warn("webhook listener recv failed")
			}
			return
		}
		dispatcher.HandleEvent(ctx, evt)
	}
}

func isShutdown(err error) bool {
	return err == context.Canceled || err == events.ErrClosed
}

// Package webhook implements the outbound webhook pipeline (spec.md
// §4.10, component L11): mapping bus events to signed envelopes, and
// delivering them over HTTP with per-webhook rate limiting.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// envelope is the canonical event body every subscribed webhook receives
// (spec.md §4.10 step 1).
type envelope struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// deliverPayload is the deliver_webhook job payload (spec.md §4.10
// step 3).
type deliverPayload struct {
	WebhookID string `json:"webhook_id"`
	URL       string `json:"url"`
	EventType string `json:"event_type"`
	Body      []byte `json:"body"`
	Signature string `json:"signature"`
}

// Dispatcher subscribes to the event bus and turns matching events into
// deliver_webhook jobs.
type Dispatcher struct {
	Webhooks ports.WebhookRepository
	Jobs     ports.TaskQueue
	Time     ports.TimeService

	log *logger.Logger
}

func NewDispatcher(webhooks ports.WebhookRepository, jobs ports.TaskQueue, clock ports.TimeService, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("webhook")
	}
	return &Dispatcher{Webhooks: webhooks, Jobs: jobs, Time: clock, log: log}
}

// HandleEvent maps evt to an envelope, looks up every active webhook
// subscribed to its type, and enqueues one deliver_webhook job per
// recipient. A lookup or marshal failure is logged and swallowed —
// webhook delivery never propagates back to the event's originating
// operation (spec.md §5 "Fire-and-forget").
func (d *Dispatcher) HandleEvent(ctx context.Context, evt events.SystemEvent) {
	env := envelope{EventType: string(evt.Type), Timestamp: evt.OccurredAt, Data: evt.Data}
	body, err := json.Marshal(env)
	if err != nil {
		d.log.WithField("event_type", evt.Type).WithField("error", err).Warn("failed to marshal webhook envelope")
		return
	}

	hooks, err := d.Webhooks.ListActiveForEvent(ctx, string(evt.Type))
	if err != nil {
		d.log.WithField("event_type", evt.Type).WithField("error", err).Warn("failed to list active webhooks")
		return
	}

	for _, hook := range hooks {
		signature := sign(hook.Secret, body)
		payload, err := json.Marshal(deliverPayload{
			WebhookID: hook.ID,
			URL:       hook.URL,
			EventType: string(evt.Type),
			Body:      body,
			Signature: signature,
		})
		if err != nil {
			d.log.WithField("webhook_id", hook.ID).WithField("error", err).Warn("failed to marshal deliver_webhook payload")
			continue
		}
		job := &domain.Job{
			ID:               uuid.NewString(),
			JobType:          domain.JobTypeDeliverWebhook,
			Payload:          payload,
			MaxRetries:       3,
			RetriesRemaining: 3,
		}
		if err := d.Jobs.EnqueueAt(ctx, job, d.Time.Now()); err != nil {
			d.log.WithField("webhook_id", hook.ID).WithField("error", err).Warn("failed to enqueue deliver_webhook job")
		}
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

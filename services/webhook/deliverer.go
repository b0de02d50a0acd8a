package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/pkg/logger"
)

const (
	deliverTimeout        = 30 * time.Second
	perWebhookRatePerSec  = 5.0
	perWebhookBurst       = 10
)

// DeliveryRecorder observes delivery outcomes. Satisfied by
// *metrics.Metrics; left nil by default so tests don't need a
// Prometheus registry.
type DeliveryRecorder interface {
	RecordWebhookDelivery(status string)
}

// Deliverer is the deliver_webhook job handler (spec.md §4.10 step 3 /
// "The deliver_webhook handler"). Grounded on the teacher's
// infrastructure/ratelimit.RateLimiter (golang.org/x/time/rate wrapped
// per caller) but keyed per webhook instead of per HTTP client, so one
// subscriber's slow endpoint cannot starve delivery workers serving
// every other webhook.
type Deliverer struct {
	Webhooks   ports.WebhookRepository
	HTTPClient *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	log      *logger.Logger
	recorder DeliveryRecorder
}

func NewDeliverer(webhooks ports.WebhookRepository, log *logger.Logger) *Deliverer {
	if log == nil {
		log = logger.NewDefault("webhook")
	}
	return &Deliverer{
		Webhooks:   webhooks,
		HTTPClient: &http.Client{Timeout: deliverTimeout},
		limiters:   map[string]*rate.Limiter{},
		log:        log,
	}
}

// SetMetrics wires a DeliveryRecorder in after construction.
func (d *Deliverer) SetMetrics(r DeliveryRecorder) { d.recorder = r }

func (d *Deliverer) record(status string) {
	if d.recorder != nil {
		d.recorder.RecordWebhookDelivery(status)
	}
}

func (d *Deliverer) limiterFor(webhookID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[webhookID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(perWebhookRatePerSec), perWebhookBurst)
		d.limiters[webhookID] = l
	}
	return l
}

// Deliver is the jobqueue.Handler for domain.JobTypeDeliverWebhook.
func (d *Deliverer) Deliver(ctx context.Context, job *domain.Job) error {
	var p deliverPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("deliver_webhook: decode payload: %w", err)
	}

	if err := d.limiterFor(p.WebhookID).Wait(ctx); err != nil {
		return fmt.Errorf("deliver_webhook: rate limit wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.URL, bytes.NewReader(p.Body))
	if err != nil {
		return fmt.Errorf("deliver_webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", p.Signature)
	req.Header.Set("X-Webhook-Event", p.EventType)

	resp, deliverErr := d.HTTPClient.Do(req)
	delivery := &domain.Delivery{
		ID:        uuid.NewString(),
		WebhookID: p.WebhookID,
		EventType: p.EventType,
		Payload:   p.Body,
		Signature: p.Signature,
		CreatedAt: time.Now(),
	}

	if deliverErr != nil {
		msg := deliverErr.Error()
		delivery.Status = domain.DeliveryFailed
		delivery.Error = &msg
		if err := d.Webhooks.RecordDelivery(ctx, delivery); err != nil {
			d.log.WithField("webhook_id", p.WebhookID).WithField("error", err).Warn("failed to record webhook delivery")
		}
		d.record("failed")
		return fmt.Errorf("deliver_webhook: %w", deliverErr)
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	delivery.HTTPStatus = &status
	if status >= 200 && status < 300 {
		delivery.Status = domain.DeliverySuccess
	} else {
		delivery.Status = domain.DeliveryFailed
		msg := fmt.Sprintf("non-2xx response: %d", status)
		delivery.Error = &msg
	}
	if err := d.Webhooks.RecordDelivery(ctx, delivery); err != nil {
		d.log.WithField("webhook_id", p.WebhookID).WithField("error", err).Warn("failed to record webhook delivery")
	}
	if delivery.Status != domain.DeliverySuccess {
		d.record("failed")
		return fmt.Errorf("deliver_webhook: %s", *delivery.Error)
	}
	d.record("success")
	return nil
}

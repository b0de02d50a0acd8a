package domain

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle stage of a queued Job.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is one unit of durable background work (§4.9).
type Job struct {
	ID               string
	JobType          string
	Payload          json.RawMessage
	RunAt            time.Time
	RetriesRemaining int
	MaxRetries       int
	State            JobState
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Well-known recurring job types (§4.9, §6.3).
const (
	JobTypeCheckSlaBreaches   = "check_sla_breaches"
	JobTypeCheckAvailability  = "check_availability"
	JobTypeCleanupSessions    = "cleanup_sessions"
	JobTypeCleanupRateLimiter = "cleanup_rate_limiter"
	JobTypeCleanupOidcStates  = "cleanup_oidc_states"
	JobTypeDeliverWebhook     = "deliver_webhook"
)

// Webhook is a tenant-configured subscription endpoint.
type Webhook struct {
	ID               string
	URL              string
	SubscribedEvents map[string]struct{}
	Secret           string
	IsActive         bool
}

// Subscribes reports whether this webhook should receive eventType.
func (w *Webhook) Subscribes(eventType string) bool {
	_, ok := w.SubscribedEvents[eventType]
	return ok
}

// DeliveryStatus is the outcome of a webhook delivery attempt.
type DeliveryStatus string

const (
	DeliveryQueued  DeliveryStatus = "Queued"
	DeliverySuccess DeliveryStatus = "Success"
	DeliveryFailed  DeliveryStatus = "Failed"
)

// Delivery records one attempt (or pending attempt) to deliver an event
// to a webhook. Payload is the exact signed bytes — never reconstructed
// (§3 "Webhook / delivery").
type Delivery struct {
	ID          string
	WebhookID   string
	EventType   string
	Payload     []byte
	Signature   string
	Status      DeliveryStatus
	HTTPStatus  *int
	RetryCount  int
	NextRetryAt *time.Time
	Error       *string
	CreatedAt   time.Time
}

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/internal/memstore"
)

func TestHandleEvent_EnqueuesOneJobPerActiveSubscriber(t *testing.T) {
	webhooks := memstore.NewWebhooks()
	jobs := memstore.NewJobs()
	clock := memstore.NewFixedClock(time.Now())

	if err := webhooks.Create(context.Background(), &domain.Webhook{
		ID: "w1", URL: "https://example.test/hook", Secret: "s3cret", IsActive: true,
		SubscribedEvents: map[string]struct{}{string(events.ConversationAssigned): {}},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	if err := webhooks.Create(context.Background(), &domain.Webhook{
		ID: "w2", URL: "https://example.test/other", Secret: "s3cret", IsActive: false,
		SubscribedEvents: map[string]struct{}{string(events.ConversationAssigned): {}},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	d := NewDispatcher(webhooks, jobs, clock, nil)
	evt := events.New(events.ConversationAssigned, "c1", "actor1", clock.Now()).WithData("user_id", "u1")
	d.HandleEvent(context.Background(), evt)

	job, err := jobs.FetchNextJob(context.Background())
	if err != nil || job == nil {
		t.Fatalf("expected one enqueued job, got %v err %v", job, err)
	}
	if job.JobType != domain.JobTypeDeliverWebhook {
		t.Fatalf("expected deliver_webhook job type, got %s", job.JobType)
	}
	var p deliverPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.WebhookID != "w1" {
		t.Fatalf("expected job for active webhook w1, got %s", p.WebhookID)
	}

	second, err := jobs.FetchNextJob(context.Background())
	if err != nil {
		t.Fatalf("fetch second: %v", err)
	}
	if second != nil {
		t.Fatalf("expected only one job for the inactive second webhook to be skipped, got %+v", second)
	}
}

func TestDeliver_SuccessSendsSignatureAndEventHeaders(t *testing.T) {
	var gotSig, gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	webhooks := memstore.NewWebhooks()
	deliverer := NewDeliverer(webhooks, nil)

	payload, _ := json.Marshal(deliverPayload{
		WebhookID: "w1", URL: srv.URL, EventType: string(events.ConversationAssigned),
		Body: []byte(`{"event_type":"conversation.assigned"}`), Signature: "deadbeef",
	})
	job := &domain.Job{ID: "j1", JobType: domain.JobTypeDeliverWebhook, Payload: payload}

	if err := deliverer.Deliver(context.Background(), job); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotSig != "deadbeef" || gotEvent != string(events.ConversationAssigned) {
		t.Fatalf("unexpected headers: sig=%s event=%s", gotSig, gotEvent)
	}
}

func TestDeliver_NonSuccessStatusFailsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	webhooks := memstore.NewWebhooks()
	deliverer := NewDeliverer(webhooks, nil)

	payload, _ := json.Marshal(deliverPayload{
		WebhookID: "w1", URL: srv.URL, EventType: string(events.ConversationAssigned),
		Body: []byte(`{}`), Signature: "abc",
	})
	job := &domain.Job{ID: "j1", JobType: domain.JobTypeDeliverWebhook, Payload: payload}

	if err := deliverer.Deliver(context.Background(), job); err == nil {
		t.Fatal("expected delivery error on 500 response")
	}
}

func TestSign_IsDeterministicHMAC(t *testing.T) {
	a := sign("secret", []byte("body"))
	b := sign("secret", []byte("body"))
	if a != b {
		t.Fatalf("expected deterministic signature, got %s vs %s", a, b)
	}
	if sign("other", []byte("body")) == a {
		t.Fatal("expected different secret to change the signature")
	}
}

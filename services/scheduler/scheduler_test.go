package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/internal/memstore"
)

func TestStart_EnqueuesSeedJobsOnSchedule(t *testing.T) {
	queue := memstore.NewJobs()
	clock := memstore.NewFixedClock(time.Now())
	s := New(queue, clock, nil)
	s.seeds = []seedSpec{{domain.JobTypeCheckAvailability, "@every 30ms", 3}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	var job *domain.Job
	for time.Now().Before(deadline) {
		j, err := queue.FetchNextJob(context.Background())
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if j != nil {
			job = j
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job == nil {
		t.Fatal("expected a seeded job within the deadline")
	}
	if job.JobType != domain.JobTypeCheckAvailability {
		t.Fatalf("unexpected job type: %s", job.JobType)
	}
}

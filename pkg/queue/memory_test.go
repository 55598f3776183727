package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"loadcast/pkg/logger"
)

type countingJob struct {
	typ   string
	count atomic.Int64
	fail  atomic.Bool
}

func (j *countingJob) Name() string { return "counting-job" }
func (j *countingJob) Type() string { return j.typ }
func (j *countingJob) Handle(ctx context.Context, payload interface{}) error {
	j.count.Add(1)
	if j.fail.Load() {
		j.fail.Store(false)
		return context.DeadlineExceeded
	}
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestMemoryQueueDispatch(t *testing.T) {
	job := &countingJob{typ: "test.work"}
	q := NewMemoryQueue(logger.Nop(), &QueueConfig{Workers: 2, QueueSize: 8})
	q.RegisterJob(job)

	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		q.Stop(ctx)
	})

	for i := 0; i < 5; i++ {
		if err := q.PublishMessage(context.Background(), "test.work", map[string]interface{}{"i": i}); err != nil {
			t.Fatalf("PublishMessage: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return job.count.Load() == 5 })
}

func TestMemoryQueueRejectsUnknownType(t *testing.T) {
	q := NewMemoryQueue(logger.Nop(), nil)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		q.Stop(ctx)
	})

	if err := q.PublishMessage(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unregistered message type")
	}
}

func TestMemoryQueueRetries(t *testing.T) {
	job := &countingJob{typ: "test.retry"}
	job.fail.Store(true)

	q := NewMemoryQueue(logger.Nop(), &QueueConfig{Workers: 1, RetryLimit: 2, RetryDelay: 10 * time.Millisecond})
	q.RegisterJob(job)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		q.Stop(ctx)
	})

	if err := q.PublishMessage(context.Background(), "test.retry", nil); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}

	// First attempt fails, retry succeeds.
	waitFor(t, 2*time.Second, func() bool { return job.count.Load() >= 2 })
}

func TestParsePayloadShapes(t *testing.T) {
	type payload struct {
		ProjectID string `json:"project_id"`
	}

	direct, err := ParsePayload[payload](payload{ProjectID: "p1"})
	if err != nil || direct.ProjectID != "p1" {
		t.Fatalf("direct: %v %v", direct, err)
	}

	fromMap, err := ParsePayload[payload](map[string]interface{}{"project_id": "p2"})
	if err != nil || fromMap.ProjectID != "p2" {
		t.Fatalf("map: %v %v", fromMap, err)
	}

	if _, err := ParsePayload[payload](42); err == nil {
		t.Fatal("expected error for invalid payload type")
	}
}

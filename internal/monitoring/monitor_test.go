package monitoring

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"loadcast/internal/dataset"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *captureSink) Send(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func noiseFrame(t *testing.T, n int, seed int64, shift float64) *dataset.Frame {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	f := dataset.New("timestamp")
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		f.Times = append(f.Times, base.Add(time.Duration(i)*time.Hour))
		vals[i] = 100 + 10*rng.NormFloat64() + shift
	}
	if err := f.AddColumn("load", vals); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	f.AddCalendarFeatures()
	return f
}

func TestRunChecksAllHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := &captureSink{}
	ref := noiseFrame(t, 400, 1, 0)
	cur := noiseFrame(t, 400, 1, 0) // same distribution, no shift
	m := NewMonitor(ref, "load", Config{HealthURL: srv.URL}, []AlertSink{sink}, logger.Nop(), metrics.Nop())

	preds := []float64{100, 101, 99}
	actuals := []float64{100, 100, 100}
	report := m.RunChecks(context.Background(), cur, preds, actuals)

	if report.Drift.Flagged || report.Performance.Flagged || report.Health.Flagged {
		t.Fatalf("healthy cycle flagged: %+v", report)
	}
	if report.Alerts != 0 || sink.count() != 0 {
		t.Fatalf("alerts emitted on a healthy cycle: %d", sink.count())
	}
}

func TestRunChecksFlagsAndAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &captureSink{}
	ref := noiseFrame(t, 400, 1, 0)
	cur := noiseFrame(t, 400, 2, 40) // strong level shift in the value column
	m := NewMonitor(ref, "load", Config{HealthURL: srv.URL}, []AlertSink{sink}, logger.Nop(), metrics.Nop())

	preds := []float64{150, 150, 150}
	actuals := []float64{100, 100, 100}
	report := m.RunChecks(context.Background(), cur, preds, actuals)

	if !report.Drift.Flagged {
		t.Fatal("drift not flagged despite level shift")
	}
	if !report.Performance.Flagged {
		t.Fatal("performance not flagged at 50% error")
	}
	if !report.Health.Flagged {
		t.Fatal("health not flagged on 500 response")
	}
	if report.Alerts != 3 || sink.count() != 3 {
		t.Fatalf("alerts = %d (sink %d), want 3", report.Alerts, sink.count())
	}
}

func TestRunChecksSkipsMissingInputs(t *testing.T) {
	sink := &captureSink{}
	m := NewMonitor(nil, "load", Config{}, []AlertSink{sink}, logger.Nop(), metrics.Nop())

	report := m.RunChecks(context.Background(), nil, nil, nil)

	if !report.Drift.Skipped || !report.Performance.Skipped || !report.Health.Skipped {
		t.Fatalf("missing inputs must skip, got %+v", report)
	}
	if sink.count() != 0 {
		t.Fatal("skipped checks must not alert")
	}
}

func TestSchedulerIdempotentStartAndStop(t *testing.T) {
	var mu sync.Mutex
	cycles := 0
	s := NewScheduler(10*time.Millisecond, time.Second, func(context.Context) {
		mu.Lock()
		cycles++
		mu.Unlock()
	}, logger.Nop())

	s.Start()
	s.Start() // second start is a warn + no-op
	if !s.IsRunning() {
		t.Fatal("scheduler should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := cycles
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	if s.IsRunning() {
		t.Fatal("scheduler should be stopped")
	}
	s.Stop() // stopping again is safe

	mu.Lock()
	n := cycles
	mu.Unlock()
	if n < 2 {
		t.Fatalf("cycles = %d, want at least 2", n)
	}
}

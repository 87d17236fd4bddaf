package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firasghr/GoClearance/metrics"
)

func TestRecord(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncrementTotal()
	m.IncrementTotal()
	m.IncrementTotal()
	m.Record(metrics.OutcomePassthrough)
	m.Record(metrics.OutcomeSolved)
	m.Record(metrics.OutcomeFailed)

	s := m.Snapshot()
	if s.Total != 3 {
		t.Errorf("Total: got %d, want 3", s.Total)
	}
	if s.Passthrough != 1 || s.Solved != 1 || s.Failed != 1 {
		t.Errorf("outcomes: got %+v, want one each of passthrough, solved, failed", s)
	}
	if s.Unsupported != 0 {
		t.Errorf("Unsupported: got %d, want 0", s.Unsupported)
	}
}

func TestConcurrentRecord(t *testing.T) {
	m := metrics.NewMetrics()
	const goroutines = 1000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			m.IncrementTotal()
			m.Record(metrics.OutcomeSolved)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Total != goroutines {
		t.Errorf("Total: got %d, want %d", s.Total, goroutines)
	}
	if s.Solved != goroutines {
		t.Errorf("Solved: got %d, want %d", s.Solved, goroutines)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.IncrementTotal()
	m.Record(metrics.OutcomeSolved)
	m.ObserveSolve(time.Second)
	if s := m.Snapshot(); s != (metrics.Snapshot{}) {
		t.Errorf("nil Snapshot: got %+v, want zero", s)
	}
}

func TestHandlerExposesSeries(t *testing.T) {
	m := metrics.NewMetrics()
	m.Record(metrics.OutcomeUnsupported)
	m.ObserveSolve(4 * time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`clearance_requests_total{outcome="unsupported"} 1`,
		"clearance_solve_duration_seconds_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

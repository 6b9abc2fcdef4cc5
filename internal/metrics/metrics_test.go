package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushes    int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func swapBackend(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := swapBackend(t)

	RecordStep("jobA", "census", nil, 2*time.Second)
	RecordStep("jobB", "correct", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("calls counters=%d histograms=%d; want 2/2", len(fb.counters), len(fb.histograms))
	}

	c0 := fb.counters[0]
	if c0.name != StepTotal || c0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s delta=1", c0, StepTotal)
	}
	if c0.labels["job"] != "jobA" || c0.labels["step"] != "census" || c0.labels["status"] != "success" {
		t.Fatalf("counter[0] labels = %v", c0.labels)
	}
	if h := fb.histograms[0]; h.name != StepDurationSeconds || h.value < 1.999 || h.value > 2.001 {
		t.Fatalf("hist[0] = %#v; want ~2s on %s", h, StepDurationSeconds)
	}

	if got := fb.counters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1] status=%q; want failure", got)
	}
}

func TestRecordRowSkipsNonPositive(t *testing.T) {
	fb := swapBackend(t)

	RecordRow("job", "read", 3)
	RecordRow("job", "read", 0)
	RecordRow("job", "rejected", -1)
	RecordRow("job", "emitted", 5)

	if len(fb.counters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.counters))
	}
	if c := fb.counters[1]; c.name != RowsTotal || c.delta != 5 || c.labels["kind"] != "emitted" {
		t.Fatalf("counter[1] = %#v", c)
	}
}

func TestRecordFile(t *testing.T) {
	fb := swapBackend(t)

	RecordFile("job", "corrected")

	if len(fb.counters) != 1 {
		t.Fatalf("expected 1 counter call, got %d", len(fb.counters))
	}
	c := fb.counters[0]
	if c.name != FilesTotal || c.labels["status"] != "corrected" || c.labels["job"] != "job" {
		t.Fatalf("counter = %#v", c)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)
	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushes != 1 {
		t.Fatalf("expected 1 flush, got %d", fb.flushes)
	}

	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}

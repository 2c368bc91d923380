package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
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
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func swap(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := swap(t)

	RecordStep("run1", "transfer", nil, 2*time.Second)
	RecordStep("run1", "verify", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters, %d histograms, want 2 and 2", len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != StepTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, StepTotal)
	}
	if got := cc0.labels["status"]; got != "success" {
		t.Fatalf("counter[0].labels[status]=%q; want success", got)
	}
	if got := fb.callsCounters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1].labels[status]=%q; want failure", got)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != StepDurationSeconds || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v; want %s ~2.0", h0, StepDurationSeconds)
	}
}

func TestRecordRowsAndBatches(t *testing.T) {
	fb := swap(t)

	RecordRows("run1", RowsTransferred, 250000)
	RecordRows("run1", RowsFallbackFailed, 0)
	RecordBatches("run1", 25)
	RecordBatches("run1", -1)
	RecordVerification("run1", "MATCH")

	if len(fb.callsCounters) != 3 {
		t.Fatalf("counters = %d, want 3 (zero/negative deltas skipped)", len(fb.callsCounters))
	}
	if c := fb.callsCounters[0]; c.name != RowsTotal || c.delta != 250000 || c.labels["kind"] != RowsTransferred {
		t.Fatalf("counter[0] = %#v, want rows transferred 250000", c)
	}
	if c := fb.callsCounters[1]; c.name != BatchesTotal || c.delta != 25 {
		t.Fatalf("counter[1] = %#v, want batches 25", c)
	}
	if c := fb.callsCounters[2]; c.name != VerificationsTotal || c.labels["status"] != "MATCH" {
		t.Fatalf("counter[2] = %#v, want verification MATCH", c)
	}
}

func TestSetBackendNilAndFlush(t *testing.T) {
	fb := swap(t)

	SetBackend(nil)
	if backend != Backend(fb) {
		t.Fatalf("SetBackend(nil) replaced the backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount = %d, want 1", fb.flushCount)
	}
}

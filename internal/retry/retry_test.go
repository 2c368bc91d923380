package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// recorder is an injectable Sleep that records every requested delay.
type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

// failing returns an op that fails k times and then returns 42.
func failing(k int, calls *int) func() (int, error) {
	return func() (int, error) {
		*calls++
		if *calls <= k {
			return 0, errors.New("lock timeout")
		}
		return 42, nil
	}
}

// TestDo_SucceedsAfterFailures verifies k failures cost exactly k doubling
// delays starting at the base delay.
func TestDo_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		k    int
		want []time.Duration
	}{
		{name: "first try", k: 0, want: nil},
		{name: "one failure", k: 1, want: []time.Duration{time.Second}},
		{name: "two failures", k: 2, want: []time.Duration{time.Second, 2 * time.Second}},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			calls := 0
			got, err := Do(context.Background(), Policy{Sleep: rec.sleep}, failing(tt.k, &calls))
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if got != 42 {
				t.Fatalf("Do() = %d, want 42", got)
			}
			if calls != tt.k+1 {
				t.Fatalf("calls = %d, want %d", calls, tt.k+1)
			}
			if len(rec.delays) != len(tt.want) {
				t.Fatalf("delays = %v, want %v", rec.delays, tt.want)
			}
			for i := range tt.want {
				if rec.delays[i] != tt.want[i] {
					t.Fatalf("delays[%d] = %v, want %v", i, rec.delays[i], tt.want[i])
				}
			}
		})
	}
}

// TestDo_Exhausted verifies MaxAttempts failures propagate the last error
// with no further attempt or delay.
func TestDo_Exhausted(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	calls := 0
	last := errors.New("attempt 3")
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Sleep: rec.sleep}, func() (int, error) {
		calls++
		if calls == 3 {
			return 0, last
		}
		return 0, errors.New("earlier")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("Do() error = %v, want it to wrap the last error", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != 10*time.Millisecond || rec.delays[1] != 20*time.Millisecond {
		t.Fatalf("delays = %v, want [10ms 20ms]", rec.delays)
	}
}

// TestDo_NonRetryable verifies errors rejected by Retryable return at once.
func TestDo_NonRetryable(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	calls := 0
	fatal := errors.New("syntax error")
	err := Run(context.Background(), Policy{
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:     rec.sleep,
	}, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || errors.Is(err, ErrExhausted) {
		t.Fatalf("Run() error = %v, want the fatal error unwrapped by ErrExhausted", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("calls=%d delays=%v, want 1 call and no delay", calls, rec.delays)
	}
}

// TestDo_Canceled verifies a canceled context stops the backoff wait.
func TestDo_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, Policy{BaseDelay: time.Hour}, failing(5, &calls))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

// TestDelay verifies the multiplier is applied per failure.
func TestDelay(t *testing.T) {
	t.Parallel()

	p := Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 3}
	want := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

// TestProperty_BackoffDelays checks that for any attempt bound and any
// k < bound, k failures produce k delays each double the previous.
func TestProperty_BackoffDelays(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("k failures incur k doubling delays", prop.ForAll(
		func(maxAttempts, k int, baseMs int64) bool {
			if k >= maxAttempts {
				k = maxAttempts - 1
			}
			rec := &recorder{}
			calls := 0
			base := time.Duration(baseMs) * time.Millisecond
			got, err := Do(context.Background(), Policy{MaxAttempts: maxAttempts, BaseDelay: base, Sleep: rec.sleep}, failing(k, &calls))
			if err != nil || got != 42 || len(rec.delays) != k {
				return false
			}
			for i, d := range rec.delays {
				if d != base<<i {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 7),
		gen.Int64Range(1, 5000),
	))

	properties.Property("bound failures exhaust without extra attempts", prop.ForAll(
		func(maxAttempts int) bool {
			rec := &recorder{}
			calls := 0
			_, err := Do(context.Background(), Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, Sleep: rec.sleep}, failing(maxAttempts+10, &calls))
			return errors.Is(err, ErrExhausted) && calls == maxAttempts && len(rec.delays) == maxAttempts-1
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

package scholar

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errSearchDown = errors.New("search down")

// scriptedSource fails a fixed number of times before answering.
type scriptedSource struct {
	failures int
	calls    int
}

func (s *scriptedSource) PapersFor(_ context.Context, _, _ string) ([]Paper, error) {
	s.calls++

	if s.calls <= s.failures {
		return nil, errSearchDown
	}

	return []Paper{{ExternalID: "p1", Title: "Recovered"}}, nil
}

func newTestRetrier(source PapersSource) (*Retrier, *[]time.Duration) {
	r := NewRetrier(source)

	slept := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)

		return nil
	}
	r.random = func() float64 { return 0.5 }

	return r, slept
}

func TestRetrierPapersFor(t *testing.T) {
	t.Run("first success needs no sleep", func(t *testing.T) {
		source := &scriptedSource{}
		r, slept := newTestRetrier(source)

		papers, err := r.PapersFor(context.Background(), "Jane Smith", "")
		if err != nil {
			t.Fatalf("papers for: %v", err)
		}

		if len(papers) != 1 || source.calls != 1 || len(*slept) != 0 {
			t.Errorf("papers=%d calls=%d slept=%v", len(papers), source.calls, *slept)
		}
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		source := &scriptedSource{failures: 2}
		r, slept := newTestRetrier(source)

		papers, err := r.PapersFor(context.Background(), "Jane Smith", "")
		if err != nil {
			t.Fatalf("papers for: %v", err)
		}

		if len(papers) != 1 || source.calls != 3 {
			t.Errorf("papers=%d calls=%d", len(papers), source.calls)
		}

		// base*2^(n-1) plus half the jitter window.
		want := []time.Duration{700 * time.Millisecond, 1300 * time.Millisecond}

		if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
			t.Errorf("slept: got %v, want %v", *slept, want)
		}
	})

	t.Run("exhausts the budget and surfaces the last error", func(t *testing.T) {
		source := &scriptedSource{failures: 100}
		r, slept := newTestRetrier(source)

		_, err := r.PapersFor(context.Background(), "Jane Smith", "")
		if !errors.Is(err, errSearchDown) {
			t.Fatalf("got %v, want %v", err, errSearchDown)
		}

		if source.calls != defaultRetries+1 {
			t.Errorf("calls: got %d, want %d", source.calls, defaultRetries+1)
		}

		want := []time.Duration{
			700 * time.Millisecond,
			1300 * time.Millisecond,
			2500 * time.Millisecond,
			4900 * time.Millisecond,
			9700 * time.Millisecond,
		}

		if len(*slept) != len(want) {
			t.Fatalf("sleep count: got %d, want %d", len(*slept), len(want))
		}

		for i, w := range want {
			if (*slept)[i] != w {
				t.Errorf("sleep %d: got %v, want %v", i, (*slept)[i], w)
			}
		}
	})

	t.Run("cancelled sleep stops the loop", func(t *testing.T) {
		source := &scriptedSource{failures: 100}
		r, _ := newTestRetrier(source)

		r.sleep = func(_ context.Context, _ time.Duration) error {
			return context.Canceled
		}

		_, err := r.PapersFor(context.Background(), "Jane Smith", "")
		if !errors.Is(err, errSearchDown) {
			t.Fatalf("got %v, want the source error", err)
		}

		if source.calls != 1 {
			t.Errorf("calls: got %d, want 1", source.calls)
		}
	})
}

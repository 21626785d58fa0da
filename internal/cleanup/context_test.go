package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDo(t *testing.T) {
	t.Run("executes function", func(t *testing.T) {
		var called bool
		err := Do(context.Background(), 0, func(ctx context.Context) {
			called = true
		})
		if !called {
			t.Error("function was not called")
		}
		if err != nil {
			t.Errorf("Do() = %v, want nil", err)
		}
	})

	t.Run("reports an overrun", func(t *testing.T) {
		err := Do(context.Background(), 10*time.Millisecond, func(ctx context.Context) {
			<-ctx.Done()
		})
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("Do() = %v, want ErrTimeout", err)
		}
	})

	t.Run("provides timeout context", func(t *testing.T) {
		Do(context.Background(), 0, func(ctx context.Context) {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Error("expected context to have deadline")
				return
			}
			remaining := time.Until(deadline)
			if remaining <= 0 || remaining > DefaultTimeout+time.Second {
				t.Errorf("deadline should be ~%v in future, got %v", DefaultTimeout, remaining)
			}
		})
	})

	t.Run("clears parent cancellation", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		Do(canceled, 0, func(ctx context.Context) {
			if ctx.Err() != nil {
				t.Errorf("expected clean context, got error: %v", ctx.Err())
			}
		})
	})

	t.Run("preserves values from parent", func(t *testing.T) {
		type key struct{}
		parent := context.WithValue(context.Background(), key{}, "test-value")

		Do(parent, 0, func(ctx context.Context) {
			if v := ctx.Value(key{}); v != "test-value" {
				t.Errorf("expected value to be preserved, got %v", v)
			}
		})
	})
}

func TestStackRunsInReverse(t *testing.T) {
	var order []string
	var s Stack
	for _, name := range []string{"rmdir", "release loop", "unmount", "restore euid"} {
		s.Push(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}

	if failed := s.Run(context.Background()); failed != 0 {
		t.Errorf("Run() failed = %d, want 0", failed)
	}

	want := []string{"restore euid", "unmount", "release loop", "rmdir"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
	if s.Len() != 0 {
		t.Errorf("stack should be empty after Run, has %d", s.Len())
	}
}

func TestStackContinuesAfterFailure(t *testing.T) {
	var ran []string
	var reported []string
	s := Stack{
		OnError: func(_ context.Context, name string, err error) {
			reported = append(reported, name+": "+err.Error())
		},
	}
	s.Push("first", func(context.Context) error {
		ran = append(ran, "first")
		return nil
	})
	s.Push("broken", func(context.Context) error {
		ran = append(ran, "broken")
		return errors.New("busy")
	})
	s.Push("last", func(context.Context) error {
		ran = append(ran, "last")
		return nil
	})

	if failed := s.Run(context.Background()); failed != 1 {
		t.Errorf("Run() failed = %d, want 1", failed)
	}
	if diff := cmp.Diff([]string{"last", "broken", "first"}, ran); diff != "" {
		t.Errorf("unexpected run order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"broken: busy"}, reported); diff != "" {
		t.Errorf("unexpected reports (-want +got):\n%s", diff)
	}
}

func TestStackRunTwice(t *testing.T) {
	var calls int
	var s Stack
	s.Push("once", func(context.Context) error {
		calls++
		return nil
	})
	s.Run(context.Background())
	s.Run(context.Background())
	if calls != 1 {
		t.Errorf("step ran %d times, want 1", calls)
	}
}

func TestStackTimeoutReachesSteps(t *testing.T) {
	s := Stack{Timeout: time.Minute}
	var remaining time.Duration
	s.Push("check deadline", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		remaining = time.Until(deadline)
		return nil
	})
	if failed := s.Run(context.Background()); failed != 0 {
		t.Fatalf("Run() failed = %d", failed)
	}
	if remaining <= DefaultTimeout || remaining > time.Minute {
		t.Errorf("step deadline in %v, want close to 1m", remaining)
	}
}

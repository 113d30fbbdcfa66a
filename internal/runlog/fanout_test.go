package runlog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapWaitsForEveryTask(t *testing.T) {
	boom := errors.New("boom")
	var finished atomic.Int32
	inputs := []int{0, 1, 2, 3, 4}

	err := Map(context.Background(), inputs, func(_ context.Context, i int) error {
		defer finished.Add(1)
		if i == 0 {
			return boom
		}
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Map error = %v, want boom", err)
	}
	if got := finished.Load(); got != int32(len(inputs)) {
		t.Fatalf("Map returned with %d/%d tasks finished", got, len(inputs))
	}
}

func TestMapEmpty(t *testing.T) {
	if err := Map(context.Background(), []string(nil), func(context.Context, string) error {
		t.Fatalf("fn called for empty input")
		return nil
	}); err != nil {
		t.Fatalf("Map: %v", err)
	}
}

func TestCollectKeepsOrderAndJoinsErrors(t *testing.T) {
	errOdd := errors.New("odd")
	inputs := []int{1, 2, 3, 4}
	results, err := Collect(context.Background(), inputs, func(_ context.Context, i int) (int, error) {
		time.Sleep(time.Duration(len(inputs)-i) * 5 * time.Millisecond)
		if i%2 == 1 {
			return -i, errOdd
		}
		return i * 10, nil
	})
	want := []int{-1, 20, -3, 40}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results = %v, want %v", results, want)
		}
	}
	if !errors.Is(err, errOdd) {
		t.Fatalf("Collect error = %v, want odd", err)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected both failures joined, got %v", err)
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestNextTickAlignsToDay(t *testing.T) {
	s, err := New(Options{Interval: 24 * time.Hour, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)
	want := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("nextTick = %s, want %s", got, want)
	}

	midnight := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	if got := s.nextTick(midnight); !got.Equal(want) {
		t.Fatalf("a boundary instant should advance to the next day, got %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s, _ := New(Options{Interval: time.Hour}, zerolog.Nop())
	now := time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected next tick %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(now) {
		t.Fatalf("unaligned bucket should be the tick itself, got %s", got)
	}
}

func TestRunImmediatelyThenStopsOnCancel(t *testing.T) {
	s, _ := New(Options{Interval: time.Hour, RunImmediately: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			calls.Add(1)
			cancel()
			return errors.New("tick errors are logged, not returned")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one immediate tick, got %d", calls.Load())
	}
}

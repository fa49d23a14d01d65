package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 6; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Errorf("Delay(%d) = %v, want within [0, 10s]", attempt, got)
			}
		}
	}
}

func TestExponentialWithJitter_Spread(t *testing.T) {
	e := &backoff.ExponentialWithJitter{
		Initial: time.Second,
		Max:     time.Minute,
		Spread:  0.5,
		Rand:    func() float64 { return 0 },
	}
	if got := e.Delay(3); got != 2*time.Second {
		t.Errorf("lowest delay with spread 0.5 = %v, want 2s", got)
	}

	e.Rand = func() float64 { return 0.999999 }
	if got := e.Delay(3); got > 4*time.Second || got < 3900*time.Millisecond {
		t.Errorf("highest delay = %v, want just under 4s", got)
	}
}

func TestExponentialWithJitter_ProducesVariance(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[e.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got only %d distinct values", len(seen))
	}
}

func TestDefaults(t *testing.T) {
	if d := backoff.DefaultStrategy().Delay(1); d < 0 || d > 500*time.Millisecond {
		t.Errorf("DefaultStrategy().Delay(1) = %v", d)
	}
	if d := backoff.ContentionStrategy().Delay(1); d < 25*time.Millisecond || d > 50*time.Millisecond {
		t.Errorf("ContentionStrategy().Delay(1) = %v", d)
	}
}

func TestWait(t *testing.T) {
	if err := backoff.Wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := backoff.Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

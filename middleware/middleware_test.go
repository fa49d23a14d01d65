package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/middleware"
	"github.com/alimaamoun/DM-Agent/task"
)

func newTestTask() *task.Task {
	return &task.Task{
		Kind:    task.KindImage,
		JobID:   id.NewJobID(),
		Target:  "2024-06-01|instagram|launch",
		Attempt: 2,
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}
	mw2 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	err := middleware.Chain(mw1, mw2)(context.Background(), newTestTask(), func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("order = %v, want %v", order, expected)
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), newTestTask(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("handler not called with empty chain: %v", err)
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		return next(ctx)
	}
	want := errors.New("handler error")

	err := middleware.Chain(pass)(context.Background(), newTestTask(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_PanicIsPermanent(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	err := mw(context.Background(), newTestTask(), func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if task.IsTransient(err) {
		t.Error("panic should not be retried")
	}
	if !strings.Contains(err.Error(), "test panic") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	called := false
	err := middleware.Recover(slog.Default())(context.Background(), newTestTask(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("handler not called: %v", err)
	}
}

func TestLogging_Error(t *testing.T) {
	want := task.Transient("gen", errors.New("503"))
	err := middleware.Logging(slog.Default())(context.Background(), newTestTask(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_PerKind(t *testing.T) {
	mw := middleware.Timeout(time.Hour, map[task.Kind]time.Duration{task.KindImage: 10 * time.Millisecond})

	err := mw(context.Background(), newTestTask(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if !task.IsTransient(err) {
		t.Error("deadline should classify transient")
	}
}

func TestTimeout_ZeroMeansNone(t *testing.T) {
	mw := middleware.Timeout(0, nil)
	err := mw(context.Background(), newTestTask(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

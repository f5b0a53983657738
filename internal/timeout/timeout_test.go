package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/familycal/internal/model"
)

func TestDo_CompletesBeforeDeadline_ReturnsResult(t *testing.T) {
	got, err := Do(context.Background(), time.Second, "fast op", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != 42 {
		t.Errorf("got = %d, want 42", got)
	}
}

func TestDo_OperationError_IsPassedThrough(t *testing.T) {
	wantErr := errors.New("backend rejected")
	_, err := Do(context.Background(), time.Second, "failing op", func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestDo_DeadlineFiresFirst_ReturnsTimeoutError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	_, err := Do(context.Background(), 10*time.Millisecond, "slow op", func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !model.IsTimeout(err) {
		t.Errorf("err = %v, want timeout category", err)
	}
}

func TestDo_LateResultIsDiscarded(t *testing.T) {
	done := make(chan struct{})

	_, err := Do(context.Background(), 5*time.Millisecond, "late op", func(ctx context.Context) (int, error) {
		defer close(done)
		time.Sleep(30 * time.Millisecond)
		return 7, nil
	})
	if !model.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}

	// 遅れて完了した操作がブロックせず終了できること
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late operation goroutine did not finish")
	}
}

func TestDo_ContextCancelled_ReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	defer close(release)

	_, err := Do(ctx, time.Second, "cancelled op", func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDoErr_WrapsErrorOnlyOperations(t *testing.T) {
	err := DoErr(context.Background(), time.Second, "void op", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

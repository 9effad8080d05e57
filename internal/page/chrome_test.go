package page

import (
	"context"
	"testing"
	"time"
)

func TestWithCancelPropagatesCallerCancellation(t *testing.T) {
	caller, stopCaller := context.WithCancel(context.Background())
	ctx, cancel := withCancel(context.Background(), caller)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("derived context done before any cancellation")
	default:
	}

	stopCaller()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("caller cancellation did not propagate to the derived context")
	}
}

func TestWithCancelReleaseStopsDerivedContext(t *testing.T) {
	ctx, cancel := withCancel(context.Background(), context.Background())
	cancel()
	select {
	case <-ctx.Done():
	default:
		t.Error("releasing the cancel must end the derived context")
	}
}

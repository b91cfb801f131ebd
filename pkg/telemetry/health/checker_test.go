package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLiveness(t *testing.T) {
	c := New(0)
	c.Register("storage", func(ctx context.Context) error {
		t.Error("Liveness must not run component checks")
		return nil
	})

	status := c.Liveness()
	if status.Status != "ok" {
		t.Errorf("Expected ok, got %q", status.Status)
	}
}

func TestReadiness_NoChecks(t *testing.T) {
	status := New(0).Readiness(context.Background())
	if !status.Healthy() {
		t.Errorf("Expected ready with no checks, got %q", status.Status)
	}
}

func TestReadiness_AllHealthy(t *testing.T) {
	c := New(0)
	c.Register("storage", func(ctx context.Context) error { return nil })
	c.Register("dispatcher", func(ctx context.Context) error { return nil })

	status := c.Readiness(context.Background())
	if !status.Healthy() {
		t.Fatalf("Expected healthy, got %q", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Errorf("Expected 2 check results, got %d", len(status.Checks))
	}
	for name, result := range status.Checks {
		if result.Status != "ok" {
			t.Errorf("Check %s: expected ok, got %q", name, result.Status)
		}
	}
}

func TestReadiness_OneUnhealthy(t *testing.T) {
	c := New(0)
	c.Register("storage", func(ctx context.Context) error { return nil })
	c.Register("dispatcher", func(ctx context.Context) error {
		return errors.New("not started")
	})

	status := c.Readiness(context.Background())
	if status.Healthy() {
		t.Fatal("Expected unhealthy status")
	}
	if status.Checks["dispatcher"].Message != "not started" {
		t.Errorf("Expected failure message, got %q", status.Checks["dispatcher"].Message)
	}
	if status.Checks["storage"].Status != "ok" {
		t.Error("Healthy component must still report ok")
	}
}

func TestReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	status := c.Readiness(context.Background())
	if status.Healthy() {
		t.Fatal("Expected unhealthy status for timed-out check")
	}
	if status.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("Expected timeout message, got %q", status.Checks["slow"].Message)
	}
}

func TestRegister_Replaces(t *testing.T) {
	c := New(0)
	c.Register("storage", func(ctx context.Context) error { return errors.New("old") })
	c.Register("storage", func(ctx context.Context) error { return nil })

	if status := c.Readiness(context.Background()); !status.Healthy() {
		t.Errorf("Expected replacement check to run, got %q", status.Status)
	}
}

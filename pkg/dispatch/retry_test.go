package dispatch

import (
	"testing"
	"time"
)

func TestBackoffDelay_Exponential(t *testing.T) {
	cfg := RetryConfig{BackoffBase: 2.0}

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.retryCount); got != tt.want {
			t.Errorf("backoffDelay(retry=%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestBackoffDelay_DefaultBase(t *testing.T) {
	if got := backoffDelay(RetryConfig{}, 2); got != 4*time.Second {
		t.Errorf("Expected default base 2.0 to give 4s, got %v", got)
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	cfg := RetryConfig{BackoffBase: 2.0, JitterMax: 500 * time.Millisecond}

	for i := 0; i < 100; i++ {
		got := backoffDelay(cfg, 1)
		if got < 2*time.Second || got >= 2*time.Second+cfg.JitterMax {
			t.Fatalf("Delay %v outside [2s, 2.5s)", got)
		}
	}
}

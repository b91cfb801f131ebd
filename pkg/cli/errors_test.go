package cli

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	cause := errors.New("yaml: line 3: mapping values are not allowed")
	err := NewConfigError("/etc/callisto/config.yaml", cause)

	if !strings.Contains(err.Error(), "/etc/callisto/config.yaml") {
		t.Errorf("Expected path in message, got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected Unwrap to expose the cause")
	}
}

func TestConfigError_NoPath(t *testing.T) {
	err := NewConfigError("", errors.New("boom"))

	if strings.Contains(err.Error(), "in ") {
		t.Errorf("Expected no path segment, got %q", err.Error())
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("listen tcp: address in use")
	err := NewCommandError("run", cause)

	if !strings.Contains(err.Error(), "command run failed") {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected Unwrap to expose the cause")
	}
}

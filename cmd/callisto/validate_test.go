package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"veridian-hq/callisto/pkg/config"
)

const validateTestYAML = `
dispatch:
  tiers:
    fast:
      max_concurrent: 4
      cost_per_thousand_tokens: 0.001
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestValidateCommand_ValidConfig(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()
	cfgFile = writeTestConfig(t, validateTestYAML)

	if err := validateConfig(validateCmd, nil); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()
	cfgFile = writeTestConfig(t, `
dispatch:
  tiers:
    fast:
      max_concurrent: -1
      cost_per_thousand_tokens: 0.001
`)

	err := validateConfig(validateCmd, nil)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T: %v", err, err)
	}
}

func TestValidateCommand_MissingFile(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := validateConfig(validateCmd, nil); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

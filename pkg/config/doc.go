// Package config provides configuration loading, defaulting, validation,
// and hot reload for Callisto.
//
// Configuration is a YAML file with sections for the admin server, the
// dispatch tiers and retry policy, budget classes, usage storage, and
// telemetry. Loading follows a fixed sequence: parse the file, apply
// defaults, apply CALLISTO_* environment overrides, validate. A
// configuration that fails validation is rejected as a whole with every
// field error collected.
//
// The Watcher supports hot reload: when enabled, changes to the file on
// disk are debounced, reloaded through the same sequence, and handed to
// the application. A reload that fails validation is logged and dropped,
// so a bad edit never takes down a running instance.
package config

// Callisto is a budget-gated dispatch daemon for tiered compute calls.
//
// It admits work against per-tenant budgets, schedules it by priority,
// enforces per-tier rate limits and concurrency ceilings, and retries
// transient tier rejections with exponential backoff.
//
// Usage:
//
//	# Start the daemon with the default configuration
//	callisto run
//
//	# Start with a custom configuration file
//	callisto run --config /etc/callisto/config.yaml
//
//	# Check a configuration file without starting anything
//	callisto validate --config /etc/callisto/config.yaml
//
//	# Show version information
//	callisto version
package main

func main() {
	Execute()
}

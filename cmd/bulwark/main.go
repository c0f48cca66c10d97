// Bulwark is a resilience proxy for streaming AI chat upstreams.
//
// It sits in front of one or more chat completion APIs and applies:
//   - Sliding-window rate limiting with burst control
//   - Request deduplication for identical in-flight requests
//   - Per-upstream circuit breaking
//   - Retry with exponential backoff and cached-response fallback
//
// Usage:
//
//	# Start the proxy with the default configuration
//	bulwark run
//
//	# Start with a custom configuration file
//	bulwark run --config /etc/bulwark/config.yaml
//
//	# Validate a configuration file without starting
//	bulwark validate --config /etc/bulwark/config.yaml
//
//	# Show version information
//	bulwark version
package main

func main() {
	Execute()
}

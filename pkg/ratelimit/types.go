package ratelimit

import "time"

// Dimension identifies one admission dimension of a request.
type Dimension string

// Built-in dimensions, in the order the proxy checks them.
const (
	DimensionIP       Dimension = "ip"
	DimensionUser     Dimension = "user"
	DimensionEndpoint Dimension = "endpoint"
	DimensionGlobal   Dimension = "global"
)

// Config holds the tunables of one limiter.
//
// Only non-zero limits are enforced; a zero Limit means the sustained window
// is unlimited, a zero BurstLimit disables burst checking.
type Config struct {
	// Limit is the maximum number of admissions per Window
	Limit int

	// Window is the sustained sliding window duration
	Window time.Duration

	// BurstLimit is the maximum number of admissions per BurstWindow.
	// Zero disables the burst check.
	BurstLimit int

	// BurstWindow is the short window for burst control. It should be
	// shorter than Window.
	BurstWindow time.Duration
}

// Decision is the outcome of an admission check. Rejection is a Decision,
// never an error: the caller had no failure, it just has to wait.
type Decision struct {
	// Allowed reports whether the request was admitted
	Allowed bool

	// Dimension names the dimension that rejected (empty on admit)
	Dimension Dimension

	// Limit is the configured limit of the deciding window
	Limit int

	// Remaining is the budget left in the deciding window
	Remaining int

	// RetryAfter is how long until a slot frees up. Always in (0, Window]
	// for a rejection; zero on admit.
	RetryAfter time.Duration
}

// Key pairs a dimension with its request-specific value
// (e.g. {ip, "10.0.0.1"}).
type Key struct {
	Dimension Dimension
	Value     string
}

// MultiConfig configures a MultiLimiter: one default Config plus optional
// per-dimension overrides.
type MultiConfig struct {
	// Default applies to every dimension without an override
	Default Config

	// Overrides replace the default for specific dimensions
	Overrides map[Dimension]Config
}

// configFor resolves the effective config for a dimension.
func (mc MultiConfig) configFor(dim Dimension) Config {
	if cfg, ok := mc.Overrides[dim]; ok {
		return cfg
	}
	return mc.Default
}

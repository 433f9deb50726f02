package luna

// Config controls decoder behavior that spec.md §9's design notes leave as
// implementation choices rather than fixed protocol rules.
type Config struct {
	// CoalesceSOF, when true, merges a run of consecutive SOF packets into
	// a single pseudo-transaction instead of opening and closing one per
	// SOF. Off by default, matching the literal per-packet transaction
	// decoder of §4.4.
	CoalesceSOF bool

	// Backend selects how the capture's streams are backed. Defaults to
	// MemfdBackend, the reference implementation of §4.3.
	Backend Backend
}

// Option configures a Config, following the teacher's descriptor-option
// pattern (config.go) generalized from parsing options to decoder options.
type Option func(*Config)

// WithCoalesceSOF sets Config.CoalesceSOF.
func WithCoalesceSOF(coalesce bool) Option {
	return func(c *Config) { c.CoalesceSOF = coalesce }
}

// WithBackend sets Config.Backend.
func WithBackend(b Backend) Option {
	return func(c *Config) { c.Backend = b }
}

func newConfig(opts ...Option) Config {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

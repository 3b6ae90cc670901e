package bplist

import "go.uber.org/zap"

// DefaultMaxDepth bounds container nesting when no WithMaxDepth option is
// given.
const DefaultMaxDepth = 512

type config struct {
	permissive bool
	maxDepth   int
	log        *zap.Logger
}

// Option configures a decode.
type Option func(*config)

// WithPermissive skips the header identifier and version checks.
func WithPermissive(permissive bool) Option {
	return func(c *config) { c.permissive = permissive }
}

// WithMaxDepth sets the deepest container nesting accepted. Values below 1
// restore the default.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		if depth < 1 {
			depth = DefaultMaxDepth
		}
		c.maxDepth = depth
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		maxDepth: DefaultMaxDepth,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

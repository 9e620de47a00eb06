package perms

import "time"

type options struct {
	now func() time.Time
}

// Option configures the perms services.
type Option func(*options)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package plan

import (
	"log/slog"
	"time"

	"github.com/nrednav/cuid2"
)

// Option is a function that allows configuring the Plan.
type Option func(*options) error

type options struct {
	logger  *slog.Logger
	timeNow func() time.Time
	newID   func() string
}

// WithLogger sets the logger used by the Plan.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger.With("component", "plan")
		return nil
	}
}

// WithTimeNow sets the function used to measure migration durations.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(o *options) error {
		o.timeNow = timeNowFn
		return nil
	}
}

// WithRunIDGenerator sets the function that generates unique run IDs.
func WithRunIDGenerator(newID func() string) Option {
	return func(o *options) error {
		o.newID = newID
		return nil
	}
}

// DefaultOptions returns the default Plan options.
func DefaultOptions() []Option {
	return []Option{
		WithLogger(slog.Default()),
		WithTimeNow(time.Now),
		WithRunIDGenerator(cuid2.Generate),
	}
}

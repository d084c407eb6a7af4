package matching

import "time"

const DefaultFuzzyWindow = 7 * 24 * time.Hour

// DefaultReferencePrefixes are the provider prefixes stripped from payment
// and invoice references when no others are configured.
var DefaultReferencePrefixes = []string{"MPESA"}

// Config controls one reconciliation run.
type Config struct {
	// ReferenceStripPrefixes are removed from the front of references before
	// comparison. A nil slice means DefaultReferencePrefixes; an empty
	// non-nil slice disables stripping.
	ReferenceStripPrefixes []string
	// ToleranceMinorUnits: over/underpayments smaller than this are not
	// flagged. Zero flags every difference.
	ToleranceMinorUnits int64
	// FuzzyWindow bounds the distance between a payment's receipt and an
	// invoice's due date for the customer+date-window tier. Zero disables it.
	FuzzyWindow time.Duration
	// HighValueMinorUnits raises over/underpayment severity to HIGH when the
	// delta reaches it. Zero disables the escalation.
	HighValueMinorUnits int64
	// Clock supplies the reference time for the past-due rule.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ReferenceStripPrefixes: DefaultReferencePrefixes,
		FuzzyWindow:            DefaultFuzzyWindow,
		Clock:                  time.Now,
	}
}

type Option func(*Config)

// WithConfig replaces the whole configuration. A nil Clock or nil prefix
// slice in c keeps the default.
func WithConfig(c Config) Option {
	return func(dst *Config) {
		if c.Clock == nil {
			c.Clock = dst.Clock
		}
		if c.ReferenceStripPrefixes == nil {
			c.ReferenceStripPrefixes = dst.ReferenceStripPrefixes
		}
		*dst = c
	}
}

func WithReferencePrefixes(prefixes ...string) Option {
	return func(c *Config) {
		c.ReferenceStripPrefixes = append([]string{}, prefixes...)
	}
}

func WithTolerance(minorUnits int64) Option {
	return func(c *Config) { c.ToleranceMinorUnits = minorUnits }
}

func WithFuzzyWindow(d time.Duration) Option {
	return func(c *Config) { c.FuzzyWindow = d }
}

func WithHighValueThreshold(minorUnits int64) Option {
	return func(c *Config) { c.HighValueMinorUnits = minorUnits }
}

// WithClock pins the run's reference time, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithAsOf is WithClock for a fixed instant.
func WithAsOf(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

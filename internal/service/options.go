package service

import (
	"time"
)

type settings struct {
	clock    func() time.Time
	location *time.Location
}

type Option func(*settings)

// WithClock replaces time.Now for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) { s.clock = clock }
}

// WithLocation sets the zone entry timestamps are recorded and displayed in.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{clock: time.Now, location: time.UTC}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) now() time.Time {
	return s.clock().In(s.location)
}

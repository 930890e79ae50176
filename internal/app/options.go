package app

import (
	"time"

	"github.com/okian/scoutsync/internal/adapters/mq/queue"
	"github.com/okian/scoutsync/internal/adapters/signal"
	"github.com/okian/scoutsync/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithInterval sets the periodic trigger. Zero disables the timer.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.interval = d
		}
	}
}

// WithProbeInterval sets how often connectivity is probed. Zero disables probing.
func WithProbeInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.probeInterval = d
		}
	}
}

// WithQueue replaces the trigger queue.
func WithQueue(q queue.Queue) Option {
	return func(o *Orchestrator) {
		if q != nil {
			o.queue = q
		}
	}
}

// WithSignals makes pending-queue changes seen on bus trigger a sync.
func WithSignals(bus *signal.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// ServiceOption applies a configuration option to the Service.
type ServiceOption func(*Service)

// WithScheduleProvider sets where ImportSchedule fetches matches from.
func WithScheduleProvider(p ScheduleProvider) ServiceOption {
	return func(s *Service) { s.provider = p }
}

// WithDefaultEventKey is used by ImportSchedule when no key is given.
func WithDefaultEventKey(key string) ServiceOption {
	return func(s *Service) { s.eventKey = key }
}

// WithSyncer fires sync triggers after local writes.
func WithSyncer(t Syncer) ServiceOption {
	return func(s *Service) { s.syncer = t }
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

package push

import (
	"context"
	"time"
)

// Option applies a configuration option to the Pusher.
type Option func(*Pusher)

// WithBatchSize sets how many records go into one upsert.
func WithBatchSize(n int) Option {
	return func(p *Pusher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMaxRetries sets how many times a failed batch is retried.
func WithMaxRetries(n int) Option {
	return func(p *Pusher) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the delay before the first retry.
func WithBaseBackoff(d time.Duration) Option {
	return func(p *Pusher) {
		if d >= 0 {
			p.baseBackoff = d
		}
	}
}

// WithMaxBackoff caps the retry delay. Zero leaves it uncapped.
func WithMaxBackoff(d time.Duration) Option {
	return func(p *Pusher) {
		if d >= 0 {
			p.maxBackoff = d
		}
	}
}

// WithClock overrides the time source used for syncedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pusher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSleeper overrides how backoff delays are waited out.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pusher) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

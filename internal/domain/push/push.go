// Package push delivers pending scouting records to the remote store in
// bounded batches with retry and exponential backoff.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/scoutsync/internal/adapters/remote"
	"github.com/okian/scoutsync/internal/domain/model"
	"github.com/okian/scoutsync/pkg/logger"
	"github.com/okian/scoutsync/pkg/metrics"
)

// Defaults for the delivery policy.
const (
	DefaultBatchSize   = 50
	DefaultMaxRetries  = 6
	DefaultBaseBackoff = 500 * time.Millisecond
)

// Records resolves and updates local scouting records. LockRecords
// serializes confirmation against local edits.
type Records interface {
	RecordsByID(ctx context.Context, ids []string) (found []model.ScoutingRecord, missing []string, err error)
	PutRecord(ctx context.Context, rec model.ScoutingRecord) error
	LockRecords(ctx context.Context, fn func(ctx context.Context) error) error
}

// Queue is the pending id queue the pusher drains.
type Queue interface {
	All(ctx context.Context) ([]string, error)
	Dequeue(ctx context.Context, ids ...string) (int, error)
}

// Result summarizes one Push.
type Result struct {
	Pending       int  `json:"pending"`        // ids pending when the push started
	Batches       int  `json:"batches"`        // batches attempted
	Pushed        int  `json:"pushed"`         // records confirmed and marked synced
	FailedBatches int  `json:"failed_batches"` // batches left (fully or partly) pending
	Orphaned      int  `json:"orphaned"`       // pending ids dropped because their record is gone
	Retries       int  `json:"retries"`        // retry attempts across all batches
	Skipped       bool `json:"skipped"`        // no remote client configured
}

// Pusher drains the pending queue. A nil client is a valid configuration:
// Push then leaves everything pending and reports Skipped.
type Pusher struct {
	records Records
	queue   Queue
	client  remote.Client

	batchSize   int
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	log         logger.Logger
}

// New creates a Pusher.
func New(records Records, queue Queue, client remote.Client, opts ...Option) *Pusher {
	p := &Pusher{
		records:     records,
		queue:       queue,
		client:      client,
		batchSize:   DefaultBatchSize,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
		now:         time.Now,
		sleep:       sleepCtx,
		log:         logger.Get().Named("pusher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push delivers every pending record at least once. Failed batches stay
// pending; they are reported in the Result, not as an error. An error is
// returned only when local state cannot be read or written, or ctx ends.
func (p *Pusher) Push(ctx context.Context) (Result, error) {
	var res Result
	if p.client == nil {
		res.Skipped = true
		return res, nil
	}

	ids, err := p.queue.All(ctx)
	if err != nil {
		return res, err
	}
	res.Pending = len(ids)
	if len(ids) == 0 {
		return res, nil
	}

	recs, missing, err := p.records.RecordsByID(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("resolve pending records: %w", err)
	}
	if len(missing) > 0 {
		n, err := p.queue.Dequeue(ctx, missing...)
		if err != nil {
			return res, err
		}
		res.Orphaned = n
		metrics.RecordOrphansHealed(n)
		p.log.Warn(ctx, "dropped orphaned pending ids", logger.Int("count", n))
	}

	for start := 0; start < len(recs); start += p.batchSize {
		end := min(start+p.batchSize, len(recs))
		batch := recs[start:end]
		res.Batches++

		confirmed, retries, sendErr := p.send(ctx, batch)
		res.Retries += retries

		if len(confirmed) > 0 {
			n, err := p.confirm(ctx, batch, confirmed)
			res.Pushed += n
			if err != nil {
				return res, err
			}
		}

		switch {
		case sendErr == nil:
			metrics.RecordPushBatch("ok")
		case len(confirmed) > 0:
			res.FailedBatches++
			metrics.RecordPushBatch("partial")
			p.log.Warn(ctx, "batch partially accepted",
				logger.Int("batch", res.Batches), logger.Int("accepted", len(confirmed)),
				logger.Int("size", len(batch)), logger.Error(sendErr))
		default:
			res.FailedBatches++
			metrics.RecordPushBatch("failed")
			metrics.RecordErrorByComponent("pusher", "remote")
			p.log.Warn(ctx, "batch left pending",
				logger.Int("batch", res.Batches), logger.Int("size", len(batch)),
				logger.Int("retries", retries), logger.Error(sendErr))
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	metrics.RecordRecordsPushed(res.Pushed)
	return res, nil
}

// send upserts one batch, retrying retryable failures with exponential
// backoff. It returns the ids the remote confirmed and the retry count.
func (p *Pusher) send(ctx context.Context, batch []model.ScoutingRecord) (map[string]struct{}, int, error) {
	wire := make([]model.ScoutingWire, 0, len(batch))
	for _, rec := range batch {
		wire = append(wire, rec.Wire())
	}
	rows, err := remote.Marshal(wire)
	if err != nil {
		return nil, 0, fmt.Errorf("encode batch: %w", err)
	}

	retries := 0
	for attempt := 0; ; attempt++ {
		report, err := p.client.Upsert(ctx, remote.CollectionScouting, rows, remote.DefaultConflictKey)
		if err == nil {
			all := make(map[string]struct{}, len(batch))
			for _, rec := range batch {
				all[rec.ID] = struct{}{}
			}
			return all, retries, nil
		}
		if len(report.Accepted) > 0 {
			// Partial success is only trusted when the remote lists rows explicitly.
			return acceptedSet(batch, report.Accepted), retries, err
		}
		if !remote.IsRetryable(err) || attempt >= p.maxRetries || ctx.Err() != nil {
			return nil, retries, err
		}

		delay := p.backoff(attempt)
		p.log.Debug(ctx, "retrying batch", logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay), logger.Error(err))
		if serr := p.sleep(ctx, delay); serr != nil {
			return nil, retries, errors.Join(err, serr)
		}
		retries++
		metrics.RecordPushRetry()
	}
}

// backoff returns base * 2^attempt, capped by maxBackoff when set.
func (p *Pusher) backoff(attempt int) time.Duration {
	d := p.baseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.maxBackoff > 0 && d >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	if p.maxBackoff > 0 && d > p.maxBackoff {
		return p.maxBackoff
	}
	return d
}

// confirm marks confirmed records synced and dequeues them. A record edited
// after it was read for this batch keeps its pending entry so the newer
// state is pushed next time.
func (p *Pusher) confirm(ctx context.Context, batch []model.ScoutingRecord, confirmed map[string]struct{}) (int, error) {
	sent := make(map[string]model.ScoutingRecord, len(confirmed))
	ids := make([]string, 0, len(confirmed))
	for _, rec := range batch {
		if _, ok := confirmed[rec.ID]; ok {
			sent[rec.ID] = rec
			ids = append(ids, rec.ID)
		}
	}

	done := make([]string, 0, len(ids))
	err := p.records.LockRecords(ctx, func(ctx context.Context) error {
		current, _, err := p.records.RecordsByID(ctx, ids)
		if err != nil {
			return fmt.Errorf("reload confirmed records: %w", err)
		}

		stamp := p.now().UnixMilli()
		for _, rec := range current {
			if rec.UpdatedAt != sent[rec.ID].UpdatedAt {
				continue
			}
			rec.MarkSynced(stamp)
			if err := p.records.PutRecord(ctx, rec); err != nil {
				return fmt.Errorf("mark %s synced: %w", rec.ID, err)
			}
			done = append(done, rec.ID)
		}
		_, err = p.queue.Dequeue(ctx, done...)
		return err
	})
	return len(done), err
}

func acceptedSet(batch []model.ScoutingRecord, accepted []string) map[string]struct{} {
	inBatch := make(map[string]struct{}, len(batch))
	for _, rec := range batch {
		inBatch[rec.ID] = struct{}{}
	}
	out := make(map[string]struct{}, len(accepted))
	for _, id := range accepted {
		if _, ok := inBatch[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

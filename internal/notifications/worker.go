package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
)

// WorkerConfig contains delivery worker pool configuration.
type WorkerConfig struct {
	BatchSize  int
	Workers    int
	BatchDelay time.Duration
	MaxRetries int
	SweepLimit int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:  5,
		Workers:    5,
		BatchDelay: 2 * time.Second,
		MaxRetries: 5,
		SweepLimit: 100,
	}
}

// normalize fills zero values from the defaults and caps Workers at BatchSize.
func (c WorkerConfig) normalize() WorkerConfig {
	def := DefaultWorkerConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Workers <= 0 || c.Workers > c.BatchSize {
		c.Workers = c.BatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = def.SweepLimit
	}
	return c
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	// outcomeAborted leaves the record untouched for the next run.
	outcomeAborted
)

// DeliveryStats counts per-record outcomes of one drain. Aborted records are
// not attempts.
type DeliveryStats struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Aborted   int `json:"aborted"`
}

func (s *DeliveryStats) add(o outcome) {
	switch o {
	case outcomeSent:
		s.Attempted++
		s.Sent++
	case outcomeFailed:
		s.Attempted++
		s.Failed++
	default:
		s.Aborted++
	}
}

func (s *DeliveryStats) merge(other DeliveryStats) {
	s.Attempted += other.Attempted
	s.Sent += other.Sent
	s.Failed += other.Failed
	s.Aborted += other.Aborted
}

type deliverFunc func(ctx context.Context, rec domain.NotificationRecord) outcome

// workerPool drains records in batches of BatchSize with Workers goroutines
// per batch and BatchDelay between batches.
type workerPool struct {
	config WorkerConfig
	sleep  func(ctx context.Context, d time.Duration) bool
}

func newWorkerPool(config WorkerConfig) *workerPool {
	return &workerPool{config: config, sleep: sleep}
}

// drain stops before the next batch once ctx is cancelled and returns ctx.Err().
func (p *workerPool) drain(ctx context.Context, records []domain.NotificationRecord, deliver deliverFunc) (DeliveryStats, error) {
	var stats DeliveryStats

	for start := 0; start < len(records); start += p.config.BatchSize {
		if start > 0 && !p.sleep(ctx, p.config.BatchDelay) {
			return stats, ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(start+p.config.BatchSize, len(records))
		batch := records[start:end]
		recordQueueProcessed(len(batch))

		slog.Debug("processing batch", "offset", start, "size", len(batch))

		for _, o := range p.runBatch(ctx, batch, deliver) {
			stats.add(o)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (p *workerPool) runBatch(ctx context.Context, batch []domain.NotificationRecord, deliver deliverFunc) []outcome {
	jobs := make(chan domain.NotificationRecord)
	results := make(chan outcome, len(batch))

	var wg sync.WaitGroup
	for i := 0; i < min(p.config.Workers, len(batch)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				results <- deliver(ctx, rec)
			}
		}()
	}

	for _, rec := range batch {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]outcome, 0, len(batch))
	for o := range results {
		out = append(out, o)
	}
	return out
}

// sleep waits for duration or context cancellation. Returns false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

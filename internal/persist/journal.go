package persist

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BatchWriter stores one batch of journal entries.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []JournalEntry) error
}

// Journal moves journal batches off the game loop. Submit never blocks; a
// single goroutine (Run) writes batches in order.
type Journal struct {
	repo  BatchWriter
	queue chan []JournalEntry
	done  chan struct{}
	log   *zap.Logger
}

func NewJournal(repo BatchWriter, queueSize int, log *zap.Logger) *Journal {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Journal{
		repo:  repo,
		queue: make(chan []JournalEntry, queueSize),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Submit hands a batch to the writer. It returns false, dropping the batch,
// when the queue is full.
func (j *Journal) Submit(batch []JournalEntry) bool {
	if len(batch) == 0 {
		return true
	}
	select {
	case j.queue <- batch:
		return true
	default:
		j.log.Warn("journal queue full, dropping batch", zap.Int("entries", len(batch)))
		return false
	}
}

// Run writes batches until ctx is cancelled, then drains what is already
// queued. Done is closed when it returns.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case batch := <-j.queue:
			j.write(ctx, batch)
		case <-ctx.Done():
			j.drain()
			return
		}
	}
}

// Done is closed once Run has written its last batch.
func (j *Journal) Done() <-chan struct{} {
	return j.done
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case batch := <-j.queue:
			j.write(ctx, batch)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, batch []JournalEntry) {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := j.repo.WriteBatch(wctx, batch); err != nil {
		j.log.Error("journal write failed", zap.Int("entries", len(batch)), zap.Error(err))
		return
	}
	j.log.Debug("journal batch written", zap.Int("entries", len(batch)))
}

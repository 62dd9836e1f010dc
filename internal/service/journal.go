package service

import (
	"context"
	"log"
	"sync"
	"time"

	"secretari/internal/model"
	"secretari/internal/repository"
)

const (
	journalBuffer    = 100
	journalBatchSize = 10
	journalFlush     = 1 * time.Second
)

// Journal writes usage events to the SQL journal asynchronously in batches.
type Journal struct {
	repo   repository.UsageEventRepository
	events chan model.UsageEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewJournal starts the background writer.
func NewJournal(repo repository.UsageEventRepository) *Journal {
	j := &Journal{
		repo:   repo,
		events: make(chan model.UsageEvent, journalBuffer),
		done:   make(chan struct{}),
	}

	// Start async journal worker
	go j.worker(context.Background())

	return j
}

// worker processes usage events asynchronously.
func (j *Journal) worker(ctx context.Context) {
	defer close(j.done)

	batch := make([]model.UsageEvent, 0, journalBatchSize)
	ticker := time.NewTicker(journalFlush)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-j.events:
			if !ok {
				// Channel closed, flush remaining events
				if len(batch) > 0 {
					_ = j.repo.CreateBatch(ctx, batch)
				}
				return
			}
			batch = append(batch, ev)
			if len(batch) >= journalBatchSize {
				_ = j.repo.CreateBatch(ctx, batch)
				batch = make([]model.UsageEvent, 0, journalBatchSize)
			}
		case <-ticker.C:
			// Flush batch periodically
			if len(batch) > 0 {
				_ = j.repo.CreateBatch(ctx, batch)
				batch = make([]model.UsageEvent, 0, journalBatchSize)
			}
		}
	}
}

// Record enqueues an event without blocking the caller. After Close the
// event is written synchronously.
func (j *Journal) Record(ctx context.Context, ev model.UsageEvent) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.write(ctx, ev)
		return
	}

	select {
	case j.events <- ev:
	default:
		// Channel full, write synchronously as fallback
		j.write(ctx, ev)
	}
}

func (j *Journal) write(ctx context.Context, ev model.UsageEvent) {
	if err := j.repo.Create(ctx, &ev); err != nil {
		log.Printf("usage journal: dropped event for %s: %v", ev.Username, err)
	}
}

// Close flushes pending events and stops the worker.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.events)
	}
	j.mu.Unlock()
	<-j.done
}

// Package batch aggregates outbound email notifications and flushes
// them as one combined message when a size or age threshold is hit.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/channel"
)

var flushCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notification_batch_flush_total",
	Help: "Batch flush outcomes",
}, []string{"status"})

// EmailSender is the slice of the email channel the batcher needs.
type EmailSender interface {
	Send(ctx context.Context, to []string, content channel.Content, priority alert.Priority) error
}

// Item is one queued notification awaiting a batch flush.
type Item struct {
	To      []string
	Subject string
	Body    string
}

const flushInterval = time.Second

// Batcher collects items until either maxSize items are pending or
// maxWait has passed since the last flush. The pending queue and the
// flush loop share one mutex; Add never blocks on network I/O.
type Batcher struct {
	mu        sync.Mutex
	maxSize   int
	maxWait   time.Duration
	pending   []Item
	lastFlush time.Time

	sender EmailSender
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a batcher flushing through sender.
func New(maxSize int, maxWait time.Duration, sender EmailSender, logger zerolog.Logger) *Batcher {
	b := &Batcher{
		maxSize: maxSize,
		maxWait: maxWait,
		sender:  sender,
		logger:  logger,
		now:     time.Now,
	}
	b.lastFlush = b.now()
	return b
}

// Add queues one item. It never triggers a flush itself; the loop in
// Run picks the item up on its next tick.
func (b *Batcher) Add(item Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, item)
}

// ShouldFlush reports whether the size or age threshold is crossed.
func (b *Batcher) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shouldFlushLocked()
}

func (b *Batcher) shouldFlushLocked() bool {
	if len(b.pending) >= b.maxSize {
		return true
	}
	return b.now().Sub(b.lastFlush) >= b.maxWait
}

// Pending reports the number of queued items.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Clear drops all queued items without sending.
func (b *Batcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.lastFlush = b.now()
}

// Run drives the flush loop until ctx is cancelled. A final flush is
// attempted on shutdown so queued items are not silently dropped.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-ticker.C:
			if b.ShouldFlush() {
				b.Flush(ctx)
			}
		}
	}
}

// Flush sends all pending items as one aggregated message. The queue
// is cleared and the flush clock reset before the send, so a failed
// send is counted and logged but never blocks future batches.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	items := b.pending
	b.pending = nil
	b.lastFlush = b.now()
	b.mu.Unlock()

	if len(items) == 0 {
		return
	}

	to, content := aggregate(items)
	if err := b.sender.Send(ctx, to, content, alert.PriorityNormal); err != nil {
		flushCounter.WithLabelValues("error").Inc()
		b.logger.Error().Err(err).Int("items", len(items)).Msg("batch flush failed")
		return
	}
	flushCounter.WithLabelValues("sent").Inc()
	b.logger.Info().Int("items", len(items)).Int("recipients", len(to)).Msg("batch flushed")
}

// aggregate folds the items into one recipient list and one combined
// body, one section per original item.
func aggregate(items []Item) ([]string, channel.Content) {
	seen := make(map[string]struct{})
	var to []string
	var body strings.Builder

	for i, item := range items {
		for _, rcpt := range item.To {
			if _, ok := seen[rcpt]; ok {
				continue
			}
			seen[rcpt] = struct{}{}
			to = append(to, rcpt)
		}
		if i > 0 {
			body.WriteString("\n----------------------------------------\n")
		}
		body.WriteString(item.Subject + "\n\n" + item.Body + "\n")
	}

	return to, channel.Content{
		Subject: fmt.Sprintf("[Batched] %d notifications", len(items)),
		Body:    body.String(),
	}
}

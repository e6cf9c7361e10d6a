package counter

import (
	"context"
	"sync"
	"time"

	"groupwarden/internal/platform"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

// Clock abstracts the flush timer for tests.
type Clock interface {
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

type buffer = map[platform.JID]map[platform.JID]storage.CounterRecord

// Aggregator buffers per-user message counts in memory and merges them into
// the durable totals on a fixed interval. The flush timer is scheduled lazily
// on the first Record after a flush, so an idle bot does no periodic writes.
type Aggregator struct {
	totals   *storage.CounterTotals
	interval time.Duration
	clock    Clock
	logger   *zap.Logger

	mu        sync.Mutex
	buf       buffer
	scheduled bool
	closed    bool
}

type Option func(*Aggregator)

func WithClock(clock Clock) Option {
	return func(a *Aggregator) { a.clock = clock }
}

func New(totals *storage.CounterTotals, interval time.Duration, logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		totals:   totals,
		interval: interval,
		clock:    realClock{},
		logger:   logger,
		buf:      make(buffer),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record counts one message of the given kind for (group, user). It never
// blocks on storage.
func (a *Aggregator) Record(group, user platform.JID, kind platform.Kind) {
	var delta storage.CounterRecord
	switch kind {
	case platform.KindText:
		delta.Messages = 1
	case platform.KindAudio:
		delta.Audios = 1
	case platform.KindImage:
		delta.Photos = 1
	case platform.KindVideo:
		delta.Videos = 1
	case platform.KindSticker:
		delta.Stickers = 1
	default:
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	users := a.buf[group]
	if users == nil {
		users = make(map[platform.JID]storage.CounterRecord)
		a.buf[group] = users
	}
	rec := users[user]
	rec.Add(delta)
	users[user] = rec

	if !a.scheduled {
		a.scheduled = true
		a.clock.AfterFunc(a.interval, a.flushTick)
	}
}

func (a *Aggregator) flushTick() {
	if err := a.Flush(); err != nil {
		a.logger.Error("counter flush failed, retaining interval data", zap.Error(err))
	}
}

// Flush swaps the live buffer out and merges it into the durable totals. On a
// failed write the snapshot is merged back into the live buffer so no interval
// is lost; it rides along with the next flush.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	snapshot := a.buf
	a.buf = make(buffer)
	a.scheduled = false
	a.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	if err := a.totals.Merge(snapshot); err != nil {
		a.mu.Lock()
		mergeBuffers(a.buf, snapshot)
		if !a.scheduled && !a.closed {
			a.scheduled = true
			a.clock.AfterFunc(a.interval, a.flushTick)
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

// Close performs a final flush and rejects further records.
func (a *Aggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.Flush()
}

func mergeBuffers(dst, src buffer) {
	for group, users := range src {
		d := dst[group]
		if d == nil {
			d = make(map[platform.JID]storage.CounterRecord)
			dst[group] = d
		}
		for user, rec := range users {
			total := d[user]
			total.Add(rec)
			d[user] = total
		}
	}
}

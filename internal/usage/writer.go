package usage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Writer persists records off the request path. Enqueueing blocks only when
// the buffer is full, which applies backpressure instead of dropping audit
// rows: the log must hold exactly one record per terminal outcome.
type Writer struct {
	store Store
	ch    chan *Record
	wg    sync.WaitGroup
	once  sync.Once
	log   zerolog.Logger
}

func NewWriter(store Store, buffer int, log zerolog.Logger) *Writer {
	if buffer <= 0 {
		buffer = 1024
	}
	w := &Writer{
		store: store,
		ch:    make(chan *Record, buffer),
		log:   log.With().Str("component", "usage-writer").Logger(),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record enqueues one audit row.
func (w *Writer) Record(rec *Record) {
	w.ch <- rec
}

func (w *Writer) run() {
	defer w.wg.Done()
	for rec := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := w.store.Append(ctx, rec); err != nil {
			w.log.Error().
				Err(err).
				Str("request_id", rec.RequestID).
				Str("tenant_id", rec.TenantID).
				Str("outcome", string(rec.Outcome)).
				Msg("failed to persist usage record")
		}
		cancel()
	}
}

// Close drains pending records and stops the writer. Safe to call more than once.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.ch)
	})
	w.wg.Wait()
}

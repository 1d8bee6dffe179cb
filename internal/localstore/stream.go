package localstore

import (
	"context"
	"sync"

	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
)

// QueryFn narrows a session to the rows a live query observes.
type QueryFn func(tx *gorm.DB) *gorm.DB

// Subscription is a live query handle. Values arrive on C until Cancel is
// called or the query fails; after the channel closes, Err reports the
// terminating error, if any. Failing to Cancel leaks the watcher for the
// lifetime of the process.
type Subscription[T any] struct {
	ch     chan []T
	cancel context.CancelFunc
	once   sync.Once

	mu  sync.Mutex
	err error
}

// C delivers the full current result set on every table change. Emissions
// are latest-wins: a slow consumer observes the most recent snapshot, not
// every intermediate one.
func (s *Subscription[T]) C() <-chan []T {
	return s.ch
}

// Err reports the error that terminated the stream, nil after a clean Cancel.
// Stream termination means "resubscribe", not an in-stream recoverable event.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel releases the underlying watcher. Safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
}

func (s *Subscription[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Watch opens a live query over the table: it emits the current result set
// immediately, then re-runs the query and re-emits whenever the table
// changes. The stream is infinite until cancelled and restartable by
// re-subscribing.
func Watch[T any](ctx context.Context, store *Store, table string, query QueryFn) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		ch:     make(chan []T, 1),
		cancel: cancel,
	}
	w := store.notifier.register(table)

	go func() {
		defer close(sub.ch)
		defer store.notifier.unregister(table, w)

		for {
			var rows []T
			if err := query(store.db.WithContext(ctx)).Find(&rows).Error; err != nil {
				if ctx.Err() == nil {
					sub.fail(errors.Wrap(errors.CodeLocalStore, err, "live query "+table))
				}
				return
			}
			if !sub.send(ctx, rows) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
		}
	}()

	return sub
}

// send delivers rows with latest-wins coalescing, returning false when the
// subscription context ended.
func (s *Subscription[T]) send(ctx context.Context, rows []T) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case s.ch <- rows:
			return true
		default:
		}
		// Channel full: discard the stale snapshot and retry.
		select {
		case <-s.ch:
		default:
		}
	}
}

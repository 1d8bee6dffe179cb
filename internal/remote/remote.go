// Package remote is the adapter over the cloud realtime store: a tree of
// JSON values addressed by slash-separated paths, with last-write-wins
// overwrites, push-based change notification per subtree, and a presence
// extension with disconnect-safe cleanup.
package remote

import (
	"context"
	"sync"
)

// Store is the realtime backend surface the repositories run against.
//
// Set overwrites the full value at path (no field-level merge of concurrent
// edits). Get returns nil data with no error when the path is absent.
// Subscribe and SubscribeTree return live streams that emit the current
// value immediately and again on every remote mutation, including mutations
// from other clients; they terminate only on Cancel or an unrecoverable
// backend error surfaced through Err.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Set(ctx context.Context, path string, value any) error
	Remove(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string) (*Subscription[[]byte], error)
	SubscribeTree(ctx context.Context, prefix string) (*Subscription[map[string][]byte], error)
	SetOnlineStatus(ctx context.Context, userID string, online bool) error
}

// Presence is the value stored at presence/{userID}.
type Presence struct {
	IsOnline     bool  `json:"isOnline"`
	LastActiveAt int64 `json:"lastActiveAt"`
}

// Remote tree layout.
func ItemsPath(groupID string) string        { return "groups/" + groupID + "/shopping_items" }
func ItemPath(groupID, itemID string) string { return ItemsPath(groupID) + "/" + itemID }
func GroupPath(groupID string) string        { return "groups/" + groupID }
func UserPath(userID string) string          { return "users/" + userID }
func MetadataPath(barcode string) string     { return "item_metadata/" + barcode }
func ScanHistoryPath(id string) string       { return "scan_history/" + id }
func PriceHistoryPath(id string) string      { return "price_history/" + id }
func PresencePath(userID string) string      { return "presence/" + userID }

// Subscription is a cancellable live stream of remote snapshots. The
// subscriber must call Cancel to release the underlying listener; failing to
// do so leaks it for the lifetime of the process.
type Subscription[T any] struct {
	ch       chan T
	cancelFn func()
	once     sync.Once

	mu  sync.Mutex
	err error
}

func newSubscription[T any](buffer int, cancelFn func()) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Subscription[T]{
		ch:       make(chan T, buffer),
		cancelFn: cancelFn,
	}
}

// C delivers snapshots, latest-wins under consumer backpressure. The channel
// closes when the stream terminates.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Err reports the unrecoverable error that terminated the stream, nil after
// a clean Cancel. A terminated stream must be replaced by resubscribing.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel releases the underlying listener. Safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancelFn)
}

func (s *Subscription[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// push delivers a snapshot without blocking the producer: when the consumer
// lags, the stale buffered snapshot is dropped in favor of the new one.
func (s *Subscription[T]) push(value T) {
	for {
		select {
		case s.ch <- value:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscription[T]) closeChan() {
	close(s.ch)
}

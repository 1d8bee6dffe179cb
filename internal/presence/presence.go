package presence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
)

// Tracker maintains per-user online/offline status on the realtime backend.
// Going online registers a disconnect-triggered offline write on the
// backend, so a crashed or disconnected client still ends up marked offline
// without any client-side heartbeat.
type Tracker struct {
	store   remote.Store
	metrics *metrics.SyncMetrics
	logg    *logger.Logger
}

func NewTracker(store remote.Store, m *metrics.SyncMetrics, logg *logger.Logger) *Tracker {
	return &Tracker{store: store, metrics: m, logg: logg}
}

func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	return t.setStatus(ctx, userID, true)
}

// SetOffline is the explicit sign-off path. It clears the registered
// disconnect write so the backend has nothing left to commit.
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	return t.setStatus(ctx, userID, false)
}

func (t *Tracker) setStatus(ctx context.Context, userID string, online bool) error {
	if userID == "" {
		return errors.New(errors.CodeValidation, "user id is required")
	}
	if err := t.store.SetOnlineStatus(ctx, userID, online); err != nil {
		return err
	}
	status := "offline"
	if online {
		status = "online"
	}
	t.metrics.IncPresence(status)
	if t.logg != nil {
		t.logg.Debug(t.logg.WithUserID(ctx, userID), "presence set to "+status)
	}
	return nil
}

// Watch is a live stream of one user's presence. The channel carries the
// latest snapshot; Cancel releases the underlying remote listener. A closed
// channel with a non-nil Err means the stream died and the caller must
// resubscribe.
type Watch struct {
	ch     chan remote.Presence
	cancel func()

	mu  sync.Mutex
	err error
}

func (w *Watch) C() <-chan remote.Presence {
	return w.ch
}

func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Watch) Cancel() {
	w.cancel()
}

func (w *Watch) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// send keeps only the latest snapshot when the receiver lags.
func (w *Watch) send(p remote.Presence) {
	for {
		select {
		case w.ch <- p:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}

func (t *Tracker) Watch(ctx context.Context, userID string) (*Watch, error) {
	if userID == "" {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	sub, err := t.store.Subscribe(ctx, remote.PresencePath(userID))
	if err != nil {
		return nil, err
	}

	w := &Watch{
		ch:     make(chan remote.Presence, 1),
		cancel: sub.Cancel,
	}
	go func() {
		defer close(w.ch)
		for raw := range sub.C() {
			if raw == nil {
				// No presence record yet; treat as offline.
				w.send(remote.Presence{})
				continue
			}
			var p remote.Presence
			if err := json.Unmarshal(raw, &p); err != nil {
				w.fail(errors.Wrap(errors.CodeRemote, err, "decode presence"))
				sub.Cancel()
				return
			}
			w.send(p)
		}
		if err := sub.Err(); err != nil {
			w.fail(err)
		}
	}()
	return w, nil
}

package remote

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	redispkg "github.com/shopperapp/shopper-backend/pkg/redis"
)

const (
	dataPrefix       = "data"
	disconnectPrefix = "disconnect"
	livenessPrefix   = "live"
	changesChannel   = "shopper:changes"
)

// RedisStore implements Store against redis. Tree paths become namespaced
// keys; every write publishes the mutated path on a shared channel, which
// drives the push side of subscriptions. Presence liveness is a TTL'd key
// the store refreshes while the client holds a connection; the
// PresenceReaper commits the registered disconnect write when that key
// expires without an explicit sign-off.
type RedisStore struct {
	client      *redispkg.Client
	logg        *logger.Logger
	livenessTTL time.Duration

	mu         sync.Mutex
	refreshers map[string]context.CancelFunc
}

func NewRedisStore(client *redispkg.Client, logg *logger.Logger, livenessTTL time.Duration) *RedisStore {
	if livenessTTL <= 0 {
		livenessTTL = 30 * time.Second
	}
	return &RedisStore{
		client:      client,
		logg:        logg,
		livenessTTL: livenessTTL,
		refreshers:  make(map[string]context.CancelFunc),
	}
}

func (r *RedisStore) dataKey(path string) string {
	return r.client.Key(dataPrefix, path)
}

func (r *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := r.client.Raw().Get(ctx, r.dataKey(path)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeRemote, err, "get "+path)
	}
	return raw, nil
}

func (r *RedisStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	match := r.dataKey(prefix) + "/*"
	keyPrefix := r.dataKey(prefix) + "/"

	out := make(map[string][]byte)
	iter := r.client.Raw().Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		child := strings.TrimPrefix(key, keyPrefix)
		if strings.Contains(child, "/") {
			continue
		}
		raw, err := r.client.Raw().Get(ctx, key).Bytes()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(errors.CodeRemote, err, "list "+prefix)
		}
		out[child] = raw
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeRemote, err, "list "+prefix)
	}
	return out, nil
}

func (r *RedisStore) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.CodeRemote, err, "marshal "+path)
	}
	if err := r.client.Set(ctx, r.dataKey(path), raw, 0); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "set "+path)
	}
	return r.publish(ctx, path)
}

func (r *RedisStore) Remove(ctx context.Context, path string) error {
	if err := r.client.Del(ctx, r.dataKey(path)); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "remove "+path)
	}
	return r.publish(ctx, path)
}

func (r *RedisStore) publish(ctx context.Context, path string) error {
	if err := r.client.Raw().Publish(ctx, changesChannel, path).Err(); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "publish "+path)
	}
	return nil
}

func (r *RedisStore) Subscribe(ctx context.Context, path string) (*Subscription[[]byte], error) {
	return subscribe(ctx, r, path,
		func(ctx context.Context) ([]byte, error) { return r.Get(ctx, path) },
		func(changed string) bool { return changed == path },
	)
}

func (r *RedisStore) SubscribeTree(ctx context.Context, prefix string) (*Subscription[map[string][]byte], error) {
	return subscribe(ctx, r, prefix,
		func(ctx context.Context) (map[string][]byte, error) { return r.List(ctx, prefix) },
		func(changed string) bool { return strings.HasPrefix(changed, prefix+"/") },
	)
}

// subscribe bridges the push channel into a cancellable snapshot stream:
// emit current state, then re-read and re-emit for every published path the
// filter accepts.
func subscribe[T any](ctx context.Context, r *RedisStore, label string, read func(context.Context) (T, error), matches func(string) bool) (*Subscription[T], error) {
	pubsub := r.client.Raw().Subscribe(ctx, changesChannel)
	// Force the subscription onto the wire before the initial read so no
	// mutation can slip between them.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(errors.CodeRemote, err, "subscribe "+label)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription[T](1, func() {
		cancel()
		_ = pubsub.Close()
	})

	go func() {
		defer sub.closeChan()

		initial, err := read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				sub.fail(err)
			}
			return
		}
		sub.push(initial)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					if ctx.Err() == nil {
						sub.fail(errors.New(errors.CodeRemote, "subscription channel closed"))
					}
					return
				}
				if !matches(msg.Payload) {
					continue
				}
				snapshot, err := read(ctx)
				if err != nil {
					if ctx.Err() == nil {
						sub.fail(err)
					}
					return
				}
				sub.push(snapshot)
			}
		}
	}()

	return sub, nil
}

// SetOnlineStatus writes presence/{userID} and manages the disconnect-safe
// cleanup: going online registers the offline payload the reaper will commit
// and starts refreshing the liveness key; going offline is an explicit
// sign-off that clears both.
func (r *RedisStore) SetOnlineStatus(ctx context.Context, userID string, online bool) error {
	now := time.Now().UnixMilli()
	if err := r.Set(ctx, PresencePath(userID), Presence{IsOnline: online, LastActiveAt: now}); err != nil {
		return err
	}

	if online {
		offline, err := json.Marshal(Presence{IsOnline: false, LastActiveAt: now})
		if err != nil {
			return errors.Wrap(errors.CodeRemote, err, "marshal disconnect write")
		}
		if err := r.client.Set(ctx, r.client.Key(disconnectPrefix, userID), offline, 0); err != nil {
			return errors.Wrap(errors.CodeRemote, err, "register disconnect write")
		}
		r.startLiveness(userID)
		return nil
	}

	r.stopLiveness(userID)
	if err := r.client.Del(ctx,
		r.client.Key(disconnectPrefix, userID),
		r.client.Key(livenessPrefix, userID),
	); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "clear disconnect registration")
	}
	return nil
}

// startLiveness keeps the user's liveness key alive for as long as this
// process runs. When the process dies the key expires and the reaper fires
// the registered disconnect write; the sync core itself never drives this.
func (r *RedisStore) startLiveness(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.refreshers[userID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.refreshers[userID] = cancel

	key := r.client.Key(livenessPrefix, userID)
	ttl := r.livenessTTL
	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		_ = r.client.Set(ctx, key, "1", ttl)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.client.Set(ctx, key, "1", ttl); err != nil && r.logg != nil {
					r.logg.Warn(ctx, "liveness refresh failed: "+err.Error())
				}
			}
		}
	}()
}

func (r *RedisStore) stopLiveness(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.refreshers[userID]; ok {
		cancel()
		delete(r.refreshers, userID)
	}
}

// Close stops every liveness refresher.
func (r *RedisStore) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, cancel := range r.refreshers {
		cancel()
		delete(r.refreshers, userID)
	}
}

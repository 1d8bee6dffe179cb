package remote

import (
	"context"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	redispkg "github.com/shopperapp/shopper-backend/pkg/redis"
)

// PresenceReaper watches for expired liveness keys and commits the
// disconnect write the owning client registered when it went online. This
// is what makes presence survive a hard disconnect: the client never gets a
// chance to sign off, its liveness key lapses, and the reaper marks it
// offline on its behalf.
//
// Requires notify-keyspace-events to include expired events ("Ex").
type PresenceReaper struct {
	store  *RedisStore
	client *redispkg.Client
	logg   *logger.Logger
}

func NewPresenceReaper(store *RedisStore, client *redispkg.Client, logg *logger.Logger) *PresenceReaper {
	return &PresenceReaper{store: store, client: client, logg: logg}
}

// Run blocks listening for expiry notifications until ctx is cancelled.
func (p *PresenceReaper) Run(ctx context.Context) error {
	pubsub := p.client.Raw().PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "subscribe to expiry events")
	}
	if p.logg != nil {
		p.logg.Info(ctx, "presence reaper started")
	}

	livePrefix := p.client.Key(livenessPrefix) + ":"
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return errors.New(errors.CodeRemote, "expiry event channel closed")
			}
			if !strings.HasPrefix(msg.Payload, livePrefix) {
				continue
			}
			userID := strings.TrimPrefix(msg.Payload, livePrefix)
			if err := p.reap(ctx, userID); err != nil && p.logg != nil {
				p.logg.Warn(p.logg.WithUserID(ctx, userID), "presence reap failed: "+err.Error())
			}
		}
	}
}

// reap commits the registered disconnect write for userID, if one is still
// pending, and clears the registration.
func (p *PresenceReaper) reap(ctx context.Context, userID string) error {
	regKey := p.client.Key(disconnectPrefix, userID)
	payload, err := p.client.Get(ctx, regKey)
	if err == goredis.Nil {
		// Signed off cleanly before the key expired.
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.CodeRemote, err, "read disconnect registration")
	}

	dataKey := p.store.dataKey(PresencePath(userID))
	if err := p.client.Set(ctx, dataKey, payload, 0); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "commit disconnect write")
	}
	if err := p.store.publish(ctx, PresencePath(userID)); err != nil {
		return err
	}
	if err := p.client.Del(ctx, regKey); err != nil {
		return errors.Wrap(errors.CodeRemote, err, "clear disconnect registration")
	}
	if p.logg != nil {
		p.logg.Info(p.logg.WithUserID(ctx, userID), "disconnect detected, marked offline")
	}
	return nil
}

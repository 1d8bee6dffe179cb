package users

import (
	"encoding/json"
	"sync"

	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
)

// ProfileStream is a live view of one remote profile. A nil value on the
// channel means no profile document exists at the path.
type ProfileStream struct {
	ch     chan *models.User
	cancel func()

	mu  sync.Mutex
	err error
}

func newProfileStream(sub *remote.Subscription[[]byte]) *ProfileStream {
	stream := &ProfileStream{
		ch:     make(chan *models.User, 1),
		cancel: sub.Cancel,
	}
	go func() {
		defer close(stream.ch)
		for raw := range sub.C() {
			if raw == nil {
				stream.send(nil)
				continue
			}
			var user models.User
			if err := json.Unmarshal(raw, &user); err != nil {
				stream.fail(errors.Wrap(errors.CodeRemote, err, "decode user"))
				sub.Cancel()
				return
			}
			stream.send(&user)
		}
		if err := sub.Err(); err != nil {
			stream.fail(err)
		}
	}()
	return stream
}

func (p *ProfileStream) C() <-chan *models.User {
	return p.ch
}

func (p *ProfileStream) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *ProfileStream) Cancel() {
	p.cancel()
}

func (p *ProfileStream) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

func (p *ProfileStream) send(user *models.User) {
	for {
		select {
		case p.ch <- user:
			return
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

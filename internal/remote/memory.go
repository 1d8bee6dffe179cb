package remote

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopperapp/shopper-backend/pkg/errors"
)

// MemoryStore is an in-process Store implementation. It backs the dev mode
// of the sync daemon and the repository tests: it honors the full contract,
// including push notification of subscribers and disconnect-triggered
// presence writes, and can inject backend failures.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte

	valueSubs map[string]map[*Subscription[[]byte]]struct{}
	treeSubs  map[string]map[*Subscription[map[string][]byte]]struct{}

	// onDisconnect holds writes the backend commits when the client
	// vanishes without sign-off, keyed by path.
	onDisconnect map[string][]byte

	failure error
	now     func() int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:         make(map[string][]byte),
		valueSubs:    make(map[string]map[*Subscription[[]byte]]struct{}),
		treeSubs:     make(map[string]map[*Subscription[map[string][]byte]]struct{}),
		onDisconnect: make(map[string][]byte),
		now:          func() int64 { return time.Now().UnixMilli() },
	}
}

// SetFailure makes every subsequent operation fail with a remote-coded error
// wrapping err. Pass nil to heal the backend.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// SetClock overrides the server clock, letting tests pin lastActiveAt.
func (m *MemoryStore) SetClock(now func() int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) checkFailure(op string) error {
	if m.failure != nil {
		return errors.Wrap(errors.CodeRemote, m.failure, op)
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("get " + path); err != nil {
		return nil, err
	}
	raw, ok := m.data[path]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("list " + prefix); err != nil {
		return nil, err
	}
	return m.listLocked(prefix), nil
}

func (m *MemoryStore) listLocked(prefix string) map[string][]byte {
	out := make(map[string][]byte)
	for path, raw := range m.data {
		if !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		child := strings.TrimPrefix(path, prefix+"/")
		if strings.Contains(child, "/") {
			continue
		}
		val := make([]byte, len(raw))
		copy(val, raw)
		out[child] = val
	}
	return out
}

func (m *MemoryStore) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.CodeRemote, err, "marshal "+path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("set " + path); err != nil {
		return err
	}
	m.data[path] = raw
	m.notifyLocked(path)
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("remove " + path); err != nil {
		return err
	}
	delete(m.data, path)
	m.notifyLocked(path)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, path string) (*Subscription[[]byte], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("subscribe " + path); err != nil {
		return nil, err
	}

	var sub *Subscription[[]byte]
	sub = newSubscription[[]byte](1, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.dropValueSubLocked(path, sub)
	})
	set, ok := m.valueSubs[path]
	if !ok {
		set = make(map[*Subscription[[]byte]]struct{})
		m.valueSubs[path] = set
	}
	set[sub] = struct{}{}

	if raw, ok := m.data[path]; ok {
		initial := make([]byte, len(raw))
		copy(initial, raw)
		sub.push(initial)
	} else {
		sub.push(nil)
	}
	return sub, nil
}

func (m *MemoryStore) SubscribeTree(ctx context.Context, prefix string) (*Subscription[map[string][]byte], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("subscribe " + prefix); err != nil {
		return nil, err
	}

	var sub *Subscription[map[string][]byte]
	sub = newSubscription[map[string][]byte](1, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.dropTreeSubLocked(prefix, sub)
	})
	set, ok := m.treeSubs[prefix]
	if !ok {
		set = make(map[*Subscription[map[string][]byte]]struct{})
		m.treeSubs[prefix] = set
	}
	set[sub] = struct{}{}

	sub.push(m.listLocked(prefix))
	return sub, nil
}

// SetOnlineStatus writes presence and, when going online, registers the
// disconnect-triggered offline write. Going offline explicitly clears the
// registration (clean sign-off).
func (m *MemoryStore) SetOnlineStatus(ctx context.Context, userID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailure("presence " + userID); err != nil {
		return err
	}

	path := PresencePath(userID)
	raw, err := json.Marshal(Presence{IsOnline: online, LastActiveAt: m.now()})
	if err != nil {
		return errors.Wrap(errors.CodeRemote, err, "marshal presence")
	}
	m.data[path] = raw

	if online {
		offline, err := json.Marshal(Presence{IsOnline: false, LastActiveAt: m.now()})
		if err != nil {
			return errors.Wrap(errors.CodeRemote, err, "marshal disconnect write")
		}
		m.onDisconnect[path] = offline
	} else {
		delete(m.onDisconnect, path)
	}

	m.notifyLocked(path)
	return nil
}

// SimulateDisconnect commits every registered disconnect write, as the
// backend would after losing the client's connection without sign-off.
func (m *MemoryStore) SimulateDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, raw := range m.onDisconnect {
		m.data[path] = raw
		delete(m.onDisconnect, path)
		m.notifyLocked(path)
	}
}

// FailSubscriptions terminates every live subscription with a remote-coded
// error, simulating an unrecoverable backend failure.
func (m *MemoryStore) FailSubscriptions(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wrapped := errors.Wrap(errors.CodeRemote, cause, "subscription terminated")
	for path, set := range m.valueSubs {
		for sub := range set {
			sub.fail(wrapped)
			sub.closeChan()
		}
		delete(m.valueSubs, path)
	}
	for prefix, set := range m.treeSubs {
		for sub := range set {
			sub.fail(wrapped)
			sub.closeChan()
		}
		delete(m.treeSubs, prefix)
	}
}

func (m *MemoryStore) notifyLocked(path string) {
	if set, ok := m.valueSubs[path]; ok {
		raw, exists := m.data[path]
		for sub := range set {
			if !exists {
				sub.push(nil)
				continue
			}
			val := make([]byte, len(raw))
			copy(val, raw)
			sub.push(val)
		}
	}
	for prefix, set := range m.treeSubs {
		if !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		snapshot := m.listLocked(prefix)
		for sub := range set {
			sub.push(snapshot)
		}
	}
}

func (m *MemoryStore) dropValueSubLocked(path string, sub *Subscription[[]byte]) {
	if set, ok := m.valueSubs[path]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			sub.closeChan()
			if len(set) == 0 {
				delete(m.valueSubs, path)
			}
		}
	}
}

func (m *MemoryStore) dropTreeSubLocked(prefix string, sub *Subscription[map[string][]byte]) {
	if set, ok := m.treeSubs[prefix]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			sub.closeChan()
			if len(set) == 0 {
				delete(m.treeSubs, prefix)
			}
		}
	}
}

// SubscriberCount is used by tests to verify listener release.
func (m *MemoryStore) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, set := range m.valueSubs {
		count += len(set)
	}
	for _, set := range m.treeSubs {
		count += len(set)
	}
	return count
}

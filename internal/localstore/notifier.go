package localstore

import "sync"

// Notifier fans out table-change signals to live query watchers. Signals are
// coalesced: a watcher that has not drained its wake channel sees one pending
// signal, not a backlog.
type Notifier struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	wake chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{watchers: make(map[string]map[*watcher]struct{})}
}

// Notify wakes every watcher registered for the table.
func (n *Notifier) Notify(table string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for w := range n.watchers[table] {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (n *Notifier) register(table string) *watcher {
	w := &watcher{wake: make(chan struct{}, 1)}
	n.mu.Lock()
	defer n.mu.Unlock()
	set, ok := n.watchers[table]
	if !ok {
		set = make(map[*watcher]struct{})
		n.watchers[table] = set
	}
	set[w] = struct{}{}
	return w
}

func (n *Notifier) unregister(table string, w *watcher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if set, ok := n.watchers[table]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(n.watchers, table)
		}
	}
}

// watcherCount is used by tests to verify listeners are released on cancel.
func (n *Notifier) watcherCount(table string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.watchers[table])
}

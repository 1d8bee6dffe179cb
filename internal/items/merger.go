package items

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm/clause"
)

// MergedStream is the live merged shopping list for one group. The channel
// carries the current remote list, newest first; the local store trails the
// remote side as an offline mirror. A closed channel with non-nil Err means
// the stream died and the caller must resubscribe.
type MergedStream struct {
	ch     chan []models.ShoppingItem
	cancel context.CancelFunc
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (m *MergedStream) C() <-chan []models.ShoppingItem {
	return m.ch
}

func (m *MergedStream) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MergedStream) Cancel() {
	m.once.Do(m.cancel)
}

func (m *MergedStream) fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
}

// send delivers the snapshot latest-wins: a slow consumer sees the most
// recent list, not every intermediate one.
func (m *MergedStream) send(ctx context.Context, rows []models.ShoppingItem) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case m.ch <- rows:
			return true
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// ItemsForGroup merges the local live query and the remote subscription for
// one group's list. The remote list is treated as current truth: every
// remote emission is written back into the local store and is what flows
// downstream. The write-back skips any row whose local revision is newer
// than the incoming snapshot, so an in-flight local edit is not clobbered
// by a stale remote emission.
func (s *Service) ItemsForGroup(ctx context.Context, groupID string) (*MergedStream, error) {
	if groupID == "" {
		return nil, errors.New(errors.CodeValidation, "group id is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	remoteSub, err := s.remote.SubscribeTree(ctx, remote.ItemsPath(groupID))
	if err != nil {
		cancel()
		return nil, err
	}
	localSub := s.repo.WatchGroup(ctx, groupID)

	stream := &MergedStream{
		ch:     make(chan []models.ShoppingItem, 1),
		cancel: cancel,
	}

	go func() {
		defer close(stream.ch)
		defer localSub.Cancel()
		defer remoteSub.Cancel()

		// localRevisions carries the newest revision seen per row, fed by
		// the local live query; the merge consults it before overwriting.
		// The initial local snapshot must land before any remote absorb,
		// otherwise a stale remote emission could clobber a newer local row.
		localRevisions := make(map[string]int64)
		select {
		case <-ctx.Done():
			return
		case rows, ok := <-localSub.C():
			if !ok {
				if err := localSub.Err(); err != nil && ctx.Err() == nil {
					stream.fail(err)
				}
				return
			}
			for _, row := range rows {
				localRevisions[row.ID] = row.Revision
			}
		}

		var current []models.ShoppingItem
		seenRemote := false

		for {
			select {
			case <-ctx.Done():
				return

			case rows, ok := <-localSub.C():
				if !ok {
					if err := localSub.Err(); err != nil && ctx.Err() == nil {
						stream.fail(err)
					}
					return
				}
				for id := range localRevisions {
					delete(localRevisions, id)
				}
				for _, row := range rows {
					localRevisions[row.ID] = row.Revision
				}
				// Local changes do not alter the downstream list; remote
				// state stays the emitted truth.
				if seenRemote {
					if !stream.send(ctx, current) {
						return
					}
				}

			case children, ok := <-remoteSub.C():
				if !ok {
					if err := remoteSub.Err(); err != nil && ctx.Err() == nil {
						stream.fail(err)
					}
					return
				}
				list, err := decodeItems(children)
				if err != nil {
					stream.fail(err)
					return
				}
				if err := s.absorb(ctx, list, localRevisions); err != nil {
					stream.fail(err)
					return
				}
				sortItems(list)
				current = list
				seenRemote = true
				if !stream.send(ctx, current) {
					return
				}
			}
		}
	}()

	return stream, nil
}

// absorb mirrors the remote list into the local store, skipping rows whose
// local revision is newer than the incoming one.
func (s *Service) absorb(ctx context.Context, list []models.ShoppingItem, localRevisions map[string]int64) error {
	applied := 0
	skipped := 0
	for i := range list {
		item := list[i]
		if rev, ok := localRevisions[item.ID]; ok && rev > item.Revision {
			skipped++
			continue
		}
		err := s.local.DB().WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&item).Error
		if err != nil {
			return errors.Wrap(errors.CodeLocalStore, err, "absorb remote item")
		}
		applied++
	}
	if applied > 0 {
		s.local.Notifier().Notify(table)
	}
	s.metrics.AddMergeApplied(applied)
	s.metrics.AddMergeSkipped(skipped)
	return nil
}

func decodeItems(children map[string][]byte) ([]models.ShoppingItem, error) {
	list := make([]models.ShoppingItem, 0, len(children))
	for _, raw := range children {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, *item)
	}
	return list, nil
}

func decodeItem(raw []byte) (*models.ShoppingItem, error) {
	var item models.ShoppingItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, errors.Wrap(errors.CodeRemote, err, "decode shopping item")
	}
	return &item, nil
}

func sortItems(list []models.ShoppingItem) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].AddedAt != list[j].AddedAt {
			return list[i].AddedAt > list[j].AddedAt
		}
		return list[i].ID < list[j].ID
	})
}

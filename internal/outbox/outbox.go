package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/config"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/enums"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Queue records remote writes that failed after their local counterpart
// succeeded. Nothing replays them automatically: a failed write is reported
// to the caller, and Flush is the single explicit reconciliation path.
type Queue struct {
	db      *gorm.DB
	remote  remote.Store
	cfg     config.SyncConfig
	metrics *metrics.SyncMetrics
	logg    *logger.Logger
}

func NewQueue(db *gorm.DB, store remote.Store, cfg config.SyncConfig, m *metrics.SyncMetrics, logg *logger.Logger) *Queue {
	return &Queue{db: db, remote: store, cfg: cfg, metrics: m, logg: logg}
}

// Enqueue records a failed remote set. The payload is the exact document the
// remote write would have carried.
func (q *Queue) Enqueue(ctx context.Context, path string, op enums.PendingOp, payload any) error {
	if !op.IsValid() {
		return errors.New(errors.CodeValidation, "invalid pending op")
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(errors.CodeLocalStore, err, "encode pending payload")
		}
		raw = encoded
	}

	row := models.PendingWrite{
		ID:        uuid.NewString(),
		Path:      path,
		Op:        op,
		Payload:   raw,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(errors.CodeLocalStore, err, "enqueue pending write")
	}
	q.metrics.IncPendingQueued()
	if q.logg != nil {
		q.logg.Debug(q.logg.WithField(ctx, "path", path), "remote write deferred to pending queue")
	}
	return nil
}

// Pending returns queued writes oldest-first.
func (q *Queue) Pending(ctx context.Context) ([]models.PendingWrite, error) {
	var rows []models.PendingWrite
	err := q.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "load pending writes")
	}
	return rows, nil
}

// Count returns the number of queued writes.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&models.PendingWrite{}).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(errors.CodeLocalStore, err, "count pending writes")
	}
	return count, nil
}

// Flush replays queued writes oldest-first, one batch per call. Replayed
// rows are deleted; rows that fail again stay queued with their attempt
// count and last error updated, and the failures are aggregated into the
// returned error. Rows older than the configured max age are discarded
// without replay.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	if q.cfg.PendingMaxAge > 0 {
		cutoff := time.Now().Add(-q.cfg.PendingMaxAge).UnixMilli()
		res := q.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.PendingWrite{})
		if res.Error != nil {
			return 0, errors.Wrap(errors.CodeLocalStore, res.Error, "expire pending writes")
		}
		if res.RowsAffected > 0 && q.logg != nil {
			q.logg.Warn(q.logg.WithField(ctx, "count", res.RowsAffected), "discarded expired pending writes")
		}
	}

	batch := q.cfg.FlushBatchSize
	if batch <= 0 {
		batch = 50
	}
	var rows []models.PendingWrite
	err := q.db.WithContext(ctx).Order("created_at asc").Limit(batch).Find(&rows).Error
	if err != nil {
		return 0, errors.Wrap(errors.CodeLocalStore, err, "load pending writes")
	}

	flushed := 0
	var failures error
	for _, row := range rows {
		if err := q.replay(ctx, row); err != nil {
			failures = multierr.Append(failures, err)
			q.recordFailure(ctx, row, err)
			continue
		}
		if err := q.db.WithContext(ctx).Delete(&models.PendingWrite{}, "id = ?", row.ID).Error; err != nil {
			failures = multierr.Append(failures, errors.Wrap(errors.CodeLocalStore, err, "dequeue pending write"))
			continue
		}
		flushed++
	}
	if q.logg != nil && flushed > 0 {
		q.logg.Info(q.logg.WithField(ctx, "count", flushed), "flushed pending writes")
	}
	return flushed, failures
}

func (q *Queue) replay(ctx context.Context, row models.PendingWrite) error {
	switch row.Op {
	case enums.PendingOpSet:
		return q.remote.Set(ctx, row.Path, row.Payload)
	case enums.PendingOpRemove:
		return q.remote.Remove(ctx, row.Path)
	default:
		return errors.New(errors.CodeValidation, "unknown pending op "+string(row.Op))
	}
}

func (q *Queue) recordFailure(ctx context.Context, row models.PendingWrite, cause error) {
	msg := cause.Error()
	err := q.db.WithContext(ctx).Model(&models.PendingWrite{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
	if err != nil && q.logg != nil {
		q.logg.Warn(q.logg.WithField(ctx, "path", row.Path), "failed recording replay failure: "+err.Error())
	}
}

package dualwrite

import (
	"context"
	"time"

	"github.com/shopperapp/shopper-backend/internal/outbox"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/enums"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
)

// Writer runs the ordered local-then-remote write every repository shares.
// A local failure aborts the call before the remote side is touched. A
// remote failure after a successful local write still fails the call, but
// the local copy stays updated and the remote document is queued for an
// explicit flush later. No rollback, no background retry.
type Writer struct {
	remote  remote.Store
	queue   *outbox.Queue
	metrics *metrics.SyncMetrics
	logg    *logger.Logger
}

func NewWriter(store remote.Store, queue *outbox.Queue, m *metrics.SyncMetrics, logg *logger.Logger) *Writer {
	return &Writer{remote: store, queue: queue, metrics: m, logg: logg}
}

// Set applies the local write, then overwrites the remote document at path
// with payload.
func (w *Writer) Set(ctx context.Context, entity, op, path string, payload any, local func(context.Context) error) error {
	return w.run(ctx, entity, op, local, func(ctx context.Context) error {
		return w.remote.Set(ctx, path, payload)
	}, path, enums.PendingOpSet, payload)
}

// Remove applies the local write, then removes the remote document at path.
func (w *Writer) Remove(ctx context.Context, entity, op, path string, local func(context.Context) error) error {
	return w.run(ctx, entity, op, local, func(ctx context.Context) error {
		return w.remote.Remove(ctx, path)
	}, path, enums.PendingOpRemove, nil)
}

func (w *Writer) run(ctx context.Context, entity, op string, local, remoteWrite func(context.Context) error, path string, pendingOp enums.PendingOp, payload any) error {
	start := time.Now()
	defer func() { w.metrics.ObserveWrite(entity, op, time.Since(start)) }()

	if err := local(ctx); err != nil {
		w.metrics.IncWriteFailure(entity, op, "local")
		return err
	}
	if err := remoteWrite(ctx); err != nil {
		w.metrics.IncWriteFailure(entity, op, "remote")
		if w.queue != nil {
			if qerr := w.queue.Enqueue(ctx, path, pendingOp, payload); qerr != nil && w.logg != nil {
				w.logg.Warn(w.logg.WithField(ctx, "path", path), "failed queueing deferred write: "+qerr.Error())
			}
		}
		return err
	}
	w.metrics.IncWriteSuccess(entity, op)
	return nil
}

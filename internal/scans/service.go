package scans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"github.com/shopperapp/shopper-backend/pkg/validate"
	"github.com/shopspring/decimal"
)

const entity = "scan_history"

// Service owns scan-history sync. Records are append-mostly: only the
// opened flag mutates after insert.
type Service struct {
	repo   *Repo
	remote remote.Store
	writer *dualwrite.Writer
	logg   *logger.Logger
	now    func() int64
}

func NewService(repo *Repo, store remote.Store, writer *dualwrite.Writer, logg *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		remote: store,
		writer: writer,
		logg:   logg,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// RecordInput carries one scan event. ExpiryDate, when present, must
// already be normalized to YYYY-MM-DD (the scanner package does this).
type RecordInput struct {
	Barcode    *string          `json:"barcode,omitempty"`
	ItemName   string           `json:"itemName" validate:"required"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	ExpiryDate *string          `json:"expiryDate,omitempty"`
	CategoryID *string          `json:"categoryId,omitempty"`
	Quantity   int              `json:"quantity" validate:"min=1"`
	StoreName  *string          `json:"storeName,omitempty"`
	Location   *string          `json:"location,omitempty"`
}

// Record appends a scan for the session user.
func (s *Service) Record(ctx context.Context, sess session.Session, in RecordInput) (*models.ScanHistory, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	scan := &models.ScanHistory{
		ID:         uuid.NewString(),
		UserID:     sess.UserID,
		Barcode:    in.Barcode,
		ItemName:   in.ItemName,
		Price:      in.Price,
		ScannedAt:  s.now(),
		ExpiryDate: in.ExpiryDate,
		CategoryID: in.CategoryID,
		Quantity:   in.Quantity,
		StoreName:  in.StoreName,
		Location:   in.Location,
	}
	err := s.writer.Set(ctx, entity, "record", remote.ScanHistoryPath(scan.ID), scan,
		func(ctx context.Context) error { return s.repo.upsert(ctx, scan) })
	return scan, err
}

// MarkOpened flags a scanned item as opened. Read-modify-write of the full
// record so the remote overwrite carries every field.
func (s *Service) MarkOpened(ctx context.Context, sess session.Session, scanID string) (*models.ScanHistory, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	scan, err := s.repo.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.UserID != sess.UserID {
		return nil, errors.New(errors.CodeValidation, "scan belongs to another user")
	}
	if scan.IsOpened {
		return scan, nil
	}

	openedAt := s.now()
	scan.IsOpened = true
	scan.OpenedAt = &openedAt

	err = s.writer.Set(ctx, entity, "open", remote.ScanHistoryPath(scan.ID), scan,
		func(ctx context.Context) error { return s.repo.upsert(ctx, scan) })
	return scan, err
}

// Delete removes a scan from both sides.
func (s *Service) Delete(ctx context.Context, sess session.Session, scanID string) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if scanID == "" {
		return errors.New(errors.CodeValidation, "scan id is required")
	}
	return s.writer.Remove(ctx, entity, "delete", remote.ScanHistoryPath(scanID),
		func(ctx context.Context) error { return s.repo.delete(ctx, scanID) })
}

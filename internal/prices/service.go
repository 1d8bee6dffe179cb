package prices

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

const entity = "price_history"

// Service owns price-history sync. Records are append-only in practice; an
// update path exists for corrections but nothing in the sync core calls it
// on a schedule.
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

// RecordInput carries one observed price.
type RecordInput struct {
	Barcode   string           `json:"barcode" validate:"required"`
	Price     decimal.Decimal  `json:"price" validate:"required"`
	StoreName *string          `json:"storeName,omitempty"`
	IsOnSale  bool             `json:"isOnSale"`
	SalePrice *decimal.Decimal `json:"salePrice,omitempty"`
	Location  *string          `json:"location,omitempty"`
}

// Record appends a price observation for the session user.
func (s *Service) Record(ctx context.Context, sess session.Session, in RecordInput) (*models.PriceHistory, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, errors.New(errors.CodeValidation, "price cannot be negative")
	}

	record := &models.PriceHistory{
		ID:         uuid.NewString(),
		Barcode:    in.Barcode,
		Price:      in.Price,
		StoreName:  in.StoreName,
		UserID:     sess.UserID,
		RecordedAt: s.now(),
		IsOnSale:   in.IsOnSale,
		SalePrice:  in.SalePrice,
		Location:   in.Location,
	}
	err := s.writer.Set(ctx, entity, "record", remote.PriceHistoryPath(record.ID), record,
		func(ctx context.Context) error { return s.repo.upsert(ctx, record) })
	return record, err
}

// Update replaces an existing record, for corrections.
func (s *Service) Update(ctx context.Context, sess session.Session, record *models.PriceHistory) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if record == nil || record.ID == "" {
		return errors.New(errors.CodeValidation, "price record id is required")
	}
	if record.UserID != sess.UserID {
		return errors.New(errors.CodeValidation, "price record belongs to another user")
	}
	return s.writer.Set(ctx, entity, "update", remote.PriceHistoryPath(record.ID), record,
		func(ctx context.Context) error { return s.repo.upsert(ctx, record) })
}

// Delete removes a record from both sides.
func (s *Service) Delete(ctx context.Context, sess session.Session, id string) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if id == "" {
		return errors.New(errors.CodeValidation, "price record id is required")
	}
	return s.writer.Remove(ctx, entity, "delete", remote.PriceHistoryPath(id),
		func(ctx context.Context) error { return s.repo.delete(ctx, id) })
}

// AverageSince is the local-only mean since a threshold; see Repo.
func (s *Service) AverageSince(ctx context.Context, barcode string, since int64) (*decimal.Decimal, error) {
	if barcode == "" {
		return nil, errors.New(errors.CodeValidation, "barcode is required")
	}
	return s.repo.AverageSince(ctx, barcode, since)
}

package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"github.com/shopperapp/shopper-backend/pkg/validate"
	"github.com/shopspring/decimal"
)

const entity = "item_metadata"

// Service owns product-knowledge sync. Records are keyed by barcode and
// shared globally; they accumulate and are never deleted.
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

// UpsertInput carries the caller-supplied metadata fields.
type UpsertInput struct {
	Barcode           string           `json:"barcode" validate:"required"`
	ItemName          string           `json:"itemName" validate:"required"`
	TypicalPrice      *decimal.Decimal `json:"typicalPrice,omitempty"`
	CategoryID        *string          `json:"categoryId,omitempty"`
	TypicalExpiryDays *int             `json:"typicalExpiryDays,omitempty"`
	Brand             *string          `json:"brand,omitempty"`
	Manufacturer      *string          `json:"manufacturer,omitempty"`
	Weight            *string          `json:"weight,omitempty"`
	ImageURL          *string          `json:"imageUrl,omitempty"`
}

// Upsert creates or replaces the metadata record for a barcode. An existing
// record keeps its scan count.
func (s *Service) Upsert(ctx context.Context, sess session.Session, in UpsertInput) (*models.ItemMetadata, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	meta := &models.ItemMetadata{
		Barcode:           in.Barcode,
		ItemName:          in.ItemName,
		TypicalPrice:      in.TypicalPrice,
		CategoryID:        in.CategoryID,
		TypicalExpiryDays: in.TypicalExpiryDays,
		Brand:             in.Brand,
		Manufacturer:      in.Manufacturer,
		Weight:            in.Weight,
		ImageURL:          in.ImageURL,
		LastUpdated:       s.now(),
		ScanCount:         1,
	}
	if existing, err := s.repo.Get(ctx, in.Barcode); err == nil {
		meta.ScanCount = existing.ScanCount
	}

	err := s.writer.Set(ctx, entity, "upsert", remote.MetadataPath(meta.Barcode), meta,
		func(ctx context.Context) error { return s.repo.upsert(ctx, meta) })
	return meta, err
}

// Get reads the local record, falling back to the remote copy (and
// mirroring it) when the barcode has not synced yet.
func (s *Service) Get(ctx context.Context, barcode string) (*models.ItemMetadata, error) {
	if barcode == "" {
		return nil, errors.New(errors.CodeValidation, "barcode is required")
	}
	meta, err := s.repo.Get(ctx, barcode)
	if err == nil {
		return meta, nil
	}
	if errors.CodeOf(err) != errors.CodeNotFound {
		return nil, err
	}

	raw, err := s.remote.Get(ctx, remote.MetadataPath(barcode))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New(errors.CodeNotFound, "item metadata not found")
	}
	meta, err = decodeMetadata(raw)
	if err != nil {
		return nil, err
	}
	if err := s.repo.upsert(ctx, meta); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithEntity(ctx, table, barcode), "failed mirroring remote metadata: "+err.Error())
	}
	return meta, nil
}

// IncrementScanCount bumps the counter on both sides, local first. The local
// update is a single atomic statement and never waits on the remote side; the
// remote document is rebuilt from the local record and written through the
// dual-write path, so a remote outage leaves the local counter advanced and
// the overwrite queued. Two clients racing can still under-count the remote
// side; analytics tolerate that, and the local counter is the one local
// queries rank by.
func (s *Service) IncrementScanCount(ctx context.Context, sess session.Session, barcode string) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if barcode == "" {
		return errors.New(errors.CodeValidation, "barcode is required")
	}

	current, err := s.repo.Get(ctx, barcode)
	if err != nil {
		return err
	}

	now := s.now()
	local := func(ctx context.Context) error {
		affected, err := s.repo.incrementScanCount(ctx, barcode, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.New(errors.CodeNotFound, "item metadata not found")
		}
		return nil
	}

	updated := *current
	updated.ScanCount++
	updated.LastUpdated = now
	return s.writer.Set(ctx, entity, "scan", remote.MetadataPath(barcode), &updated, local)
}

func decodeMetadata(raw []byte) (*models.ItemMetadata, error) {
	var meta models.ItemMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(errors.CodeRemote, err, "decode item metadata")
	}
	return &meta, nil
}

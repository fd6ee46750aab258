package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/clinchain/backend/repository/models"
	"github.com/clinchain/backend/service"
)

// LotStore is the GORM-backed lot persistence.
type LotStore struct {
	db *gorm.DB
}

func NewLotStore(db *gorm.DB) *LotStore {
	return &LotStore{db: db}
}

// FindByID loads a lot with its history, newest entry first.
func (s *LotStore) FindByID(ctx context.Context, id string) (*models.Lot, error) {
	var lot models.Lot
	err := s.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp DESC")
		}).
		Where("lot_id = ?", id).
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lot %s", service.ErrNotFound, id)
		}
		return nil, wrapDBError("loading lot", err)
	}
	return &lot, nil
}

// Save upserts the lot row together with any new history entries. Lot writes
// happen inside one database transaction so a partial write never surfaces.
func (s *LotStore) Save(ctx context.Context, lot *models.Lot) error {
	dbTx := s.db.WithContext(ctx).Begin()
	if dbTx.Error != nil {
		return wrapDBError("starting transaction", dbTx.Error)
	}

	err := dbTx.Session(&gorm.Session{FullSaveAssociations: true}).Save(lot).Error
	if err != nil {
		dbTx.Rollback()
		return wrapDBError("saving lot", err)
	}

	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError("committing lot", err)
	}
	return nil
}

// List returns lots newest first, filtered and paginated. The int64 return is
// the total match count before pagination.
func (s *LotStore) List(ctx context.Context, filter service.LotFilter, page *service.PageRequest) ([]models.Lot, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Lot{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.MedName != "" {
		query = query.Where("LOWER(med_name) LIKE ?", "%"+strings.ToLower(filter.MedName)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError("counting lots", err)
	}

	query = query.Order("created_at DESC")
	if page != nil && page.Size > 0 {
		query = query.Offset(page.Page * page.Size).Limit(page.Size)
	}

	var lots []models.Lot
	if err := query.Find(&lots).Error; err != nil {
		return nil, 0, wrapDBError("listing lots", err)
	}
	return lots, total, nil
}

func (s *LotStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Lot{}).Count(&n).Error; err != nil {
		return 0, wrapDBError("counting lots", err)
	}
	return n, nil
}

func (s *LotStore) CountByStatus(ctx context.Context, status models.LotStatus) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Lot{}).
		Where("status = ?", status).
		Count(&n).Error
	if err != nil {
		return 0, wrapDBError("counting lots by status", err)
	}
	return n, nil
}

func (s *LotStore) SumQuantity(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).Model(&models.Lot{}).
		Select("COALESCE(SUM(qty), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, wrapDBError("summing quantities", err)
	}
	return sum, nil
}

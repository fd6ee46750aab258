package service

import (
	"context"

	"github.com/clinchain/backend/ledger"
	"github.com/clinchain/backend/repository/models"
)

// LotFilter narrows lot listings. Zero values mean "no constraint"; the
// medicine-name match is a case-insensitive substring.
type LotFilter struct {
	Status    *models.LotStatus
	CreatedBy string
	MedName   string
}

// PageRequest selects one page of a listing. Page is zero-based.
type PageRequest struct {
	Page int
	Size int
}

// LotStore is the relational persistence the lifecycle depends on. Absent
// records surface as ErrNotFound.
type LotStore interface {
	FindByID(ctx context.Context, id string) (*models.Lot, error)
	Save(ctx context.Context, lot *models.Lot) error
	List(ctx context.Context, filter LotFilter, page *PageRequest) ([]models.Lot, int64, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status models.LotStatus) (int64, error)
	SumQuantity(ctx context.Context) (int64, error)
}

// UserStore resolves authenticated usernames to actor accounts.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Ledger mirrors lifecycle transitions onto the supply chain contract and
// reads the contract's record back for reconciliation.
type Ledger interface {
	CreateLot(ctx context.Context, lotID, medName string, role models.Role) (*ledger.Receipt, error)
	ValidateLot(ctx context.Context, lotID string, role models.Role) (*ledger.Receipt, error)
	StockLot(ctx context.Context, lotID string, role models.Role) (*ledger.Receipt, error)
	AdministerLot(ctx context.Context, lotID string, role models.Role) (*ledger.Receipt, error)
	GetLot(ctx context.Context, lotID string) (*ledger.LotRecord, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"

	"github.com/clinchain/backend/ledger"
	"github.com/clinchain/backend/metrics"
	"github.com/clinchain/backend/repository/models"
)

// transitionRule describes one row of the lifecycle table: the status a lot
// must currently have, the role allowed to request the transition, the audit
// wording, and the matching ledger mirror call.
type transitionRule struct {
	from   models.LotStatus
	role   models.Role
	action string
	mirror func(ctx context.Context, l Ledger, lotID string, role models.Role) (*ledger.Receipt, error)
}

var transitions = map[models.LotStatus]transitionRule{
	models.StatusValidated: {
		from:   models.StatusCreated,
		role:   models.RoleHospital,
		action: "Lot validated by hospital",
		mirror: func(ctx context.Context, l Ledger, lotID string, role models.Role) (*ledger.Receipt, error) {
			return l.ValidateLot(ctx, lotID, role)
		},
	},
	models.StatusInPharmacy: {
		from:   models.StatusValidated,
		role:   models.RolePharmacist,
		action: "Lot placed in pharmacy stock",
		mirror: func(ctx context.Context, l Ledger, lotID string, role models.Role) (*ledger.Receipt, error) {
			return l.StockLot(ctx, lotID, role)
		},
	},
	models.StatusAdministered: {
		from:   models.StatusInPharmacy,
		role:   models.RoleNurse,
		action: "Lot administered to patient",
		mirror: func(ctx context.Context, l Ledger, lotID string, role models.Role) (*ledger.Receipt, error) {
			return l.AdministerLot(ctx, lotID, role)
		},
	},
}

// LotService drives the lot lifecycle: it authorizes the acting role, checks
// transition legality, mutates the relational record, and mirrors the change
// onto the ledger. The ledger call comes before the relational save, so the
// relational store never advances past a status the ledger has not recorded;
// the converse lag is detected by LedgerState.
type LotService struct {
	lots    LotStore
	users   UserStore
	ledger  Ledger
	metrics *metrics.Metrics
	logger  cmtlog.Logger
	locks   keyedMutex
}

func NewLotService(lots LotStore, users UserStore, l Ledger, m *metrics.Metrics, logger cmtlog.Logger) *LotService {
	return &LotService{
		lots:    lots,
		users:   users,
		ledger:  l,
		metrics: m,
		logger:  logger,
	}
}

// CreateLot registers a new lot. Only wholesalers may create; the lot starts
// in StatusCreated with one history entry.
func (s *LotService) CreateLot(ctx context.Context, medName string, quantity int, createdBy string) (*models.Lot, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidQuantity)
	}
	actor, err := s.resolveActor(ctx, createdBy)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleWholesaler {
		return nil, fmt.Errorf("%w: role %s cannot create lots", ErrForbidden, actor.Role)
	}

	lot := &models.Lot{
		ID:        uuid.NewString(),
		MedName:   medName,
		Quantity:  quantity,
		Status:    models.StatusCreated,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	lot.AddHistory("Lot created", createdBy)

	unlock := s.locks.lock(lot.ID)
	defer unlock()

	start := time.Now()
	if _, err := s.ledger.CreateLot(ctx, lot.ID, medName, actor.Role); err != nil {
		s.metrics.ObserveTransition("create", "ledger_failed")
		return nil, err
	}
	s.metrics.ObserveConfirmLatency(time.Since(start))

	if err := s.saveAfterConfirm(ctx, lot, "create"); err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition("create", "ok")
	s.logger.Info("Created lot", "lot_id", lot.ID, "med_name", medName, "quantity", quantity, "created_by", createdBy)
	return lot, nil
}

// ValidateLot advances a lot from Created to Validated; hospital only.
func (s *LotService) ValidateLot(ctx context.Context, lotID, actor string) (*models.Lot, error) {
	return s.applyTransition(ctx, lotID, actor, models.StatusValidated, "validate")
}

// StockLot advances a lot from Validated to InPharmacy; pharmacist only.
func (s *LotService) StockLot(ctx context.Context, lotID, actor string) (*models.Lot, error) {
	return s.applyTransition(ctx, lotID, actor, models.StatusInPharmacy, "stock")
}

// AdministerLot advances a lot from InPharmacy to its terminal Administered
// status; nurse only.
func (s *LotService) AdministerLot(ctx context.Context, lotID, actor string) (*models.Lot, error) {
	return s.applyTransition(ctx, lotID, actor, models.StatusAdministered, "administer")
}

func (s *LotService) applyTransition(ctx context.Context, lotID, actorName string, requested models.LotStatus, op string) (*models.Lot, error) {
	rule, ok := transitions[requested]
	if !ok {
		return nil, fmt.Errorf("%w: no transition to %s", ErrIllegalTransition, requested)
	}

	unlock := s.locks.lock(lotID)
	defer unlock()

	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	actor, err := s.resolveActor(ctx, actorName)
	if err != nil {
		return nil, err
	}
	if actor.Role != rule.role {
		return nil, fmt.Errorf("%w: role %s cannot advance a lot to %s", ErrForbidden, actor.Role, requested)
	}
	if lot.Status != rule.from {
		return nil, fmt.Errorf("%w: lot %s is %s, must be %s", ErrIllegalTransition, lotID, lot.Status, rule.from)
	}

	lot.Status = requested
	if requested == models.StatusValidated {
		lot.Validated = true
	}
	lot.AddHistory(rule.action, actorName)

	start := time.Now()
	if _, err := rule.mirror(ctx, s.ledger, lotID, actor.Role); err != nil {
		s.metrics.ObserveTransition(op, "ledger_failed")
		return nil, err
	}
	s.metrics.ObserveConfirmLatency(time.Since(start))

	if err := s.saveAfterConfirm(ctx, lot, op); err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(op, "ok")
	s.logger.Info("Lot transition applied", "lot_id", lotID, "status", requested, "actor", actorName)
	return lot, nil
}

// Withdraw removes qty units from a lot's stock. It is not a status
// transition: no role check, no ledger mirror, one history entry.
func (s *LotService) Withdraw(ctx context.Context, lotID string, qty int, actor string) (*models.Lot, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: withdrawal must be positive", ErrInvalidQuantity)
	}

	unlock := s.locks.lock(lotID)
	defer unlock()

	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot.Quantity < qty {
		return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientQuantity, lot.Quantity, qty)
	}

	lot.Quantity -= qty
	lot.AddHistory(fmt.Sprintf("Withdrew %d units", qty), actor)

	if err := s.lots.Save(ctx, lot); err != nil {
		return nil, err
	}
	s.logger.Info("Withdrew from lot", "lot_id", lotID, "qty", qty, "remaining", lot.Quantity)
	return lot, nil
}

// AddHistory appends a caller-supplied audit entry; no transition, no mirror.
func (s *LotService) AddHistory(ctx context.Context, lotID, action, actor string) (*models.Lot, error) {
	unlock := s.locks.lock(lotID)
	defer unlock()

	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	lot.AddHistory(action, actor)

	if err := s.lots.Save(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// GetLot loads one lot with its history, newest entry first.
func (s *LotService) GetLot(ctx context.Context, lotID string) (*models.Lot, error) {
	return s.lots.FindByID(ctx, lotID)
}

// ListLots returns lots ordered newest first, with optional filtering and
// pagination. The second return value is the unpaginated total.
func (s *LotService) ListLots(ctx context.Context, filter LotFilter, page *PageRequest) ([]models.Lot, int64, error) {
	return s.lots.List(ctx, filter, page)
}

// Stats aggregates lot counts per status plus total remaining quantity.
type Stats struct {
	TotalLots        int64 `json:"totalLots"`
	CreatedLots      int64 `json:"createdLots"`
	ValidatedLots    int64 `json:"validatedLots"`
	InStockLots      int64 `json:"inStockLots"`
	AdministeredLots int64 `json:"administeredLots"`
	TotalQuantity    int64 `json:"totalQuantity"`
}

func (s *LotService) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.lots.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{TotalLots: total}

	counts := []struct {
		status models.LotStatus
		dest   *int64
	}{
		{models.StatusCreated, &stats.CreatedLots},
		{models.StatusValidated, &stats.ValidatedLots},
		{models.StatusInPharmacy, &stats.InStockLots},
		{models.StatusAdministered, &stats.AdministeredLots},
	}
	for _, c := range counts {
		n, err := s.lots.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, err
		}
		*c.dest = n
	}

	qty, err := s.lots.SumQuantity(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalQuantity = qty
	return stats, nil
}

// LedgerState is the reconciliation report for one lot: the ledger's record
// and whether it agrees with the relational status. Divergence is reported,
// not raised.
type LedgerState struct {
	LotID       string `json:"lotId"`
	Name        string `json:"name"`
	StatusCode  int    `json:"ledgerStatus"`
	StatusLabel string `json:"statusLabel"`
	Actor       string `json:"actor"`
	Timestamp   int64  `json:"timestamp"`
	Synced      bool   `json:"syncedWithDatabase"`
}

func (s *LotService) LedgerState(ctx context.Context, lotID string) (*LedgerState, error) {
	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	record, err := s.ledger.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	synced := lot.Status.Ordinal() == record.StatusCode
	if !synced {
		s.logger.Error("Lot diverged from ledger",
			"lot_id", lotID,
			"db_status", lot.Status,
			"ledger_status", record.StatusCode,
		)
	}

	return &LedgerState{
		LotID:       lotID,
		Name:        record.Name,
		StatusCode:  record.StatusCode,
		StatusLabel: string(models.StatusFromCode(record.StatusCode)),
		Actor:       record.Actor,
		Timestamp:   record.Timestamp,
		Synced:      synced,
	}, nil
}

// resolveActor looks up the acting account. Only a missing record maps to
// ErrUnknownActor; store failures propagate unchanged.
func (s *LotService) resolveActor(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownActor, username)
		}
		return nil, err
	}
	return user, nil
}

// saveAfterConfirm persists the relational mutation after the ledger has
// confirmed. A failure here means the relational store lags the ledger, which
// LedgerState reports until the caller retries or reconciles.
func (s *LotService) saveAfterConfirm(ctx context.Context, lot *models.Lot, op string) error {
	if err := s.lots.Save(ctx, lot); err != nil {
		s.logger.Error("Relational save failed after ledger confirmation",
			"op", op,
			"lot_id", lot.ID,
			"err", err,
		)
		return err
	}
	return nil
}

// keyedMutex serializes lifecycle operations per lot identifier within this
// process. Cross-process races fall to the relational row update and the
// ledger's state-guarded functions. Entries are reference-counted and removed
// when the last holder releases, so the map stays bounded by the number of
// in-flight operations rather than the number of distinct lot IDs seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinchain/backend/ledger"
	"github.com/clinchain/backend/repository/models"
)

// fakeLedger records mirror calls and can be scripted to fail.
type fakeLedger struct {
	calls  []string
	roles  []models.Role
	err    error
	record *ledger.LotRecord
}

func (f *fakeLedger) mirror(op string, role models.Role) (*ledger.Receipt, error) {
	f.calls = append(f.calls, op)
	f.roles = append(f.roles, role)
	if f.err != nil {
		return nil, f.err
	}
	return &ledger.Receipt{TxHash: "0xabc", BlockNumber: 1, Status: 1}, nil
}

func (f *fakeLedger) CreateLot(_ context.Context, _, _ string, role models.Role) (*ledger.Receipt, error) {
	return f.mirror("createLot", role)
}

func (f *fakeLedger) ValidateLot(_ context.Context, _ string, role models.Role) (*ledger.Receipt, error) {
	return f.mirror("validateLot", role)
}

func (f *fakeLedger) StockLot(_ context.Context, _ string, role models.Role) (*ledger.Receipt, error) {
	return f.mirror("stockLot", role)
}

func (f *fakeLedger) AdministerLot(_ context.Context, _ string, role models.Role) (*ledger.Receipt, error) {
	return f.mirror("administerLot", role)
}

func (f *fakeLedger) GetLot(_ context.Context, _ string) (*ledger.LotRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func newTestService(t *testing.T) (*LotService, *MemoryLotStore, *fakeLedger) {
	t.Helper()
	lots := NewMemoryLotStore()
	users := NewMemoryUserStore()
	users.Add(models.User{ID: "u1", Username: "wholesaler1", Role: models.RoleWholesaler})
	users.Add(models.User{ID: "u2", Username: "hospital1", Role: models.RoleHospital})
	users.Add(models.User{ID: "u3", Username: "pharmacist1", Role: models.RolePharmacist})
	users.Add(models.User{ID: "u4", Username: "nurse1", Role: models.RoleNurse})

	fl := &fakeLedger{}
	svc := NewLotService(lots, users, fl, nil, cmtlog.NewNopLogger())
	return svc, lots, fl
}

func TestCreateLot(t *testing.T) {
	svc, _, fl := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Amoxicillin", 100, "wholesaler1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, lot.Status)
	assert.Equal(t, 100, lot.Quantity)
	assert.False(t, lot.Validated)
	require.Len(t, lot.History, 1)
	assert.Equal(t, "Lot created", lot.History[0].Action)
	assert.Equal(t, []string{"createLot"}, fl.calls)
	assert.Equal(t, []models.Role{models.RoleWholesaler}, fl.roles)

	stored, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, stored.Status)
}

func TestCreateLotAuthorization(t *testing.T) {
	svc, _, fl := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateLot(ctx, "Amoxicillin", 10, "hospital1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreateLot(ctx, "Amoxicillin", 10, "ghost")
	assert.ErrorIs(t, err, ErrUnknownActor)

	_, err = svc.CreateLot(ctx, "Amoxicillin", -1, "wholesaler1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Empty(t, fl.calls)
}

func TestFullLifecycle(t *testing.T) {
	svc, _, fl := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Ibuprofen", 50, "wholesaler1")
	require.NoError(t, err)

	lot, err = svc.ValidateLot(ctx, lot.ID, "hospital1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, lot.Status)
	assert.True(t, lot.Validated)

	lot, err = svc.StockLot(ctx, lot.ID, "pharmacist1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInPharmacy, lot.Status)

	lot, err = svc.AdministerLot(ctx, lot.ID, "nurse1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAdministered, lot.Status)

	assert.Equal(t, []string{"createLot", "validateLot", "stockLot", "administerLot"}, fl.calls)
	assert.Equal(t, []models.Role{
		models.RoleWholesaler,
		models.RoleHospital,
		models.RolePharmacist,
		models.RoleNurse,
	}, fl.roles)

	// One history entry per step.
	stored, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 4)
}

func TestTransitionRoleChecks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Ibuprofen", 50, "wholesaler1")
	require.NoError(t, err)

	// Wrong role for validation.
	_, err = svc.ValidateLot(ctx, lot.ID, "wholesaler1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ValidateLot(ctx, lot.ID, "nurse1")
	assert.ErrorIs(t, err, ErrForbidden)

	// Right role succeeds exactly once.
	_, err = svc.ValidateLot(ctx, lot.ID, "hospital1")
	require.NoError(t, err)
	_, err = svc.ValidateLot(ctx, lot.ID, "hospital1")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	// Cannot skip ahead.
	_, err = svc.AdministerLot(ctx, lot.ID, "nurse1")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

// failingUserStore simulates a database outage on account lookup.
type failingUserStore struct {
	err error
}

func (f *failingUserStore) FindByUsername(context.Context, string) (*models.User, error) {
	return nil, f.err
}

func TestTransitionUserStoreOutagePropagates(t *testing.T) {
	lots := NewMemoryLotStore()
	require.NoError(t, lots.Save(context.Background(), &models.Lot{
		ID:      "3f0c8a4e-0000-0000-0000-000000000001",
		MedName: "Ibuprofen",
		Status:  models.StatusCreated,
	}))

	outage := errors.New("connection refused: database unreachable")
	svc := NewLotService(lots, &failingUserStore{err: outage}, &fakeLedger{}, nil, cmtlog.NewNopLogger())

	_, err := svc.ValidateLot(context.Background(), "3f0c8a4e-0000-0000-0000-000000000001", "hospital1")
	require.Error(t, err)

	// An infrastructure failure is not an unknown actor and keeps its cause.
	assert.NotErrorIs(t, err, ErrUnknownActor)
	assert.ErrorIs(t, err, outage)

	_, err = svc.CreateLot(context.Background(), "Ibuprofen", 10, "wholesaler1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownActor)
	assert.ErrorIs(t, err, outage)
}

func TestTransitionUnknownLot(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ValidateLot(context.Background(), "no-such-lot", "hospital1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerFailureLeavesRelationalStateUntouched(t *testing.T) {
	svc, lots, fl := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Ibuprofen", 50, "wholesaler1")
	require.NoError(t, err)

	fl.err = &ledger.OperationError{Op: "validateLot", LotID: lot.ID, Err: errors.New("node unreachable")}
	_, err = svc.ValidateLot(ctx, lot.ID, "hospital1")
	require.Error(t, err)

	var opErr *ledger.OperationError
	assert.ErrorAs(t, err, &opErr)

	stored, err := lots.FindByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, stored.Status)
	assert.False(t, stored.Validated)
	assert.Len(t, stored.History, 1)
}

func TestCreateLotLedgerFailureNotPersisted(t *testing.T) {
	svc, lots, fl := newTestService(t)
	fl.err = errors.New("node unreachable")

	_, err := svc.CreateLot(context.Background(), "Ibuprofen", 50, "wholesaler1")
	require.Error(t, err)

	n, err := lots.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithdraw(t *testing.T) {
	svc, _, fl := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Ibuprofen", 100, "wholesaler1")
	require.NoError(t, err)
	mirrored := len(fl.calls)

	lot, err = svc.Withdraw(ctx, lot.ID, 30, "pharmacist1")
	require.NoError(t, err)
	assert.Equal(t, 70, lot.Quantity)

	// Over-withdrawal fails without changing the balance.
	_, err = svc.Withdraw(ctx, lot.ID, 80, "pharmacist1")
	assert.ErrorIs(t, err, ErrInsufficientQuantity)

	lot, err = svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, lot.Quantity)

	_, err = svc.Withdraw(ctx, lot.ID, 0, "pharmacist1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Withdraw(ctx, lot.ID, -5, "pharmacist1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// Withdrawals never touch the ledger.
	assert.Len(t, fl.calls, mirrored)
}

func TestAddHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Ibuprofen", 10, "wholesaler1")
	require.NoError(t, err)

	lot, err = svc.AddHistory(ctx, lot.ID, "Temperature check passed", "pharmacist1")
	require.NoError(t, err)
	assert.Len(t, lot.History, 2)
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateLot(ctx, "Amoxicillin", 100, "wholesaler1")
	require.NoError(t, err)
	_, err = svc.CreateLot(ctx, "Ibuprofen", 50, "wholesaler1")
	require.NoError(t, err)

	_, err = svc.ValidateLot(ctx, a.ID, "hospital1")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalLots)
	assert.Equal(t, int64(1), stats.CreatedLots)
	assert.Equal(t, int64(1), stats.ValidatedLots)
	assert.Equal(t, int64(0), stats.InStockLots)
	assert.Equal(t, int64(150), stats.TotalQuantity)
}

func TestListLots(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateLot(ctx, "Amoxicillin", 100, "wholesaler1")
	require.NoError(t, err)
	b, err := svc.CreateLot(ctx, "Ibuprofen", 50, "wholesaler1")
	require.NoError(t, err)
	_, err = svc.ValidateLot(ctx, b.ID, "hospital1")
	require.NoError(t, err)

	all, total, err := svc.ListLots(ctx, LotFilter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	validated := models.StatusValidated
	filtered, total, err := svc.ListLots(ctx, LotFilter{Status: &validated}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, filtered, 1)
	assert.Equal(t, b.ID, filtered[0].ID)

	byName, _, err := svc.ListLots(ctx, LotFilter{MedName: "ibu"}, nil)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Ibuprofen", byName[0].MedName)

	paged, total, err := svc.ListLots(ctx, LotFilter{}, &PageRequest{Page: 0, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, paged, 1)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	var km keyedMutex

	unlock := km.lock("lot-a")
	assert.Len(t, km.locks, 1)
	unlock()
	assert.Empty(t, km.locks)

	// Contended entries survive until the last holder releases.
	first := km.lock("lot-b")
	done := make(chan struct{})
	go func() {
		second := km.lock("lot-b")
		second()
		close(done)
	}()
	assert.Eventually(t, func() bool {
		km.mu.Lock()
		defer km.mu.Unlock()
		return km.locks["lot-b"] != nil && km.locks["lot-b"].refs == 2
	}, time.Second, time.Millisecond)
	first()
	<-done
	assert.Empty(t, km.locks)
}

func TestLifecycleOperationsDoNotAccumulateLocks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for range 5 {
		lot, err := svc.CreateLot(ctx, "Ibuprofen", 10, "wholesaler1")
		require.NoError(t, err)
		_, err = svc.ValidateLot(ctx, lot.ID, "hospital1")
		require.NoError(t, err)
	}
	assert.Empty(t, svc.locks.locks)
}

func TestLedgerState(t *testing.T) {
	svc, _, fl := newTestService(t)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, "Amoxicillin", 100, "wholesaler1")
	require.NoError(t, err)
	_, err = svc.ValidateLot(ctx, lot.ID, "hospital1")
	require.NoError(t, err)

	fl.record = &ledger.LotRecord{
		LotID:      lot.ID,
		Name:       "Amoxicillin",
		StatusCode: 1,
		Actor:      "0x00000000000000000000000000000000000000bb",
		Timestamp:  1700000000,
	}
	state, err := svc.LedgerState(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, state.Synced)
	assert.Equal(t, string(models.StatusValidated), state.StatusLabel)

	// Ledger ahead of the database is reported, not raised.
	fl.record.StatusCode = 2
	state, err = svc.LedgerState(ctx, lot.ID)
	require.NoError(t, err)
	assert.False(t, state.Synced)
	assert.Equal(t, string(models.StatusInPharmacy), state.StatusLabel)
}

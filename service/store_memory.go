package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/clinchain/backend/repository/models"
)

// MemoryLotStore keeps lots in a map. It backs unit tests and local runs
// without a database.
type MemoryLotStore struct {
	mu   sync.RWMutex
	lots map[string]models.Lot
}

func NewMemoryLotStore() *MemoryLotStore {
	return &MemoryLotStore{lots: make(map[string]models.Lot)}
}

func (s *MemoryLotStore) FindByID(_ context.Context, id string) (*models.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lot, ok := s.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: lot %s", ErrNotFound, id)
	}
	copied := lot
	copied.History = append([]models.LotHistory(nil), lot.History...)
	sort.SliceStable(copied.History, func(i, j int) bool {
		return copied.History[i].Timestamp.After(copied.History[j].Timestamp)
	})
	return &copied, nil
}

func (s *MemoryLotStore) Save(_ context.Context, lot *models.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lot
	copied.History = append([]models.LotHistory(nil), lot.History...)
	s.lots[lot.ID] = copied
	return nil
}

func (s *MemoryLotStore) List(_ context.Context, filter LotFilter, page *PageRequest) ([]models.Lot, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Lot, 0, len(s.lots))
	for _, lot := range s.lots {
		if filter.Status != nil && lot.Status != *filter.Status {
			continue
		}
		if filter.CreatedBy != "" && lot.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.MedName != "" && !strings.Contains(strings.ToLower(lot.MedName), strings.ToLower(filter.MedName)) {
			continue
		}
		matched = append(matched, lot)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if page != nil && page.Size > 0 {
		start := page.Page * page.Size
		if start >= len(matched) {
			return []models.Lot{}, total, nil
		}
		end := start + page.Size
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *MemoryLotStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.lots)), nil
}

func (s *MemoryLotStore) CountByStatus(_ context.Context, status models.LotStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, lot := range s.lots {
		if lot.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryLotStore) SumQuantity(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, lot := range s.lots {
		sum += int64(lot.Quantity)
	}
	return sum, nil
}

// MemoryUserStore keeps actor accounts in a map keyed by username.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

func (s *MemoryUserStore) Add(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
}

func (s *MemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	return &user, nil
}

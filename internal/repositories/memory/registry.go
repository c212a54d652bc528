// Package memory implements the repositories in process. It backs local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/repositories"
)

// Registry holds every collection in one process-wide store.
type Registry struct {
	store  *store
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

type store struct {
	mu    sync.RWMutex
	foods map[string]domain.FoodRecord
	users map[string]domain.User
	logs  []domain.AuditLogEntry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRegistry returns an empty in-memory registry. Extra checks are reported alongside the
// always-healthy memory store.
func NewRegistry(extra ...repositories.DependencyCheck) *Registry {
	s := &store{
		foods: make(map[string]domain.FoodRecord),
		users: make(map[string]domain.User),
		locks: make(map[string]*sync.Mutex),
	}
	checks := append([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}}, extra...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		health, _ = repositories.NewDependencyHealthRepository(checks[:1])
	}
	return &Registry{store: s, health: health}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Foods() repositories.FoodRepository         { return foodRepository{r.store} }
func (r *Registry) Users() repositories.UserRepository         { return userRepository{r.store} }
func (r *Registry) Checkins() repositories.CheckinRepository   { return checkinRepository{r.store} }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return auditLogRepository{r.store} }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

// userLock returns the mutex that serializes passport updates for one user.
func (s *store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// Package firestore implements the repositories on Cloud Firestore.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/repositories"
)

const (
	foodCollection    = "foods"
	userCollection    = "users"
	checkinCollection = "checkins"
	aiLogCollection   = "ai_logs"
)

// Registry wires every Firestore repository to one shared Provider.
type Registry struct {
	provider *pfirestore.Provider
	foods    *FoodRepository
	users    *UserRepository
	checkins *CheckinRepository
	logs     *AuditLogRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. A Firestore ping is always part of the health report; extra
// checks such as Redis or the prediction service are appended after it.
func NewRegistry(provider *pfirestore.Provider, extra ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	checks := append([]repositories.DependencyCheck{{
		Name:  "firestore",
		Check: provider.Ping,
	}}, extra...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		foods:    NewFoodRepository(provider),
		users:    NewUserRepository(provider),
		checkins: NewCheckinRepository(provider),
		logs:     NewAuditLogRepository(provider),
		health:   health,
	}, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Foods() repositories.FoodRepository         { return r.foods }
func (r *Registry) Users() repositories.UserRepository         { return r.users }
func (r *Registry) Checkins() repositories.CheckinRepository   { return r.checkins }
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.logs }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

package repositories

import (
	"context"
	"time"

	"github.com/food-passport/api/internal/domain"
)

// Registry exposes the repositories used by services and owns their shared resources.
type Registry interface {
	Close(ctx context.Context) error

	Foods() FoodRepository
	Users() UserRepository
	Checkins() CheckinRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
}

// RepositoryError wraps persistence failures with the categories services branch on.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// FoodRepository stores the food catalog keyed by canonical food key.
type FoodRepository interface {
	FindByKey(ctx context.Context, key string) (domain.FoodRecord, error)
	List(ctx context.Context, filter FoodFilter) ([]domain.FoodRecord, error)
	Insert(ctx context.Context, food domain.FoodRecord) error
}

// FoodFilter narrows catalog listings. An empty RegionName lists everything.
type FoodFilter struct {
	RegionName string
}

// PassportMutation edits a user inside the repository's serialization boundary. Returning an
// error aborts the update without persisting anything.
type PassportMutation func(user *domain.User) error

// UserRepository stores users together with their embedded passport.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error)
	// UpdatePassport loads the user, applies mutate and persists the result atomically. Calls for
	// the same user are serialized; entries appended by mutate become visible to CheckinRepository.
	UpdatePassport(ctx context.Context, userID string, mutate PassportMutation) (domain.User, error)
	UpdateAvatar(ctx context.Context, userID, avatarURL string, at time.Time) (domain.User, error)
	// TopByEntryCount orders by entry count descending, then user id ascending.
	TopByEntryCount(ctx context.Context, limit int) ([]domain.User, error)
}

// CheckinRepository reads the flattened cross-user check-in stream.
type CheckinRepository interface {
	// Recent returns the newest check-ins first.
	Recent(ctx context.Context, limit int) ([]domain.CheckinRecord, error)
}

// AuditLogRepository persists append-only scan audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	FindByID(ctx context.Context, id string) (domain.AuditLogEntry, error)
	List(ctx context.Context, filter AuditLogFilter) ([]domain.AuditLogEntry, error)
}

// AuditLogFilter selects audit entries newest first. An empty UserID lists all users.
type AuditLogFilter struct {
	UserID string
	Limit  int
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

package memory

import (
	"context"
	"sort"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/repositories"
)

type auditLogRepository struct{ s *store }

func (r auditLogRepository) Append(_ context.Context, entry domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.logs {
		if existing.ID == entry.ID {
			return repositories.NewConflictError("ai_logs.append")
		}
	}
	r.s.logs = append(r.s.logs, cloneLog(entry))
	return nil
}

func (r auditLogRepository) FindByID(_ context.Context, id string) (domain.AuditLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, entry := range r.s.logs {
		if entry.ID == id {
			return cloneLog(entry), nil
		}
	}
	return domain.AuditLogEntry{}, repositories.NewNotFoundError("ai_logs.get")
}

func (r auditLogRepository) List(_ context.Context, filter repositories.AuditLogFilter) ([]domain.AuditLogEntry, error) {
	r.s.mu.RLock()
	var out []domain.AuditLogEntry
	for _, entry := range r.s.logs {
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		out = append(out, cloneLog(entry))
	}
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneLog(entry domain.AuditLogEntry) domain.AuditLogEntry {
	if entry.PerModelPredictions != nil {
		models := make(map[string]string, len(entry.PerModelPredictions))
		for k, v := range entry.PerModelPredictions {
			models[k] = v
		}
		entry.PerModelPredictions = models
	}
	return entry
}

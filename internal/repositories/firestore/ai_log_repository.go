package firestore

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/food-passport/api/internal/domain"
	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/repositories"
)

// AuditLogRepository appends scan audit entries to the ai_logs collection. Filtering by user with
// timestamp ordering needs the composite index (userId ASC, timestamp DESC).
type AuditLogRepository struct {
	logs *pfirestore.Collection[aiLogDocument]
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// NewAuditLogRepository binds the ai_logs collection.
func NewAuditLogRepository(provider *pfirestore.Provider) *AuditLogRepository {
	return &AuditLogRepository{logs: pfirestore.NewCollection[aiLogDocument](provider, aiLogCollection)}
}

// Append uses Create so a reused id is rejected as a conflict instead of overwriting history.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	return r.logs.Create(ctx, entry.ID, aiLogDocument{
		UserID:              entry.UserID,
		Timestamp:           entry.Timestamp.UTC(),
		FinalPrediction:     entry.FinalPrediction,
		Confidence:          entry.Confidence,
		PerModelPredictions: entry.PerModelPredictions,
	})
}

func (r *AuditLogRepository) FindByID(ctx context.Context, id string) (domain.AuditLogEntry, error) {
	doc, err := r.logs.Get(ctx, id)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) ([]domain.AuditLogEntry, error) {
	userID := strings.TrimSpace(filter.UserID)
	docs, err := r.logs.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		q = q.OrderBy("timestamp", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toDomain(doc.ID))
	}
	return entries, nil
}

type aiLogDocument struct {
	UserID              string            `firestore:"userId"`
	Timestamp           time.Time         `firestore:"timestamp"`
	FinalPrediction     string            `firestore:"finalPrediction"`
	Confidence          float64           `firestore:"confidence"`
	PerModelPredictions map[string]string `firestore:"perModelPredictions"`
}

func (d aiLogDocument) toDomain(id string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:                  id,
		UserID:              d.UserID,
		Timestamp:           d.Timestamp,
		FinalPrediction:     d.FinalPrediction,
		Confidence:          d.Confidence,
		PerModelPredictions: d.PerModelPredictions,
	}
}

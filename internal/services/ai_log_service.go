package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/food-passport/api/internal/platform/pagination"
	"github.com/food-passport/api/internal/repositories"
)

var auditListLimits = pagination.Options{Default: 50, Max: pagination.DefaultMaxLimit}

// AuditLogServiceDeps bundles constructor inputs for the audit log service.
type AuditLogServiceDeps struct {
	Repository repositories.AuditLogRepository
	Clock      func() time.Time
	IDGen      func() string
}

type auditLogService struct {
	repo  repositories.AuditLogRepository
	clock func() time.Time
	idGen func() string
}

var _ AuditLogService = (*auditLogService)(nil)

// NewAuditLogService creates an audit log service backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &auditLogService{
		repo:  deps.Repository,
		clock: func() time.Time { return clock().UTC() },
		idGen: idGen,
	}, nil
}

// Record appends one entry. Per-model predictions keep only each model's label.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) (AuditLogEntry, error) {
	models := make(map[string]string, len(record.Predictions.Models))
	for id, model := range record.Predictions.Models {
		models[id] = model.Label
	}
	entry := AuditLogEntry{
		ID:                  s.idGen(),
		UserID:              strings.TrimSpace(record.UserID),
		Timestamp:           s.clock(),
		FinalPrediction:     record.Verdict.BestMatch,
		Confidence:          record.Verdict.Confidence,
		PerModelPredictions: models,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return AuditLogEntry{}, err
	}
	return entry, nil
}

func (s *auditLogService) Get(ctx context.Context, id string) (AuditLogEntry, error) {
	id, err := requireID("id", id)
	if err != nil {
		return AuditLogEntry{}, err
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return AuditLogEntry{}, ErrAuditLogNotFound
		}
		return AuditLogEntry{}, err
	}
	return entry, nil
}

func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error) {
	entries, err := s.repo.List(ctx, repositories.AuditLogFilter{
		UserID: strings.TrimSpace(filter.UserID),
		Limit:  pagination.Clamp(filter.Limit, auditListLimits),
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []AuditLogEntry{}
	}
	return entries, nil
}

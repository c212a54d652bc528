package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/food-passport/api/internal/platform/prediction"
	"github.com/food-passport/api/internal/platform/storage"
)

const (
	scanMeterName       = "github.com/food-passport/api/internal/services"
	defaultMaxScanBytes = 10 << 20

	scanOutcomeMatched  = "matched"
	scanOutcomeNotFound = "not_found"
	scanOutcomeUpstream = "upstream_error"
	scanOutcomeInvalid  = "invalid"
)

// ScanServiceDeps bundles the collaborators of the scan pipeline. Audit and Media are optional.
type ScanServiceDeps struct {
	Predictor     Predictor
	Foods         FoodRegistry
	Audit         AuditLogService
	Media         MediaUploader
	IDGen         func() string
	Logger        Logger
	Meter         metric.Meter
	MaxImageBytes int64
}

type scanService struct {
	predictor Predictor
	foods     FoodRegistry
	audit     AuditLogService
	media     MediaUploader
	idGen     func() string
	logger    Logger
	maxBytes  int64
	outcomes  metric.Int64Counter
}

var _ ScanService = (*scanService)(nil)

// NewScanService constructs the scan pipeline.
func NewScanService(deps ScanServiceDeps) (ScanService, error) {
	if deps.Predictor == nil {
		return nil, errors.New("scan service: predictor is required")
	}
	if deps.Foods == nil {
		return nil, errors.New("scan service: food registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(scanMeterName)
	}
	outcomes, err := meter.Int64Counter(
		"scan.outcomes",
		metric.WithDescription("Scan requests by outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("scan service: create counter: %w", err)
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	maxBytes := deps.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxScanBytes
	}
	return &scanService{
		predictor: deps.Predictor,
		foods:     deps.Foods,
		audit:     deps.Audit,
		media:     deps.Media,
		idGen:     idGen,
		logger:    logger,
		maxBytes:  maxBytes,
		outcomes:  outcomes,
	}, nil
}

// Scan calls the prediction service exactly once. Audit failures are logged and never fail the scan.
func (s *scanService) Scan(ctx context.Context, cmd ScanCommand) (ScanResult, error) {
	if err := s.validate(cmd); err != nil {
		s.record(ctx, scanOutcomeInvalid)
		return ScanResult{}, err
	}

	set, err := s.predictor.Predict(ctx, prediction.Image{
		Data:        cmd.Image,
		Filename:    cmd.Filename,
		ContentType: cmd.ContentType,
	})
	if err != nil {
		s.record(ctx, scanOutcomeUpstream)
		return ScanResult{}, upstreamError(err)
	}

	verdict := Classify(set)
	food, err := s.foods.Resolve(ctx, verdict.BestMatch)
	if err != nil {
		var notFound *FoodNotFoundError
		if errors.As(err, &notFound) {
			s.record(ctx, scanOutcomeNotFound)
			return ScanResult{}, &FoodNotFoundError{AttemptedLabel: verdict.BestMatch, Confidence: verdict.Confidence}
		}
		return ScanResult{}, err
	}

	result := ScanResult{Food: food, Verdict: verdict, Predictions: set}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" {
		s.attach(ctx, userID, cmd, &result)
	}
	s.record(ctx, scanOutcomeMatched)
	return result, nil
}

// attach records the audit entry and keeps a copy of the image for a signed-in user. Both are
// best-effort.
func (s *scanService) attach(ctx context.Context, userID string, cmd ScanCommand, result *ScanResult) {
	if s.audit != nil {
		entry, err := s.audit.Record(ctx, AuditLogRecord{UserID: userID, Verdict: result.Verdict, Predictions: result.Predictions})
		if err != nil {
			s.logger.Warnf("scan: audit log for user %s failed: %v", userID, err)
		} else {
			result.AuditLogID = entry.ID
		}
	}
	if s.media != nil {
		url, err := s.media.Put(ctx, storage.Upload{
			Purpose:     storage.PurposeScanImage,
			UserID:      userID,
			UploadID:    s.idGen(),
			ContentType: cmd.ContentType,
			Data:        cmd.Image,
		})
		if err != nil {
			s.logger.Warnf("scan: store image for user %s failed: %v", userID, err)
		} else {
			result.ImageURL = url
		}
	}
}

func (s *scanService) validate(cmd ScanCommand) error {
	if len(cmd.Image) == 0 {
		return validationError("image", "No image file provided")
	}
	if int64(len(cmd.Image)) > s.maxBytes {
		return validationError("image", fmt.Sprintf("exceeds %d bytes", s.maxBytes))
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return validationError("image", "must be an image")
	}
	return nil
}

func (s *scanService) record(ctx context.Context, outcome string) {
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// upstreamError keeps the upstream status when the client reports one. Transport failures and
// timeouts get status zero; the wrapped error still matches context.DeadlineExceeded.
func upstreamError(err error) error {
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		return &UpstreamError{Status: status.StatusCode(), Err: err}
	}
	return &UpstreamError{Err: err}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/prediction"
	"github.com/food-passport/api/internal/platform/storage"
)

type stubPredictor struct {
	set   domain.PredictionSet
	err   error
	calls int
	last  prediction.Image
}

func (s *stubPredictor) Predict(_ context.Context, img prediction.Image) (domain.PredictionSet, error) {
	s.calls++
	s.last = img
	return s.set, s.err
}

type stubAuditLogs struct {
	records []AuditLogRecord
	err     error
}

func (s *stubAuditLogs) Record(_ context.Context, record AuditLogRecord) (AuditLogEntry, error) {
	if s.err != nil {
		return AuditLogEntry{}, s.err
	}
	s.records = append(s.records, record)
	return AuditLogEntry{ID: fmt.Sprintf("log-%d", len(s.records))}, nil
}

func (s *stubAuditLogs) Get(context.Context, string) (AuditLogEntry, error) {
	return AuditLogEntry{}, ErrAuditLogNotFound
}

func (s *stubAuditLogs) List(context.Context, AuditLogFilter) ([]AuditLogEntry, error) {
	return nil, nil
}

type recordingLogger struct{ lines []string }

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func phoPredictionSet() domain.PredictionSet {
	return domain.PredictionSet{
		BestMatch:  "pho",
		Confidence: 0.83,
		Models: map[string]domain.ModelPrediction{
			"vit":    {Label: "pho", Confidence: 0.92},
			"resnet": {Label: "bun_bo_hue", Confidence: 0.71},
			"convnx": {Label: "pho", Confidence: 0.45},
		},
		Voting: domain.VotingResult{Prediction: "pho", Confidence: 0.83, Votes: map[string]int{"pho": 2, "bun_bo_hue": 1}, TotalModels: 3},
	}
}

func newTestScanService(t *testing.T, predictor Predictor, audit AuditLogService, logger Logger) ScanService {
	t.Helper()
	foods, _ := newTestRegistry(t, pho, bunBo)
	svc, err := NewScanService(ScanServiceDeps{Predictor: predictor, Foods: foods, Audit: audit, Logger: logger})
	if err != nil {
		t.Fatalf("NewScanService: %v", err)
	}
	return svc
}

func TestScanResolvesBestMatch(t *testing.T) {
	predictor := &stubPredictor{set: phoPredictionSet()}
	audit := &stubAuditLogs{}
	svc := newTestScanService(t, predictor, audit, nil)

	result, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), Filename: "a.jpg", ContentType: "image/jpeg", UserID: "u1"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Food.Key != "pho" || result.Verdict.BestMatch != "pho" {
		t.Fatalf("unexpected result %+v", result)
	}
	want := map[string]domain.AgreementTag{"vit": domain.AgreementOK, "resnet": domain.AgreementWarn, "convnx": domain.AgreementError}
	for id, tag := range want {
		if result.Verdict.Tags[id] != tag {
			t.Fatalf("model %s: expected %s, got %s", id, tag, result.Verdict.Tags[id])
		}
	}
	if predictor.calls != 1 || predictor.last.Filename != "a.jpg" {
		t.Fatalf("expected one prediction call, got %d (%+v)", predictor.calls, predictor.last)
	}
	if len(audit.records) != 1 || audit.records[0].UserID != "u1" || result.AuditLogID != "log-1" {
		t.Fatalf("expected one audit record, got %+v", audit.records)
	}
}

func TestScanWithoutUserSkipsAudit(t *testing.T) {
	audit := &stubAuditLogs{}
	svc := newTestScanService(t, &stubPredictor{set: phoPredictionSet()}, audit, nil)

	if _, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), ContentType: "image/png"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(audit.records) != 0 {
		t.Fatalf("expected no audit records, got %d", len(audit.records))
	}
}

func TestScanAuditFailureIsSwallowed(t *testing.T) {
	logger := &recordingLogger{}
	svc := newTestScanService(t, &stubPredictor{set: phoPredictionSet()}, &stubAuditLogs{err: errors.New("firestore down")}, logger)

	result, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), ContentType: "image/jpeg", UserID: "u1"})
	if err != nil {
		t.Fatalf("scan should succeed despite audit failure: %v", err)
	}
	if result.Food.Key != "pho" || result.AuditLogID != "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(logger.lines) != 1 {
		t.Fatalf("expected one warning, got %v", logger.lines)
	}
}

func TestScanUnknownFood(t *testing.T) {
	set := phoPredictionSet()
	set.BestMatch = "banh_xeo"
	set.Confidence = 0.64
	svc := newTestScanService(t, &stubPredictor{set: set}, nil, nil)

	_, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), ContentType: "image/jpeg"})
	var notFound *FoodNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected FoodNotFoundError, got %v", err)
	}
	if notFound.AttemptedLabel != "banh_xeo" || notFound.Confidence != 0.64 {
		t.Fatalf("unexpected diagnostics %+v", notFound)
	}
	if !errors.Is(err, ErrFoodNotFound) {
		t.Fatalf("expected errors.Is ErrFoodNotFound")
	}
}

func TestScanUpstreamFailures(t *testing.T) {
	statusSvc := newTestScanService(t, &stubPredictor{err: &prediction.StatusError{Status: 503, Body: "busy"}}, nil, nil)
	_, err := statusSvc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg")})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != 503 {
		t.Fatalf("expected upstream 503, got %v", err)
	}

	timeout := fmt.Errorf("prediction: post: %w", context.DeadlineExceeded)
	timeoutSvc := newTestScanService(t, &stubPredictor{err: timeout}, nil, nil)
	_, err = timeoutSvc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg")})
	if !errors.As(err, &upstream) || upstream.Status != 0 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout upstream error, got %v", err)
	}

	malformed := newTestScanService(t, &stubPredictor{err: prediction.ErrMalformedResponse}, nil, nil)
	_, err = malformed.Scan(context.Background(), ScanCommand{Image: []byte("jpeg")})
	if !errors.As(err, &upstream) || !errors.Is(err, prediction.ErrMalformedResponse) {
		t.Fatalf("expected malformed upstream error, got %v", err)
	}
}

func TestScanValidation(t *testing.T) {
	predictor := &stubPredictor{set: phoPredictionSet()}
	svc := newTestScanService(t, predictor, nil, nil)

	if _, err := svc.Scan(context.Background(), ScanCommand{}); !IsValidation(err) {
		t.Fatalf("expected validation error for empty image, got %v", err)
	}
	if _, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("x"), ContentType: "text/plain"}); !IsValidation(err) {
		t.Fatalf("expected validation error for non-image, got %v", err)
	}
	if predictor.calls != 0 {
		t.Fatalf("predictor must not be called for invalid input")
	}
}

func TestAuditLogServiceRecordsLabels(t *testing.T) {
	_, reg := newTestRegistry(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      func() time.Time { return now },
		IDGen:      func() string { return "01HZY" },
	})
	if err != nil {
		t.Fatalf("NewAuditLogService: %v", err)
	}
	set := phoPredictionSet()
	entry, err := svc.Record(context.Background(), AuditLogRecord{UserID: "u1", Verdict: Classify(set), Predictions: set})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.ID != "01HZY" || entry.FinalPrediction != "pho" || !entry.Timestamp.Equal(now) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.PerModelPredictions["resnet"] != "bun_bo_hue" || len(entry.PerModelPredictions) != 3 {
		t.Fatalf("unexpected per-model predictions %+v", entry.PerModelPredictions)
	}

	got, err := svc.Get(context.Background(), "01HZY")
	if err != nil || got.UserID != "u1" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrAuditLogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	list, err := svc.List(context.Background(), AuditLogFilter{UserID: "someone-else"})
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v %v", list, err)
	}
}

type stubMedia struct {
	uploads []storage.Upload
	err     error
}

func (m *stubMedia) Put(_ context.Context, upload storage.Upload) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.uploads = append(m.uploads, upload)
	return "https://storage.googleapis.com/media/scans/" + upload.UserID + "/" + upload.UploadID + "/original.jpg", nil
}

func TestScanKeepsImageForSignedInUser(t *testing.T) {
	foods, _ := newTestRegistry(t, pho)
	media := &stubMedia{}
	svc, err := NewScanService(ScanServiceDeps{
		Predictor: &stubPredictor{set: phoPredictionSet()},
		Foods:     foods,
		Media:     media,
		IDGen:     func() string { return "01SCAN" },
	})
	if err != nil {
		t.Fatalf("NewScanService: %v", err)
	}

	result, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), ContentType: "image/jpeg", UserID: "u1"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(media.uploads) != 1 || media.uploads[0].Purpose != storage.PurposeScanImage || media.uploads[0].UploadID != "01SCAN" {
		t.Fatalf("unexpected uploads %+v", media.uploads)
	}
	if result.ImageURL == "" {
		t.Fatalf("expected image url on result")
	}

	anonymous, _ := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), ContentType: "image/jpeg"})
	if anonymous.ImageURL != "" || len(media.uploads) != 1 {
		t.Fatalf("anonymous scans must not be stored")
	}

	media.err = errors.New("bucket gone")
	failed, err := svc.Scan(context.Background(), ScanCommand{Image: []byte("jpeg"), ContentType: "image/jpeg", UserID: "u1"})
	if err != nil || failed.ImageURL != "" {
		t.Fatalf("storage failure should be swallowed, got %+v %v", failed, err)
	}
}

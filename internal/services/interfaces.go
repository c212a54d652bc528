package services

import (
	"context"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/prediction"
	"github.com/food-passport/api/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	FoodRecord         = domain.FoodRecord
	CultureCard        = domain.CultureCard
	PredictionSet      = domain.PredictionSet
	ConsensusVerdict   = domain.ConsensusVerdict
	AuditLogEntry      = domain.AuditLogEntry
	User               = domain.User
	UserProgression    = domain.UserProgression
	Achievement        = domain.Achievement
	Activity           = domain.Activity
	LeaderboardEntry   = domain.LeaderboardEntry
	ProvinceFeature    = domain.ProvinceFeature
	ProvinceStatus     = domain.ProvinceStatus
	SystemHealthReport = domain.SystemHealthReport
)

// FoodRegistry resolves classifier labels against the catalog and manages catalog entries.
type FoodRegistry interface {
	Resolve(ctx context.Context, label string) (FoodRecord, error)
	List(ctx context.Context, region string) ([]FoodRecord, error)
	Get(ctx context.Context, key string) (FoodRecord, error)
	Create(ctx context.Context, food FoodRecord) (FoodRecord, error)
	CultureCard(ctx context.Context, key string) (CultureCard, error)
}

// ScanService turns an uploaded image into a catalog match.
type ScanService interface {
	Scan(ctx context.Context, cmd ScanCommand) (ScanResult, error)
}

// ScanCommand is one uploaded image. UserID is optional and only enables audit logging.
type ScanCommand struct {
	Image       []byte
	Filename    string
	ContentType string
	UserID      string
}

// ScanResult is the resolved food plus the evidence behind it. ImageURL is set when the image was
// kept for a signed-in user and can be passed to a later check-in.
type ScanResult struct {
	Food        FoodRecord
	Verdict     ConsensusVerdict
	Predictions PredictionSet
	AuditLogID  string
	ImageURL    string
}

// PassportLedger records check-ins and derives progression.
type PassportLedger interface {
	CheckIn(ctx context.Context, cmd CheckInCommand) (UserProgression, error)
	GetPassport(ctx context.Context, userID string) (UserProgression, error)
	Achievements(ctx context.Context, userID string) ([]Achievement, error)
}

// CheckInCommand appends one food to a user's passport. RegionName defaults to the food's region.
type CheckInCommand struct {
	UserID     string
	FoodKey    string
	ImageURL   string
	RegionName string
}

// ActivityService serves read-only views across all users.
type ActivityService interface {
	RecentActivities(ctx context.Context, limit int) ([]Activity, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// ProvinceService annotates the province dataset with a user's unlock state.
type ProvinceService interface {
	Provinces(ctx context.Context, userID string) ([]ProvinceStatus, error)
	Province(ctx context.Context, name string) (ProvinceFeature, error)
}

// AuditLogService stores the outcome of scans.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord) (AuditLogEntry, error)
	Get(ctx context.Context, id string) (AuditLogEntry, error)
	List(ctx context.Context, filter AuditLogFilter) ([]AuditLogEntry, error)
}

// AuditLogRecord is the input for one audit entry.
type AuditLogRecord struct {
	UserID      string
	Verdict     ConsensusVerdict
	Predictions PredictionSet
}

// AuditLogFilter selects entries newest first. Limit falls back to the service default.
type AuditLogFilter struct {
	UserID string
	Limit  int
}

// UserService manages user profiles.
type UserService interface {
	Create(ctx context.Context, cmd CreateUserCommand) (User, error)
	Get(ctx context.Context, userID string) (User, error)
	UploadAvatar(ctx context.Context, cmd UploadAvatarCommand) (User, error)
}

// CreateUserCommand registers a user. A blank ID gets a generated one.
type CreateUserCommand struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

// UploadAvatarCommand replaces a user's avatar image.
type UploadAvatarCommand struct {
	UserID      string
	ContentType string
	Data        []byte
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Predictor classifies one image with the model ensemble.
type Predictor interface {
	Predict(ctx context.Context, img prediction.Image) (PredictionSet, error)
}

// CheckinPublisher emits check-in events for downstream consumers.
type CheckinPublisher interface {
	PublishCheckin(ctx context.Context, event CheckinEvent) (string, error)
}

// CheckinEventType is the Pub/Sub eventType attribute of CheckinEvent messages.
const CheckinEventType = "passport.checked_in"

// CheckinEvent is published after a check-in commits.
type CheckinEvent struct {
	Type        string    `json:"type"`
	UserID      string    `json:"userId"`
	FoodKey     string    `json:"foodKey"`
	RegionName  string    `json:"regionName,omitempty"`
	CheckinAt   time.Time `json:"checkinAt"`
	EntryCount  int       `json:"entryCount"`
	CurrentRank string    `json:"currentRank"`
	NewRegion   bool      `json:"newRegion"`
}

// SnapshotCache stores read-model snapshots. Implementations may be nil-safe no-ops.
type SnapshotCache interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, value any) error
}

// MediaUploader persists user media and returns its public URL.
type MediaUploader interface {
	Put(ctx context.Context, upload storage.Upload) (string, error)
}

// Logger is the narrow logging contract services write warnings through.
type Logger interface {
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any) {}

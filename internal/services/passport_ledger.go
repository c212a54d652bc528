package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/textutil"
	"github.com/food-passport/api/internal/repositories"
)

const (
	recentFoodsLimit    = 5
	recentFoodWindow    = 7 * 24 * time.Hour
	recentFoodTag       = "Mới mở khóa"
	unknownFoodName     = "Unknown"
	placeholderImage    = "https://via.placeholder.com/400"
	snapshotCachePrefix = "passport:"
)

// CacheInvalidator drops cached snapshots under a key prefix.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, prefix string) error
}

// PassportLedgerDeps bundles the collaborators of the passport ledger. Publisher and Cache are optional.
type PassportLedgerDeps struct {
	Users     repositories.UserRepository
	Foods     FoodRegistry
	Publisher CheckinPublisher
	Cache     CacheInvalidator
	Logger    Logger
	Clock     func() time.Time
}

type passportLedger struct {
	users     repositories.UserRepository
	foods     FoodRegistry
	publisher CheckinPublisher
	cache     CacheInvalidator
	logger    Logger
	clock     func() time.Time
}

var _ PassportLedger = (*passportLedger)(nil)

// NewPassportLedger constructs the ledger.
func NewPassportLedger(deps PassportLedgerDeps) (PassportLedger, error) {
	if deps.Users == nil {
		return nil, errors.New("passport ledger: user repository is required")
	}
	if deps.Foods == nil {
		return nil, errors.New("passport ledger: food registry is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &passportLedger{
		users:     deps.Users,
		foods:     deps.Foods,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		logger:    logger,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// CheckIn appends one entry, unlocks the region when it is new and recomputes the rank in the same
// repository update. The event publish and cache invalidation after commit are best-effort.
func (l *passportLedger) CheckIn(ctx context.Context, cmd CheckInCommand) (UserProgression, error) {
	userID, err := requireID("user_id", cmd.UserID)
	if err != nil {
		return UserProgression{}, err
	}
	foodKey, err := requireID("food_id", cmd.FoodKey)
	if err != nil {
		return UserProgression{}, err
	}
	food, err := l.foods.Resolve(ctx, foodKey)
	if err != nil {
		return UserProgression{}, err
	}
	region := strings.TrimSpace(cmd.RegionName)
	if region == "" {
		region = food.RegionName
	}

	now := l.clock()
	var newRegion bool
	user, err := l.users.UpdatePassport(ctx, userID, func(u *domain.User) error {
		newRegion = false
		u.Passport = append(u.Passport, domain.PassportEntry{
			FoodKey:   food.Key,
			CheckinAt: now,
			ImageURL:  strings.TrimSpace(cmd.ImageURL),
		})
		if region != "" && !textutil.ContainsRegion(u.UnlockedRegions, region) {
			u.UnlockedRegions = append(u.UnlockedRegions, region)
			newRegion = true
		}
		u.CurrentRank = RankFor(u.EntryCount())
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		switch {
		case repositories.IsNotFound(err):
			return UserProgression{}, ErrUserNotFound
		case repositories.IsConflict(err):
			return UserProgression{}, ErrPassportConflict
		}
		return UserProgression{}, err
	}

	l.afterCheckin(ctx, CheckinEvent{
		Type:        CheckinEventType,
		UserID:      user.ID,
		FoodKey:     food.Key,
		RegionName:  region,
		CheckinAt:   now,
		EntryCount:  user.EntryCount(),
		CurrentRank: user.CurrentRank,
		NewRegion:   newRegion,
	})
	return l.progression(ctx, user)
}

func (l *passportLedger) afterCheckin(ctx context.Context, event CheckinEvent) {
	if l.publisher != nil {
		if _, err := l.publisher.PublishCheckin(ctx, event); err != nil {
			l.logger.Warnf("passport: publish checkin event for user %s failed: %v", event.UserID, err)
		}
	}
	invalidateSnapshots(ctx, l.cache, l.logger, "passport")
}

// invalidateSnapshots drops the feed and leaderboard snapshots after a write that changes them.
// Failures are logged; readers fall back to the repository once the TTL lapses.
func invalidateSnapshots(ctx context.Context, cache CacheInvalidator, logger Logger, scope string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, snapshotCachePrefix); err != nil {
		logger.Warnf("%s: invalidate snapshots failed: %v", scope, err)
	}
}

func (l *passportLedger) GetPassport(ctx context.Context, userID string) (UserProgression, error) {
	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return UserProgression{}, err
	}
	return l.progression(ctx, user)
}

func (l *passportLedger) Achievements(ctx context.Context, userID string) ([]Achievement, error) {
	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return AchievementsFor(user.UnlockedRegions), nil
}

func (l *passportLedger) loadUser(ctx context.Context, userID string) (User, error) {
	userID, err := requireID("user_id", userID)
	if err != nil {
		return User{}, err
	}
	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return user, nil
}

// progression derives the read view. The rank is recomputed from the entry count rather than read
// from the stored copy.
func (l *passportLedger) progression(ctx context.Context, user User) (UserProgression, error) {
	count := user.EntryCount()
	recent, err := l.recentFoods(ctx, user.Passport)
	if err != nil {
		return UserProgression{}, err
	}
	entries := user.Passport
	if entries == nil {
		entries = []domain.PassportEntry{}
	}
	regions := user.UnlockedRegions
	if regions == nil {
		regions = []string{}
	}
	return UserProgression{
		UserID:          user.ID,
		Username:        user.Username,
		AvatarURL:       user.AvatarURL,
		Entries:         entries,
		UnlockedRegions: regions,
		CurrentRank:     RankFor(count),
		Progress:        domain.Progress{Current: count, NextRank: NextRankFor(count)},
		RecentFoods:     recent,
		Achievements:    AchievementsFor(user.UnlockedRegions),
	}, nil
}

// recentFoods decorates the last entries, newest first. Catalog lookups for distinct keys run
// concurrently; a food missing from the catalog falls back to placeholder fields.
func (l *passportLedger) recentFoods(ctx context.Context, passport []domain.PassportEntry) ([]domain.RecentFood, error) {
	start := max(len(passport)-recentFoodsLimit, 0)
	tail := passport[start:]

	keys := make(map[string]int)
	for _, entry := range tail {
		if _, ok := keys[entry.FoodKey]; !ok {
			keys[entry.FoodKey] = len(keys)
		}
	}
	foods := make([]*FoodRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for key, idx := range keys {
		g.Go(func() error {
			food, err := l.foods.Get(gctx, key)
			switch {
			case err == nil:
				foods[idx] = &food
			case errors.Is(err, ErrFoodNotFound), IsValidation(err):
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cutoff := l.clock().Add(-recentFoodWindow)
	recent := make([]domain.RecentFood, 0, len(tail))
	for i := len(tail) - 1; i >= 0; i-- {
		entry := tail[i]
		item := domain.RecentFood{
			FoodKey:   entry.FoodKey,
			Name:      unknownFoodName,
			Image:     entry.ImageURL,
			CheckinAt: entry.CheckinAt,
		}
		if food := foods[keys[entry.FoodKey]]; food != nil {
			item.Name = food.DisplayName
			item.Location = food.RegionName
			item.RegionName = food.RegionName
		}
		if item.Image == "" {
			item.Image = placeholderImage
		}
		if entry.CheckinAt.After(cutoff) {
			item.Tag = recentFoodTag
		}
		recent = append(recent, item)
	}
	return recent, nil
}

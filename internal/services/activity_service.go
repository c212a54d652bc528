package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/food-passport/api/internal/platform/pagination"
	"github.com/food-passport/api/internal/repositories"
)

const (
	anonymousUsername = "Người dùng ẩn danh"
	mysteryFoodName   = "Món ăn bí ẩn"

	defaultFeedLimit        = 20
	defaultLeaderboardLimit = 10
)

// ActivityServiceDeps bundles the collaborators of the activity views. Cache is optional.
type ActivityServiceDeps struct {
	Users            repositories.UserRepository
	Checkins         repositories.CheckinRepository
	Foods            FoodRegistry
	Cache            SnapshotCache
	Logger           Logger
	FeedLimit        int
	LeaderboardLimit int
	MaxLimit         int
}

type activityService struct {
	users       repositories.UserRepository
	checkins    repositories.CheckinRepository
	foods       FoodRegistry
	cache       SnapshotCache
	logger      Logger
	feed        pagination.Options
	leaderboard pagination.Options
}

var _ ActivityService = (*activityService)(nil)

// NewActivityService constructs the feed and leaderboard views.
func NewActivityService(deps ActivityServiceDeps) (ActivityService, error) {
	if deps.Users == nil || deps.Checkins == nil {
		return nil, errors.New("activity service: user and checkin repositories are required")
	}
	if deps.Foods == nil {
		return nil, errors.New("activity service: food registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	maxLimit := deps.MaxLimit
	if maxLimit <= 0 {
		maxLimit = pagination.DefaultMaxLimit
	}
	feed := deps.FeedLimit
	if feed <= 0 {
		feed = defaultFeedLimit
	}
	board := deps.LeaderboardLimit
	if board <= 0 {
		board = defaultLeaderboardLimit
	}
	return &activityService{
		users:       deps.Users,
		checkins:    deps.Checkins,
		foods:       deps.Foods,
		cache:       deps.Cache,
		logger:      logger,
		feed:        pagination.Options{Default: feed, Max: maxLimit},
		leaderboard: pagination.Options{Default: board, Max: maxLimit},
	}, nil
}

// RecentActivities returns the newest check-ins across all users joined with profile and catalog
// fields.
func (s *activityService) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	limit = pagination.Clamp(limit, s.feed)
	key := fmt.Sprintf("%sfeed:%d", snapshotCachePrefix, limit)
	var cached []Activity
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	records, err := s.checkins.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	userIDs := make([]string, 0, len(records))
	foodKeys := make([]string, 0, len(records))
	for _, record := range records {
		userIDs = append(userIDs, record.UserID)
		foodKeys = append(foodKeys, record.Entry.FoodKey)
	}

	users, err := s.users.FindByIDs(ctx, uniqueStrings(userIDs))
	if err != nil {
		return nil, err
	}
	foods, err := s.lookupFoods(ctx, uniqueStrings(foodKeys))
	if err != nil {
		return nil, err
	}

	activities := make([]Activity, 0, len(records))
	for _, record := range records {
		activity := Activity{
			UserID:    record.UserID,
			Username:  anonymousUsername,
			FoodKey:   record.Entry.FoodKey,
			FoodName:  mysteryFoodName,
			CheckinAt: record.Entry.CheckinAt,
		}
		if user, ok := users[record.UserID]; ok {
			if user.Username != "" {
				activity.Username = user.Username
			}
			activity.AvatarURL = user.AvatarURL
		}
		if food, ok := foods[record.Entry.FoodKey]; ok {
			if food.DisplayName != "" {
				activity.FoodName = food.DisplayName
			}
			activity.RegionName = food.RegionName
		}
		activities = append(activities, activity)
	}
	s.store(ctx, key, activities)
	return activities, nil
}

// Leaderboard ranks users by entry count with ties broken by user id.
func (s *activityService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = pagination.Clamp(limit, s.leaderboard)
	key := fmt.Sprintf("%sleaderboard:%d", snapshotCachePrefix, limit)
	var cached []LeaderboardEntry
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	users, err := s.users.TopByEntryCount(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(users))
	for _, user := range users {
		username := user.Username
		if username == "" {
			username = anonymousUsername
		}
		entries = append(entries, LeaderboardEntry{
			UserID:      user.ID,
			Username:    username,
			AvatarURL:   user.AvatarURL,
			CurrentRank: RankFor(user.EntryCount()),
			FoodCount:   user.EntryCount(),
		})
	}
	s.store(ctx, key, entries)
	return entries, nil
}

func (s *activityService) lookupFoods(ctx context.Context, keys []string) (map[string]FoodRecord, error) {
	found := make([]*FoodRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, key := range keys {
		g.Go(func() error {
			food, err := s.foods.Get(gctx, key)
			if err != nil {
				if errors.Is(err, ErrFoodNotFound) || IsValidation(err) {
					return nil
				}
				return err
			}
			found[i] = &food
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	foods := make(map[string]FoodRecord, len(keys))
	for _, food := range found {
		if food != nil {
			foods[food.Key] = *food
		}
	}
	return foods, nil
}

func (s *activityService) load(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Load(ctx, key, dst)
	if err != nil {
		s.logger.Warnf("activity: cache load %s failed: %v", key, err)
		return false
	}
	return hit
}

func (s *activityService) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Store(ctx, key, value); err != nil {
		s.logger.Warnf("activity: cache store %s failed: %v", key, err)
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

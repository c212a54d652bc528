package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/singleflight"

	"github.com/food-passport/api/internal/platform/textutil"
	"github.com/food-passport/api/internal/repositories"
)

// FoodRegistryDeps bundles the collaborators of the catalog service.
type FoodRegistryDeps struct {
	Foods repositories.FoodRepository
	Clock func() time.Time
}

type foodRegistry struct {
	foods    repositories.FoodRepository
	clock    func() time.Time
	fallback singleflight.Group
	policy   *bluemonday.Policy
}

var _ FoodRegistry = (*foodRegistry)(nil)

// NewFoodRegistry constructs the catalog service.
func NewFoodRegistry(deps FoodRegistryDeps) (FoodRegistry, error) {
	if deps.Foods == nil {
		return nil, errors.New("food registry: food repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &foodRegistry{
		foods:  deps.Foods,
		clock:  func() time.Time { return clock().UTC() },
		policy: bluemonday.StrictPolicy(),
	}, nil
}

// Resolve tries an exact key lookup first and falls back to a case-insensitive scan of the
// catalog. Concurrent fallbacks for the same folded label share one scan.
func (r *foodRegistry) Resolve(ctx context.Context, label string) (FoodRecord, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return FoodRecord{}, &FoodNotFoundError{AttemptedLabel: label}
	}

	food, err := r.foods.FindByKey(ctx, trimmed)
	if err == nil {
		return food, nil
	}
	if !repositories.IsNotFound(err) {
		return FoodRecord{}, err
	}

	folded := strings.ToLower(trimmed)
	flight := r.fallback.DoChan(folded, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		all, err := r.foods.List(context.WithoutCancel(ctx), repositories.FoodFilter{})
		if err != nil {
			return nil, err
		}
		for _, candidate := range all {
			if strings.ToLower(candidate.Key) == folded {
				return candidate, nil
			}
		}
		return nil, nil
	})
	var v any
	select {
	case <-ctx.Done():
		return FoodRecord{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return FoodRecord{}, res.Err
		}
		v = res.Val
	}
	if match, ok := v.(FoodRecord); ok {
		return match, nil
	}
	return FoodRecord{}, &FoodNotFoundError{AttemptedLabel: label}
}

func (r *foodRegistry) List(ctx context.Context, region string) ([]FoodRecord, error) {
	return r.foods.List(ctx, repositories.FoodFilter{RegionName: strings.TrimSpace(region)})
}

func (r *foodRegistry) Get(ctx context.Context, key string) (FoodRecord, error) {
	key, err := requireID("id", key)
	if err != nil {
		return FoodRecord{}, err
	}
	food, err := r.foods.FindByKey(ctx, key)
	if err != nil {
		if repositories.IsNotFound(err) {
			return FoodRecord{}, ErrFoodNotFound
		}
		return FoodRecord{}, err
	}
	return food, nil
}

// Create normalizes the key to lower snake case and strips markup from the free-text fields.
func (r *foodRegistry) Create(ctx context.Context, food FoodRecord) (FoodRecord, error) {
	food.Key = textutil.CanonicalKey(food.Key)
	food.DisplayName = strings.TrimSpace(food.DisplayName)
	food.RegionName = strings.TrimSpace(food.RegionName)
	switch {
	case food.Key == "":
		return FoodRecord{}, validationError("name_key", "is required")
	case food.DisplayName == "":
		return FoodRecord{}, validationError("name_vi", "is required")
	case food.RegionName == "":
		return FoodRecord{}, validationError("province_name", "is required")
	}
	food.Story = strings.TrimSpace(r.policy.Sanitize(food.Story))
	food.EatingInstructions = strings.TrimSpace(r.policy.Sanitize(food.EatingInstructions))
	food.ImageURL = strings.TrimSpace(food.ImageURL)
	food.CreatedAt = r.clock()

	if err := r.foods.Insert(ctx, food); err != nil {
		if repositories.IsConflict(err) {
			return FoodRecord{}, ErrFoodConflict
		}
		return FoodRecord{}, err
	}
	return food, nil
}

func (r *foodRegistry) CultureCard(ctx context.Context, key string) (CultureCard, error) {
	food, err := r.Get(ctx, key)
	if err != nil {
		return CultureCard{}, err
	}
	if strings.TrimSpace(food.Story) == "" {
		return CultureCard{}, ErrCultureStoryMissing
	}
	return CultureCard{
		FoodKey:            food.Key,
		DisplayName:        food.DisplayName,
		RegionName:         food.RegionName,
		Story:              food.Story,
		EatingInstructions: food.EatingInstructions,
		ImageURL:           food.ImageURL,
	}, nil
}

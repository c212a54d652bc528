package memory

import (
	"context"
	"sort"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/repositories"
)

type foodRepository struct{ s *store }

func (r foodRepository) FindByKey(_ context.Context, key string) (domain.FoodRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	food, ok := r.s.foods[key]
	if !ok {
		return domain.FoodRecord{}, repositories.NewNotFoundError("foods.get")
	}
	return food, nil
}

func (r foodRepository) List(_ context.Context, filter repositories.FoodFilter) ([]domain.FoodRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	foods := make([]domain.FoodRecord, 0, len(r.s.foods))
	for _, food := range r.s.foods {
		if filter.RegionName != "" && food.RegionName != filter.RegionName {
			continue
		}
		foods = append(foods, food)
	}
	sort.Slice(foods, func(i, j int) bool { return foods[i].Key < foods[j].Key })
	return foods, nil
}

func (r foodRepository) Insert(_ context.Context, food domain.FoodRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.foods[food.Key]; exists {
		return repositories.NewConflictError("foods.insert")
	}
	r.s.foods[food.Key] = food
	return nil
}

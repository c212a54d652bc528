package firestore

import (
	"context"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/food-passport/api/internal/domain"
	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/repositories"
)

// FoodRepository stores catalog entries keyed by canonical food key.
type FoodRepository struct {
	foods *pfirestore.Collection[foodDocument]
}

var _ repositories.FoodRepository = (*FoodRepository)(nil)

// NewFoodRepository binds the foods collection.
func NewFoodRepository(provider *pfirestore.Provider) *FoodRepository {
	return &FoodRepository{foods: pfirestore.NewCollection[foodDocument](provider, foodCollection)}
}

// FindByKey is an exact document lookup; keys are never normalized here.
func (r *FoodRepository) FindByKey(ctx context.Context, key string) (domain.FoodRecord, error) {
	doc, err := r.foods.Get(ctx, key)
	if err != nil {
		return domain.FoodRecord{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.CreateTime), nil
}

func (r *FoodRepository) List(ctx context.Context, filter repositories.FoodFilter) ([]domain.FoodRecord, error) {
	region := strings.TrimSpace(filter.RegionName)
	docs, err := r.foods.Query(ctx, func(q firestore.Query) firestore.Query {
		if region != "" {
			q = q.Where("regionName", "==", region)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	foods := make([]domain.FoodRecord, 0, len(docs))
	for _, doc := range docs {
		foods = append(foods, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}
	sort.Slice(foods, func(i, j int) bool { return foods[i].Key < foods[j].Key })
	return foods, nil
}

func (r *FoodRepository) Insert(ctx context.Context, food domain.FoodRecord) error {
	return r.foods.Create(ctx, food.Key, fromDomainFood(food))
}

type foodDocument struct {
	DisplayName        string    `firestore:"displayName"`
	RegionName         string    `firestore:"regionName"`
	Story              string    `firestore:"story"`
	EatingInstructions string    `firestore:"eatingInstructions"`
	ImageURL           string    `firestore:"imageUrl,omitempty"`
	CreatedAt          time.Time `firestore:"createdAt"`
}

func (d foodDocument) toDomain(key string, created time.Time) domain.FoodRecord {
	food := domain.FoodRecord{
		Key:                key,
		DisplayName:        d.DisplayName,
		RegionName:         d.RegionName,
		Story:              d.Story,
		EatingInstructions: d.EatingInstructions,
		ImageURL:           d.ImageURL,
		CreatedAt:          d.CreatedAt,
	}
	if food.CreatedAt.IsZero() {
		food.CreatedAt = created
	}
	return food
}

func fromDomainFood(food domain.FoodRecord) foodDocument {
	return foodDocument{
		DisplayName:        food.DisplayName,
		RegionName:         food.RegionName,
		Story:              food.Story,
		EatingInstructions: food.EatingInstructions,
		ImageURL:           food.ImageURL,
		CreatedAt:          food.CreatedAt.UTC(),
	}
}

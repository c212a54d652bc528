package services

import (
	"context"
	"errors"
	"strings"

	"github.com/food-passport/api/internal/platform/textutil"
	"github.com/food-passport/api/internal/repositories"
)

// ProvinceServiceDeps bundles the province view collaborators.
type ProvinceServiceDeps struct {
	Geo   *GeoCache
	Users repositories.UserRepository
}

type provinceService struct {
	geo   *GeoCache
	users repositories.UserRepository
}

var _ ProvinceService = (*provinceService)(nil)

// NewProvinceService constructs the province view.
func NewProvinceService(deps ProvinceServiceDeps) (ProvinceService, error) {
	if deps.Geo == nil {
		return nil, errors.New("province service: geo cache is required")
	}
	if deps.Users == nil {
		return nil, errors.New("province service: user repository is required")
	}
	return &provinceService{geo: deps.Geo, users: deps.Users}, nil
}

// Provinces lists every province with its center. With a user id, provinces the user has unlocked
// are flagged.
func (s *provinceService) Provinces(ctx context.Context, userID string) ([]ProvinceStatus, error) {
	var unlocked []string
	if userID = strings.TrimSpace(userID); userID != "" {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		unlocked = user.UnlockedRegions
	}

	features, err := s.geo.Load(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]ProvinceStatus, 0, len(features))
	for _, feature := range features {
		statuses = append(statuses, ProvinceStatus{
			Name:     feature.Name,
			Center:   feature.Center,
			Unlocked: textutil.ContainsRegion(unlocked, feature.Name),
		})
	}
	return statuses, nil
}

func (s *provinceService) Province(ctx context.Context, name string) (ProvinceFeature, error) {
	feature, ok, err := s.geo.Lookup(ctx, name)
	if err != nil {
		return ProvinceFeature{}, err
	}
	if !ok {
		return ProvinceFeature{}, ErrProvinceNotFound
	}
	return feature, nil
}

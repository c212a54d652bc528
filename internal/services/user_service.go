package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/food-passport/api/internal/platform/storage"
	"github.com/food-passport/api/internal/repositories"
)

const (
	defaultAvatarMaxBytes = 5 << 20
	maxUsernameLength     = 64
)

// UserServiceDeps bundles the dependencies required to construct a user service instance. Media
// is optional; without it avatar uploads fail with ErrStorageUnavailable. Cache, when set, drops
// the feed and leaderboard snapshots after profile writes.
type UserServiceDeps struct {
	Users          repositories.UserRepository
	Media          MediaUploader
	Cache          CacheInvalidator
	Logger         Logger
	AvatarMaxBytes int64
	Clock          func() time.Time
	IDGen          func() string
}

type userService struct {
	users          repositories.UserRepository
	media          MediaUploader
	cache          CacheInvalidator
	logger         Logger
	avatarMaxBytes int64
	clock          func() time.Time
	idGen          func() string
}

var _ UserService = (*userService)(nil)

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	maxBytes := deps.AvatarMaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultAvatarMaxBytes
	}
	return &userService{
		users:          deps.Users,
		media:          deps.Media,
		cache:          deps.Cache,
		logger:         logger,
		avatarMaxBytes: maxBytes,
		clock:          func() time.Time { return clock().UTC() },
		idGen:          idGen,
	}, nil
}

func (s *userService) Create(ctx context.Context, cmd CreateUserCommand) (User, error) {
	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return User{}, validationError("username", "is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return User{}, validationError("username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, validationError("email", "is invalid")
		}
	}
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		id = s.idGen()
	}

	now := s.clock()
	user := User{
		ID:          id,
		Username:    username,
		Email:       email,
		AvatarURL:   strings.TrimSpace(cmd.AvatarURL),
		CurrentRank: RankNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if repositories.IsConflict(err) {
			return User{}, ErrUserConflict
		}
		return User{}, err
	}
	invalidateSnapshots(ctx, s.cache, s.logger, "users")
	return user, nil
}

func (s *userService) Get(ctx context.Context, userID string) (User, error) {
	userID, err := requireID("user_id", userID)
	if err != nil {
		return User{}, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return user, nil
}

// UploadAvatar stores the image in the media bucket before pointing the profile at it. The user
// must exist before anything is written.
func (s *userService) UploadAvatar(ctx context.Context, cmd UploadAvatarCommand) (User, error) {
	if s.media == nil {
		return User{}, ErrStorageUnavailable
	}
	if _, err := s.Get(ctx, cmd.UserID); err != nil {
		return User{}, err
	}
	if len(cmd.Data) == 0 {
		return User{}, validationError("avatar", "is required")
	}
	if int64(len(cmd.Data)) > s.avatarMaxBytes {
		return User{}, validationError("avatar", fmt.Sprintf("exceeds %d bytes", s.avatarMaxBytes))
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(cmd.ContentType)), "image/") {
		return User{}, validationError("avatar", "must be an image")
	}

	userID := strings.TrimSpace(cmd.UserID)
	url, err := s.media.Put(ctx, storage.Upload{
		Purpose:     storage.PurposeAvatar,
		UserID:      userID,
		UploadID:    s.idGen(),
		ContentType: cmd.ContentType,
		Data:        cmd.Data,
	})
	if err != nil {
		return User{}, fmt.Errorf("user service: upload avatar: %w", err)
	}
	user, err := s.users.UpdateAvatar(ctx, userID, url, s.clock())
	if err != nil {
		if repositories.IsNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	invalidateSnapshots(ctx, s.cache, s.logger, "users")
	return user, nil
}

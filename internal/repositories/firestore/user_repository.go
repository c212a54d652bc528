package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	"github.com/food-passport/api/internal/domain"
	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/repositories"
)

// UserRepository persists users with their passport embedded in the user document. Every new
// passport entry is mirrored into the checkins collection in the same transaction so the activity
// feed can be read without scanning users.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.Collection[userDocument]
	checkins *pfirestore.Collection[checkinDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository binds the users and checkins collections.
func NewUserRepository(provider *pfirestore.Provider) *UserRepository {
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
		checkins: pfirestore.NewCollection[checkinDocument](provider, checkinCollection),
	}
}

func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	return r.users.Create(ctx, user.ID, fromDomainUser(user))
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime), nil
}

// FindByIDs skips ids that have no document.
func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	found := make(map[string]domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return found, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	for _, id := range userIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		ref, err := r.users.Doc(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("users.get_all", err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := pfirestore.Decode[userDocument](snap)
		if err != nil {
			return nil, err
		}
		found[doc.ID] = doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime)
	}
	return found, nil
}

// UpdatePassport runs mutate inside a Firestore transaction, so mutate may run more than once
// under contention. Contention that outlasts the provider's attempt budget (Firestore.TxAttempts)
// surfaces as a conflict.
func (r *UserRepository) UpdatePassport(ctx context.Context, userID string, mutate repositories.PassportMutation) (domain.User, error) {
	if mutate == nil {
		return domain.User{}, errors.New("passport mutation is required")
	}
	userRef, err := r.users.Doc(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	checkinRef, err := r.checkins.Ref(ctx)
	if err != nil {
		return domain.User{}, err
	}

	var saved domain.User
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(userRef)
		if err != nil {
			return err
		}
		doc, err := pfirestore.Decode[userDocument](snap)
		if err != nil {
			return err
		}
		user := doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime)
		before := len(user.Passport)
		if err := mutate(&user); err != nil {
			return err
		}
		if err := tx.Set(userRef, fromDomainUser(user)); err != nil {
			return err
		}
		for _, entry := range user.Passport[min(before, len(user.Passport)):] {
			record := checkinDocument{
				UserID:    user.ID,
				FoodKey:   entry.FoodKey,
				CheckinAt: entry.CheckinAt.UTC(),
				ImageURL:  entry.ImageURL,
			}
			if err := tx.Create(checkinRef.Doc(ulid.Make().String()), record); err != nil {
				return err
			}
		}
		saved = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return saved, nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, userID, avatarURL string, at time.Time) (domain.User, error) {
	ref, err := r.users.Doc(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := ref.Update(ctx, []firestore.Update{
		{Path: "avatarUrl", Value: avatarURL},
		{Path: "updatedAt", Value: at.UTC()},
	}); err != nil {
		return domain.User{}, pfirestore.WrapError("users.update_avatar", err)
	}
	return r.FindByID(ctx, userID)
}

// TopByEntryCount relies on the denormalized foodCount field.
func (r *UserRepository) TopByEntryCount(ctx context.Context, limit int) ([]domain.User, error) {
	docs, err := r.users.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("foodCount", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime))
	}
	return users, nil
}

// CheckinRepository reads the flattened checkins collection.
type CheckinRepository struct {
	checkins *pfirestore.Collection[checkinDocument]
}

var _ repositories.CheckinRepository = (*CheckinRepository)(nil)

// NewCheckinRepository binds the checkins collection.
func NewCheckinRepository(provider *pfirestore.Provider) *CheckinRepository {
	return &CheckinRepository{checkins: pfirestore.NewCollection[checkinDocument](provider, checkinCollection)}
}

func (r *CheckinRepository) Recent(ctx context.Context, limit int) ([]domain.CheckinRecord, error) {
	docs, err := r.checkins.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("checkinAt", firestore.Desc).OrderBy("userId", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	records := make([]domain.CheckinRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, domain.CheckinRecord{
			UserID: doc.Data.UserID,
			Entry: domain.PassportEntry{
				FoodKey:   doc.Data.FoodKey,
				CheckinAt: doc.Data.CheckinAt,
				ImageURL:  doc.Data.ImageURL,
			},
		})
	}
	return records, nil
}

type userDocument struct {
	Username        string             `firestore:"username"`
	Email           string             `firestore:"email"`
	AvatarURL       string             `firestore:"avatarUrl"`
	CurrentRank     string             `firestore:"currentRank"`
	Passport        []passportDocument `firestore:"passport"`
	UnlockedRegions []string           `firestore:"unlockedRegions"`
	FoodCount       int                `firestore:"foodCount"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	UpdatedAt       time.Time          `firestore:"updatedAt"`
}

type passportDocument struct {
	FoodKey   string    `firestore:"foodKey"`
	CheckinAt time.Time `firestore:"checkinAt"`
	ImageURL  string    `firestore:"imageUrl,omitempty"`
}

type checkinDocument struct {
	UserID    string    `firestore:"userId"`
	FoodKey   string    `firestore:"foodKey"`
	CheckinAt time.Time `firestore:"checkinAt"`
	ImageURL  string    `firestore:"imageUrl,omitempty"`
}

func (d userDocument) toDomain(id string, created, updated time.Time) domain.User {
	user := domain.User{
		ID:              id,
		Username:        d.Username,
		Email:           d.Email,
		AvatarURL:       d.AvatarURL,
		CurrentRank:     d.CurrentRank,
		UnlockedRegions: append([]string(nil), d.UnlockedRegions...),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if len(d.Passport) > 0 {
		user.Passport = make([]domain.PassportEntry, 0, len(d.Passport))
		for _, entry := range d.Passport {
			user.Passport = append(user.Passport, domain.PassportEntry{
				FoodKey:   entry.FoodKey,
				CheckinAt: entry.CheckinAt,
				ImageURL:  entry.ImageURL,
			})
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = created
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = updated
	}
	return user
}

func fromDomainUser(user domain.User) userDocument {
	doc := userDocument{
		Username:        user.Username,
		Email:           strings.ToLower(strings.TrimSpace(user.Email)),
		AvatarURL:       user.AvatarURL,
		CurrentRank:     user.CurrentRank,
		UnlockedRegions: append([]string{}, user.UnlockedRegions...),
		FoodCount:       user.EntryCount(),
		CreatedAt:       user.CreatedAt.UTC(),
		UpdatedAt:       user.UpdatedAt.UTC(),
	}
	doc.Passport = make([]passportDocument, 0, len(user.Passport))
	for _, entry := range user.Passport {
		doc.Passport = append(doc.Passport, passportDocument{
			FoodKey:   entry.FoodKey,
			CheckinAt: entry.CheckinAt.UTC(),
			ImageURL:  entry.ImageURL,
		})
	}
	return doc
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/repositories"
)

type userRepository struct{ s *store }

func (r userRepository) Insert(_ context.Context, user domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.users[user.ID]; exists {
		return repositories.NewConflictError("users.insert")
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r userRepository) FindByID(_ context.Context, userID string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[userID]
	if !ok {
		return domain.User{}, repositories.NewNotFoundError("users.get")
	}
	return cloneUser(user), nil
}

func (r userRepository) FindByIDs(_ context.Context, userIDs []string) (map[string]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	found := make(map[string]domain.User, len(userIDs))
	for _, id := range userIDs {
		if user, ok := r.s.users[id]; ok {
			found[id] = cloneUser(user)
		}
	}
	return found, nil
}

func (r userRepository) UpdatePassport(_ context.Context, userID string, mutate repositories.PassportMutation) (domain.User, error) {
	lock := r.s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.RLock()
	current, ok := r.s.users[userID]
	r.s.mu.RUnlock()
	if !ok {
		return domain.User{}, repositories.NewNotFoundError("users.update_passport")
	}

	next := cloneUser(current)
	if err := mutate(&next); err != nil {
		return domain.User{}, err
	}

	r.s.mu.Lock()
	r.s.users[userID] = cloneUser(next)
	r.s.mu.Unlock()
	return next, nil
}

func (r userRepository) UpdateAvatar(_ context.Context, userID, avatarURL string, at time.Time) (domain.User, error) {
	lock := r.s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[userID]
	if !ok {
		return domain.User{}, repositories.NewNotFoundError("users.update_avatar")
	}
	user.AvatarURL = avatarURL
	user.UpdatedAt = at
	r.s.users[userID] = user
	return cloneUser(user), nil
}

func (r userRepository) TopByEntryCount(_ context.Context, limit int) ([]domain.User, error) {
	r.s.mu.RLock()
	users := make([]domain.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		users = append(users, cloneUser(user))
	}
	r.s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if ci, cj := users[i].EntryCount(), users[j].EntryCount(); ci != cj {
			return ci > cj
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

type checkinRepository struct{ s *store }

func (r checkinRepository) Recent(_ context.Context, limit int) ([]domain.CheckinRecord, error) {
	r.s.mu.RLock()
	var records []domain.CheckinRecord
	for id, user := range r.s.users {
		for _, entry := range user.Passport {
			records = append(records, domain.CheckinRecord{UserID: id, Entry: entry})
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Entry.CheckinAt, records[j].Entry.CheckinAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].UserID < records[j].UserID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func cloneUser(user domain.User) domain.User {
	user.Passport = append([]domain.PassportEntry(nil), user.Passport...)
	user.UnlockedRegions = append([]string(nil), user.UnlockedRegions...)
	return user
}

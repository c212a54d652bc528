package domain

import "time"

// PassportEntry is a single food check-in. Entries are never edited or removed.
type PassportEntry struct {
	FoodKey   string
	CheckinAt time.Time
	ImageURL  string
}

// User owns a passport and the progression state derived from it.
type User struct {
	ID              string
	Username        string
	Email           string
	AvatarURL       string
	CurrentRank     string
	Passport        []PassportEntry
	UnlockedRegions []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EntryCount returns the number of check-ins recorded for the user.
func (u User) EntryCount() int {
	return len(u.Passport)
}

// NextRank is the next milestone a user is working towards.
type NextRank struct {
	Name   string
	Target int
}

// Progress reports the current entry count against the next milestone.
type Progress struct {
	Current  int
	NextRank NextRank
}

// RecentFood decorates a passport entry with catalog display fields.
type RecentFood struct {
	FoodKey    string
	Name       string
	Location   string
	RegionName string
	Image      string
	Tag        string
	CheckinAt  time.Time
}

// Achievement is a badge derived from unlocked regions.
type Achievement struct {
	ID          string
	Title       string
	Description string
	Earned      bool
}

// UserProgression is the derived read view over a user's passport.
type UserProgression struct {
	UserID          string
	Username        string
	AvatarURL       string
	Entries         []PassportEntry
	UnlockedRegions []string
	CurrentRank     string
	Progress        Progress
	RecentFoods     []RecentFood
	Achievements    []Achievement
}

// CheckinRecord is a passport entry flattened with its owner, used for cross-user feeds.
type CheckinRecord struct {
	UserID string
	Entry  PassportEntry
}

// Activity is one row of the recent activity feed.
type Activity struct {
	UserID     string
	Username   string
	AvatarURL  string
	FoodKey    string
	FoodName   string
	RegionName string
	CheckinAt  time.Time
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	UserID      string
	Username    string
	AvatarURL   string
	CurrentRank string
	FoodCount   int
}

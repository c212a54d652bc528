package domain

import "time"

// FoodRecord is a catalog entry. Key is the canonical label emitted by the prediction service
// and doubles as the storage identifier.
type FoodRecord struct {
	Key                string
	DisplayName        string
	RegionName         string
	Story              string
	EatingInstructions string
	ImageURL           string
	CreatedAt          time.Time
}

// CultureCard is the story view of a catalog entry.
type CultureCard struct {
	FoodKey            string
	DisplayName        string
	RegionName         string
	Story              string
	EatingInstructions string
	ImageURL           string
}

package handlers

import (
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/services"
)

type foodPayload struct {
	ID           string `json:"_id"`
	NameKey      string `json:"name_key"`
	NameVI       string `json:"name_vi"`
	ProvinceName string `json:"province_name"`
	HowToEat     string `json:"how_to_eat,omitempty"`
	Story        string `json:"story,omitempty"`
	Image        string `json:"image,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toFoodPayload(food services.FoodRecord) foodPayload {
	return foodPayload{
		ID:           food.Key,
		NameKey:      food.Key,
		NameVI:       food.DisplayName,
		ProvinceName: food.RegionName,
		HowToEat:     food.EatingInstructions,
		Story:        food.Story,
		Image:        food.ImageURL,
		CreatedAt:    formatTime(food.CreatedAt),
	}
}

// scanFoodPayload is the trimmed food shape the scan screen consumes.
type scanFoodPayload struct {
	ID           string `json:"_id"`
	NameKey      string `json:"name_key"`
	NameVI       string `json:"name_vi"`
	ProvinceName string `json:"province_name"`
	HowToEat     string `json:"how_to_eat"`
}

type modelDetailPayload struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type votingResultPayload struct {
	Prediction  string         `json:"prediction"`
	Confidence  float64        `json:"confidence"`
	Votes       map[string]int `json:"votes"`
	TotalModels int            `json:"total_models"`
}

type aiCouncilPayload struct {
	BestMatch    string                        `json:"best_match"`
	Confidence   float64                       `json:"confidence"`
	ModelDetails map[string]modelDetailPayload `json:"model_details"`
	VotingResult votingResultPayload           `json:"voting_result"`
	Agreement    map[string]string             `json:"agreement"`
}

type scanResponse struct {
	Food      scanFoodPayload  `json:"food"`
	AICouncil aiCouncilPayload `json:"ai_council"`
	AILogID   string           `json:"ai_log_id,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
}

func toScanResponse(result services.ScanResult) scanResponse {
	details := make(map[string]modelDetailPayload, len(result.Predictions.Models))
	for id, model := range result.Predictions.Models {
		details[id] = modelDetailPayload{Prediction: model.Label, Confidence: model.Confidence}
	}
	votes := make(map[string]int, len(result.Predictions.Voting.Votes))
	for label, n := range result.Predictions.Voting.Votes {
		votes[label] = n
	}
	agreement := make(map[string]string, len(result.Verdict.Tags))
	for id, tag := range result.Verdict.Tags {
		agreement[id] = string(tag)
	}

	return scanResponse{
		Food: scanFoodPayload{
			ID:           result.Food.Key,
			NameKey:      result.Food.Key,
			NameVI:       result.Food.DisplayName,
			ProvinceName: result.Food.RegionName,
			HowToEat:     result.Food.EatingInstructions,
		},
		AICouncil: aiCouncilPayload{
			BestMatch:    result.Verdict.BestMatch,
			Confidence:   result.Verdict.Confidence,
			ModelDetails: details,
			VotingResult: votingResultPayload{
				Prediction:  result.Predictions.Voting.Prediction,
				Confidence:  result.Predictions.Voting.Confidence,
				Votes:       votes,
				TotalModels: result.Predictions.Voting.TotalModels,
			},
			Agreement: agreement,
		},
		AILogID:  result.AuditLogID,
		ImageURL: result.ImageURL,
	}
}

type cultureCardPayload struct {
	FoodID       string `json:"food_id"`
	NameKey      string `json:"name_key"`
	NameVI       string `json:"name_vi"`
	ProvinceName string `json:"province_name"`
	Story        string `json:"story"`
	HowToEat     string `json:"how_to_eat,omitempty"`
	Image        string `json:"image,omitempty"`
}

func toCultureCardPayload(card services.CultureCard) cultureCardPayload {
	return cultureCardPayload{
		FoodID:       card.FoodKey,
		NameKey:      card.FoodKey,
		NameVI:       card.DisplayName,
		ProvinceName: card.RegionName,
		Story:        card.Story,
		HowToEat:     card.EatingInstructions,
		Image:        card.ImageURL,
	}
}

type passportEntryPayload struct {
	FoodID      string `json:"food_id"`
	CheckinDate string `json:"checkin_date"`
	ImageURL    string `json:"image_url,omitempty"`
}

type nextRankPayload struct {
	Name   string `json:"name"`
	Target int    `json:"target"`
}

type progressPayload struct {
	Current  int             `json:"current"`
	NextRank nextRankPayload `json:"next_rank"`
}

type recentFoodPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	ProvinceName string `json:"province_name"`
	Image        string `json:"image"`
	Tag          string `json:"tag,omitempty"`
}

type achievementPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Earned      bool   `json:"earned"`
}

type passportResponse struct {
	FoodPassport      []passportEntryPayload `json:"food_passport"`
	UnlockedProvinces []string               `json:"unlocked_provinces"`
	CurrentRank       string                 `json:"current_rank"`
	Avatar            string                 `json:"avatar,omitempty"`
	Progress          progressPayload        `json:"progress"`
	RecentFoods       []recentFoodPayload    `json:"recent_foods"`
	Achievements      []achievementPayload   `json:"achievements"`
}

func toPassportResponse(p services.UserProgression) passportResponse {
	entries := make([]passportEntryPayload, 0, len(p.Entries))
	for _, entry := range p.Entries {
		entries = append(entries, passportEntryPayload{
			FoodID:      entry.FoodKey,
			CheckinDate: formatTime(entry.CheckinAt),
			ImageURL:    entry.ImageURL,
		})
	}
	recent := make([]recentFoodPayload, 0, len(p.RecentFoods))
	for _, food := range p.RecentFoods {
		recent = append(recent, recentFoodPayload{
			ID:           food.FoodKey,
			Name:         food.Name,
			Location:     food.Location,
			ProvinceName: food.RegionName,
			Image:        food.Image,
			Tag:          food.Tag,
		})
	}
	unlocked := p.UnlockedRegions
	if unlocked == nil {
		unlocked = []string{}
	}

	return passportResponse{
		FoodPassport:      entries,
		UnlockedProvinces: unlocked,
		CurrentRank:       p.CurrentRank,
		Avatar:            p.AvatarURL,
		Progress: progressPayload{
			Current: p.Progress.Current,
			NextRank: nextRankPayload{
				Name:   p.Progress.NextRank.Name,
				Target: p.Progress.NextRank.Target,
			},
		},
		RecentFoods:  recent,
		Achievements: toAchievementPayloads(p.Achievements),
	}
}

func toAchievementPayloads(achievements []services.Achievement) []achievementPayload {
	out := make([]achievementPayload, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, achievementPayload{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Earned:      a.Earned,
		})
	}
	return out
}

type userPayload struct {
	ID                string   `json:"id"`
	Username          string   `json:"username"`
	Email             string   `json:"email,omitempty"`
	Avatar            string   `json:"avatar,omitempty"`
	CurrentRank       string   `json:"current_rank"`
	FoodPassportCount int      `json:"food_passport_count"`
	UnlockedProvinces []string `json:"unlocked_provinces"`
	CreatedAt         string   `json:"created_at,omitempty"`
}

func toUserPayload(user services.User) userPayload {
	unlocked := user.UnlockedRegions
	if unlocked == nil {
		unlocked = []string{}
	}
	return userPayload{
		ID:                user.ID,
		Username:          user.Username,
		Email:             user.Email,
		Avatar:            user.AvatarURL,
		CurrentRank:       user.CurrentRank,
		FoodPassportCount: user.EntryCount(),
		UnlockedProvinces: unlocked,
		CreatedAt:         formatTime(user.CreatedAt),
	}
}

type activityPayload struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Avatar       string `json:"avatar,omitempty"`
	FoodID       string `json:"food_id"`
	FoodName     string `json:"food_name"`
	ProvinceName string `json:"province_name"`
	CheckinDate  string `json:"checkin_date"`
}

func toActivityPayloads(activities []services.Activity) []activityPayload {
	out := make([]activityPayload, 0, len(activities))
	for _, a := range activities {
		out = append(out, activityPayload{
			UserID:       a.UserID,
			Username:     a.Username,
			Avatar:       a.AvatarURL,
			FoodID:       a.FoodKey,
			FoodName:     a.FoodName,
			ProvinceName: a.RegionName,
			CheckinDate:  formatTime(a.CheckinAt),
		})
	}
	return out
}

type leaderboardPayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar,omitempty"`
	CurrentRank string `json:"current_rank"`
	FoodCount   int    `json:"food_count"`
}

func toLeaderboardPayloads(entries []services.LeaderboardEntry) []leaderboardPayload {
	out := make([]leaderboardPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardPayload{
			ID:          e.UserID,
			Username:    e.Username,
			Avatar:      e.AvatarURL,
			CurrentRank: e.CurrentRank,
			FoodCount:   e.FoodCount,
		})
	}
	return out
}

type aiLogPayload struct {
	ID              string            `json:"_id"`
	UserID          string            `json:"user_id,omitempty"`
	UploadTimestamp string            `json:"upload_timestamp"`
	FinalPrediction string            `json:"final_prediction"`
	Confidence      float64           `json:"confidence"`
	ModelDetails    map[string]string `json:"model_details"`
}

func toAILogPayload(entry services.AuditLogEntry) aiLogPayload {
	details := entry.PerModelPredictions
	if details == nil {
		details = map[string]string{}
	}
	return aiLogPayload{
		ID:              entry.ID,
		UserID:          entry.UserID,
		UploadTimestamp: formatTime(entry.Timestamp),
		FinalPrediction: entry.FinalPrediction,
		Confidence:      entry.Confidence,
		ModelDetails:    details,
	}
}

func toAILogPayloads(entries []services.AuditLogEntry) []aiLogPayload {
	out := make([]aiLogPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toAILogPayload(entry))
	}
	return out
}

type coordinatePayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type provincePayload struct {
	Name     string             `json:"name"`
	Center   *coordinatePayload `json:"center,omitempty"`
	Unlocked bool               `json:"unlocked"`
}

type provinceDetailPayload struct {
	Name        string                `json:"name"`
	Center      *coordinatePayload    `json:"center,omitempty"`
	Coordinates [][]coordinatePayload `json:"coordinates"`
}

func toCoordinate(point *domain.GeoPoint) *coordinatePayload {
	if point == nil {
		return nil
	}
	return &coordinatePayload{Lat: point.Latitude, Lng: point.Longitude}
}

func toProvincePayloads(statuses []services.ProvinceStatus) []provincePayload {
	out := make([]provincePayload, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, provincePayload{
			Name:     s.Name,
			Center:   toCoordinate(s.Center),
			Unlocked: s.Unlocked,
		})
	}
	return out
}

func toProvinceDetailPayload(feature services.ProvinceFeature) provinceDetailPayload {
	rings := make([][]coordinatePayload, 0, len(feature.Rings))
	for _, ring := range feature.Rings {
		points := make([]coordinatePayload, 0, len(ring))
		for _, p := range ring {
			points = append(points, coordinatePayload{Lat: p.Latitude, Lng: p.Longitude})
		}
		rings = append(rings, points)
	}
	return provinceDetailPayload{
		Name:        feature.Name,
		Center:      toCoordinate(feature.Center),
		Coordinates: rings,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

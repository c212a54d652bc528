package prediction

import "github.com/food-passport/api/internal/domain"

type predictResponse struct {
	BestMatch    string                     `json:"best_match"`
	Confidence   float64                    `json:"confidence"`
	ModelDetails map[string]modelPrediction `json:"model_details"`
	VotingResult votingResult               `json:"voting_result"`
}

type modelPrediction struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type votingResult struct {
	Prediction  string         `json:"prediction"`
	Confidence  float64        `json:"confidence"`
	Votes       map[string]int `json:"votes"`
	TotalModels int            `json:"total_models"`
}

func (r predictResponse) toDomain() domain.PredictionSet {
	models := make(map[string]domain.ModelPrediction, len(r.ModelDetails))
	for id, m := range r.ModelDetails {
		models[id] = domain.ModelPrediction{Label: m.Prediction, Confidence: m.Confidence}
	}
	votes := make(map[string]int, len(r.VotingResult.Votes))
	for label, n := range r.VotingResult.Votes {
		votes[label] = n
	}
	return domain.PredictionSet{
		Models:     models,
		BestMatch:  r.BestMatch,
		Confidence: r.Confidence,
		Voting: domain.VotingResult{
			Prediction:  r.VotingResult.Prediction,
			Confidence:  r.VotingResult.Confidence,
			Votes:       votes,
			TotalModels: r.VotingResult.TotalModels,
		},
	}
}

package services

import (
	"math"

	"github.com/food-passport/api/internal/domain"
)

const (
	agreementErrorBelow = 0.5
	agreementWarnBelow  = 0.7
)

// Classify tags each model by how it agrees with the ensemble best match. The first matching rule
// wins: a different label is warn, then confidence below 0.5 is error, below 0.7 is warn, and
// everything else is ok. set is never modified.
func Classify(set PredictionSet) ConsensusVerdict {
	verdict := ConsensusVerdict{
		BestMatch:  set.BestMatch,
		Confidence: clampConfidence(set.Confidence),
		Tags:       make(map[string]domain.AgreementTag, len(set.Models)),
	}
	for id, model := range set.Models {
		verdict.Tags[id] = agreementTag(model, set.BestMatch)
	}
	return verdict
}

func agreementTag(model domain.ModelPrediction, bestMatch string) domain.AgreementTag {
	switch {
	case model.Label != bestMatch:
		return domain.AgreementWarn
	case model.Confidence < agreementErrorBelow:
		return domain.AgreementError
	case model.Confidence < agreementWarnBelow:
		return domain.AgreementWarn
	default:
		return domain.AgreementOK
	}
}

func clampConfidence(value float64) float64 {
	switch {
	case math.IsNaN(value), value < 0:
		return 0
	case value > 1:
		return 1
	}
	return value
}

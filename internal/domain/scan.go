package domain

import "time"

// AgreementTag classifies how a single model agrees with the ensemble best match.
type AgreementTag string

const (
	// AgreementOK marks a confident model that agrees with the best match.
	AgreementOK AgreementTag = "ok"
	// AgreementWarn marks a disagreeing or lukewarm model.
	AgreementWarn AgreementTag = "warn"
	// AgreementError marks a model that agrees but with low confidence.
	AgreementError AgreementTag = "error"
)

// ModelPrediction is the output of one ensemble member.
type ModelPrediction struct {
	Label      string
	Confidence float64
}

// VotingResult is the prediction service's own majority vote summary.
type VotingResult struct {
	Prediction  string
	Confidence  float64
	Votes       map[string]int
	TotalModels int
}

// PredictionSet is the ensemble output for one scanned image.
type PredictionSet struct {
	Models     map[string]ModelPrediction
	BestMatch  string
	Confidence float64
	Voting     VotingResult
}

// ConsensusVerdict carries the best match and a per-model agreement tag.
type ConsensusVerdict struct {
	BestMatch  string
	Confidence float64
	Tags       map[string]AgreementTag
}

// AuditLogEntry records the outcome of a single scan. Entries are append-only.
type AuditLogEntry struct {
	ID                  string
	UserID              string
	Timestamp           time.Time
	FinalPrediction     string
	Confidence          float64
	PerModelPredictions map[string]string
}

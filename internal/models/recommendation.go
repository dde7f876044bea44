package models

// Recommendation names the model that did best across a run.
type Recommendation struct {
	RecommendedModel string                `json:"recommended_model"`
	HeuristicScore   float64               `json:"heuristic_score"`
	Reason           string                `json:"reason"`
	WinnerMarginPct  float64               `json:"winner_margin_pct"`
	Significant      bool                  `json:"significant"`
	Weights          RecommendationWeights `json:"weights"`
	ModelScores      []ModelScore          `json:"all_models"`
}

// RecommendationWeights defines the weighting scheme for heuristic scoring.
type RecommendationWeights struct {
	AverageScore float64 `json:"average_score"`
	Coverage     float64 `json:"coverage"`
	Consistency  float64 `json:"consistency"`
}

// ModelScore holds the heuristic score and rank for a single model.
type ModelScore struct {
	ModelID        string             `json:"model_id"`
	HeuristicScore float64            `json:"heuristic_score"`
	Rank           int                `json:"rank"`
	Scores         map[string]float64 `json:"component_scores,omitempty"`
}

package engine

import "encoding/json"

// Request and response shapes for the external PureSkin analysis engine.
// The engine is a black box: endpoints the gateway only relays keep their
// payloads as raw JSON, endpoints the gateway post-processes get typed views.

// DupeRequest is the payload for POST /analyze/find_dupes.
type DupeRequest struct {
	Ingredients       string  `json:"ingredients"`
	TargetPrice       float64 `json:"target_price"`
	PrimaryCategory   *string `json:"primary_category,omitempty"`
	SecondaryCategory *string `json:"secondary_category,omitempty"`
	TopN              int     `json:"top_n"`
}

// DupeProduct is one candidate product as returned by the engine. Field set
// varies between engine versions, so unknown keys are preserved verbatim.
type DupeProduct map[string]interface{}

// DupeResponse is the engine's duplicate-search result.
type DupeResponse struct {
	FoundCheaperDupe bool          `json:"found_cheaper_dupe"`
	BestDupe         DupeProduct   `json:"best_dupe,omitempty"`
	Alternatives     []DupeProduct `json:"alternatives"`
	Message          string        `json:"message,omitempty"`
}

// ReviewRequest is the payload for POST /analyze/review.
type ReviewRequest struct {
	Text     string `json:"text"`
	SkinType string `json:"skin_type"`
}

// ReviewResult is the engine's sentiment analysis of a review.
type ReviewResult struct {
	Sentiment         string  `json:"sentiment"`
	Confidence        float64 `json:"confidence"`
	SkinTypeMentioned string  `json:"skin_type_mentioned,omitempty"`
}

// QualityRequest is the payload for POST /analyze/quality.
type QualityRequest struct {
	ProductName string `json:"product_name"`
	BrandName   string `json:"brand_name"`
	Ingredients string `json:"ingredients"`
}

// RecommendRequest is the payload for POST /analyze/recommend.
type RecommendRequest struct {
	SkinType string   `json:"skin_type"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Category *string  `json:"category,omitempty"`
}

// HealthStatus is the engine's GET /health document.
type HealthStatus struct {
	Status         string `json:"status"`
	OCRAvailable   bool   `json:"ocr_available"`
	EngineLoaded   bool   `json:"engine_loaded"`
	ProductsLoaded int    `json:"products_loaded"`
}

// RawResult is an engine response relayed to the client without
// reinterpretation.
type RawResult = json.RawMessage

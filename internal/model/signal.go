package model

// Direction is long or short.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Signal is the output of the signal engine: a scored, direction-tagged
// candidate. TP/SL/ATR are filled in by the Tracker once armed.
type Signal struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	Score          float64   `json:"score"`
	MTFScore       float64   `json:"mtf_score"`
	MTFAligned     bool      `json:"mtf_aligned"`
	TriggerEvents  []EventType `json:"trigger_events"`
	FeaturesSnapshot Features `json:"features_snapshot"`
	Timestamp      int64     `json:"timestamp"`

	// Filled by the Tracker once armed.
	EntryPrice float64 `json:"entry_price,omitempty"`
	TPPrice    float64 `json:"tp_price,omitempty"`
	SLPrice    float64 `json:"sl_price,omitempty"`
	ATR        float64 `json:"atr,omitempty"`

	// AIResult, when the optional overlay runs and does not abstain.
	AIResult *AIResult `json:"ai_result,omitempty"`
}

// AIResult is the attached prediction from the optional AI overlay.
type AIResult struct {
	ProbabilityLong  float64 `json:"probability_long"`
	ProbabilityShort float64 `json:"probability_short"`
	Confidence       float64 `json:"confidence"`
}

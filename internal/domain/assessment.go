package domain

import (
	"time"
)

// RiskTier buckets a total score into a pricing band.
type RiskTier string

const (
	RiskLow       RiskTier = "low"
	RiskModerate  RiskTier = "moderate"
	RiskHigh      RiskTier = "high"
	RiskSuperHigh RiskTier = "super_high"
)

// Decision constants for the assessment outcome.
const (
	DecisionApproved = "approved"
	DecisionDeclined = "declined"
)

// FieldScore is the per-field breakdown entry of a score run.
type FieldScore struct {
	Section string  `json:"section"`
	Field   string  `json:"field"`
	Kind    string  `json:"kind"` // missing, boolean, categorical, numeric
	Weight  float64 `json:"weight"`
	Points  float64 `json:"points"`
}

// ScoreResult is the outcome of scoring one profile against a rule set.
type ScoreResult struct {
	TotalScore     float64      `json:"total_score"`
	RawScore       float64      `json:"raw_score"`
	MaxPossible    float64      `json:"max_possible"`
	AutoDecline    bool         `json:"auto_decline"`
	DeclineReasons []string     `json:"decline_reasons,omitempty"`
	RiskTier       RiskTier     `json:"risk_tier"`
	Breakdown      []FieldScore `json:"breakdown,omitempty"`
}

// Payment frequency values for an offer.
const (
	PayDaily  = "Daily"
	PayWeekly = "Weekly"
)

// Offer is one priced funding option.
type Offer struct {
	Position         int     `json:"position"` // 1 is the strongest offer
	Amount           float64 `json:"amount"`
	FactorRate       float64 `json:"factor_rate"`
	TermDays         int     `json:"term_days"`
	PaymentFrequency string  `json:"payment_frequency"` // Daily or Weekly
	PaymentAmount    float64 `json:"payment_amount"`
	TotalRepayment   float64 `json:"total_repayment"`
	BuyRate          float64 `json:"buy_rate"`
	CommissionPct    float64 `json:"commission_percentage"`
}

// Assessment is the complete stored result of one applicant evaluation.
type Assessment struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenant_id"`
	Profile   Profile            `json:"profile"`
	Score     ScoreResult        `json:"score"`
	Offers    []Offer            `json:"offers,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID       string `json:"trace_id"`
	ScoreMs       int64  `json:"score_ms"`
	OffersMs      int64  `json:"offers_ms"`
	TotalMs       int64  `json:"total_ms"`
	FieldsScored  int    `json:"fields_scored"`
	EngineVersion string `json:"engine_version"`
}

// Decision derives the outcome: declined on auto-decline or when the
// score lands below every pricing tier.
func (a *Assessment) Decision() string {
	if a.Score.AutoDecline || len(a.Offers) == 0 {
		return DecisionDeclined
	}
	return DecisionApproved
}

// AssessmentResponse is the API shape of an assessment.
type AssessmentResponse struct {
	AssessmentID string             `json:"assessment_id"`
	TenantID     string             `json:"tenant_id"`
	Decision     string             `json:"decision"`
	Score        ScoreResult        `json:"score"`
	Offers       []Offer            `json:"offers"`
	CreatedAt    time.Time          `json:"created_at"`
	Metadata     AssessmentMetadata `json:"metadata"`
}

// ToResponse converts an Assessment to its API response. Offers is
// never null in the response, declined applicants get an empty list.
func (a *Assessment) ToResponse() *AssessmentResponse {
	offers := a.Offers
	if offers == nil {
		offers = []Offer{}
	}
	return &AssessmentResponse{
		AssessmentID: a.ID,
		TenantID:     a.TenantID,
		Decision:     a.Decision(),
		Score:        a.Score,
		Offers:       offers,
		CreatedAt:    a.CreatedAt,
		Metadata:     a.Metadata,
	}
}

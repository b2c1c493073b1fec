// Package assess orchestrates one applicant evaluation: score the
// profile, apply the auto-decline gate, classify risk, and price offers.
package assess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/offers"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// EngineVersion is stamped into assessment metadata.
const EngineVersion = "kestrel-1.0"

// Processor runs the assessment pipeline over a scorecard snapshot.
type Processor struct {
	generator *offers.Generator
	version   string
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		generator: offers.NewGenerator(),
		version:   EngineVersion,
	}
}

// Input carries one assessment request through the pipeline.
type Input struct {
	TenantID  string
	TraceID   string
	Profile   domain.Profile
	Snapshot  *rules.Snapshot
	Now       time.Time // zero means time.Now
	StartTime time.Time
}

// Process evaluates a profile end to end. The only error is a
// *scoring.DataError from an unparseable date field.
func (p *Processor) Process(ctx context.Context, input *Input) (*domain.Assessment, error) {
	start := time.Now()

	scoreStart := time.Now()
	result, err := scoring.Score(input.Profile, input.Snapshot.RuleSet, scoring.Options{
		Now:       input.Now,
		Overrides: input.Snapshot.Overrides,
	})
	if err != nil {
		return nil, err
	}
	scoreMs := time.Since(scoreStart).Milliseconds()

	// The hard gate zeroes the normalized score but keeps raw/max for
	// transparency.
	declined, reasons := scoring.EvaluateDecline(input.Profile)
	if declined {
		result.AutoDecline = true
		result.DeclineReasons = reasons
		result.TotalScore = 0
		result.RiskTier = scoring.ClassifyRisk(0)
	}

	offersStart := time.Now()
	var priced []domain.Offer
	if !result.AutoDecline {
		priced = p.generator.Generate(result.TotalScore, input.Profile)
	}
	offersMs := time.Since(offersStart).Milliseconds()

	startTime := input.StartTime
	if startTime.IsZero() {
		startTime = start
	}

	a := &domain.Assessment{
		ID:        uuid.New().String(),
		TenantID:  input.TenantID,
		Profile:   input.Profile,
		Score:     result,
		Offers:    priced,
		CreatedAt: time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:       input.TraceID,
			ScoreMs:       scoreMs,
			OffersMs:      offersMs,
			TotalMs:       time.Since(startTime).Milliseconds(),
			FieldsScored:  len(result.Breakdown),
			EngineVersion: p.version,
		},
	}
	return a, nil
}

package scoring

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ClassifyRisk maps a normalized score to its risk band. Bands are
// inclusive on their lower bound: 80 is low, 60 is moderate, 50 is high.
func ClassifyRisk(totalScore float64) domain.RiskTier {
	switch {
	case totalScore >= 80:
		return domain.RiskLow
	case totalScore >= 60:
		return domain.RiskModerate
	case totalScore >= 50:
		return domain.RiskHigh
	default:
		return domain.RiskSuperHigh
	}
}

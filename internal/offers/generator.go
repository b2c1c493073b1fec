// Package offers prices funding offers for an eligible applicant score.
package offers

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Tier is one pricing band: six descending base amounts, a factor-rate
// range, and six term lengths. Offers interpolate linearly across the
// factor range so position 1 always carries the best rate.
type Tier struct {
	MinScore  float64
	Amounts   [6]float64
	MinFactor float64
	MaxFactor float64
	TermsDays [6]int
}

// Pricing tiers in descending score order. The first tier whose
// MinScore the applicant meets is selected.
var tiers = []Tier{
	{
		MinScore:  80,
		Amounts:   [6]float64{100000, 85000, 70000, 50000, 35000, 25000},
		MinFactor: 1.15,
		MaxFactor: 1.28,
		TermsDays: [6]int{365, 300, 240, 180, 120, 90},
	},
	{
		MinScore:  70,
		Amounts:   [6]float64{75000, 60000, 45000, 35000, 25000, 15000},
		MinFactor: 1.22,
		MaxFactor: 1.35,
		TermsDays: [6]int{300, 240, 180, 150, 120, 90},
	},
	{
		MinScore:  60,
		Amounts:   [6]float64{50000, 35000, 25000, 15000, 10000, 5000},
		MinFactor: 1.28,
		MaxFactor: 1.42,
		TermsDays: [6]int{240, 180, 150, 120, 90, 60},
	},
	{
		MinScore:  50,
		Amounts:   [6]float64{35000, 25000, 15000, 10000, 7500, 5000},
		MinFactor: 1.35,
		MaxFactor: 1.49,
		TermsDays: [6]int{180, 150, 120, 100, 80, 60},
	},
}

const (
	// Offers shrunk below this amount by affordability capping are
	// dropped rather than quoted.
	minViableAmount = 5000.0

	// Terms at or above this length pay weekly, shorter pay daily.
	weeklyTermDays = 90

	// Buy rate never falls below this floor.
	buyRateFloor = 1.10

	weeklyPaymentShare = 0.15
	dailyPaymentShare  = 0.05 / 30
)

// Generator prices offers from a score and optional deposit figures.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns at most six ranked offers, best first. Scores below
// every tier return an empty slice. When the profile carries deposit
// data, amounts are capped to what the applicant's cash flow can
// service.
func (g *Generator) Generate(totalScore float64, profile domain.Profile) []domain.Offer {
	tier, ok := selectTier(totalScore)
	if !ok {
		return []domain.Offer{}
	}

	monthlyDeposits := 0.0
	if profile != nil {
		monthlyDeposits = profile.Number(domain.FieldMonthlyDeposits, 0)
	}
	ceiling := capacityCeiling(monthlyDeposits)

	offers := make([]domain.Offer, 0, 6)
	for i := 0; i < 6; i++ {
		factor := round4(tier.MinFactor + (tier.MaxFactor-tier.MinFactor)*float64(i)/5)

		amount := tier.Amounts[i]
		if ceiling > 0 && amount > ceiling {
			amount = ceiling
		}

		term := tier.TermsDays[i]
		offer, ok := priceOffer(amount, factor, term, monthlyDeposits)
		if !ok {
			continue
		}

		offer.Position = len(offers) + 1
		offer.BuyRate = buyRate(factor, i)
		offer.CommissionPct = round2((offer.FactorRate - offer.BuyRate) * 100)
		offers = append(offers, offer)
	}
	return offers
}

// selectTier picks the highest-minimum tier the score qualifies for.
func selectTier(score float64) (Tier, bool) {
	for _, t := range tiers {
		if score >= t.MinScore {
			return t, true
		}
	}
	return Tier{}, false
}

// capacityCeiling bounds the principal by monthly deposit volume.
// Returns 0 when no deposit data was supplied (no cap).
func capacityCeiling(monthlyDeposits float64) float64 {
	switch {
	case monthlyDeposits <= 0:
		return 0
	case monthlyDeposits >= 100000:
		return monthlyDeposits * 2.5
	case monthlyDeposits >= 50000:
		return monthlyDeposits * 2.0
	case monthlyDeposits >= 25000:
		return monthlyDeposits * 1.5
	case monthlyDeposits >= 20000:
		return monthlyDeposits * 1.0
	default:
		return 15000
	}
}

// priceOffer computes repayment terms for one amount, shrinking the
// principal when the payment would exceed the applicant's cash-flow
// share. Returns false when capping pushes the amount below the viable
// minimum.
func priceOffer(amount, factor float64, termDays int, monthlyDeposits float64) (domain.Offer, bool) {
	frequency := domain.PayDaily
	periods := float64(termDays)
	if termDays >= weeklyTermDays {
		frequency = domain.PayWeekly
		periods = float64(termDays) / 7
	}

	if monthlyDeposits > 0 {
		maxPayment := monthlyDeposits * dailyPaymentShare
		if frequency == domain.PayWeekly {
			maxPayment = monthlyDeposits * weeklyPaymentShare
		}
		payment := amount * factor / periods
		if payment > maxPayment {
			amount = amount * maxPayment / payment
		}
	}

	if amount < minViableAmount {
		return domain.Offer{}, false
	}

	amount = round2(amount)
	total := round2(amount * factor)
	payment := round2(total / periods)

	return domain.Offer{
		Amount:           amount,
		FactorRate:       factor,
		TermDays:         termDays,
		PaymentFrequency: frequency,
		PaymentAmount:    payment,
		TotalRepayment:   total,
	}, true
}

// buyRate discounts the quoted factor by a margin that widens with
// position, floored so the buy side never prices below 1.10.
func buyRate(factor float64, index int) float64 {
	reduction := 0.02 + 0.01*float64(index)
	return round4(math.Max(factor-reduction, buyRateFloor))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Package insights computes underwriting analytics over stored
// assessments: approval rates, risk distribution, score trends, and
// profile field statistics.
package insights

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultWindowDays bounds how far back analytics look by default.
const DefaultWindowDays = 30

// Service reads assessments from the repository and aggregates them.
type Service struct {
	repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// ReasonCount pairs a decline reason with its occurrence count.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// FieldCount pairs a profile field with how many assessments supplied it.
type FieldCount struct {
	Field string `json:"field"`
	Count int    `json:"count"`
}

// Summary is the aggregate view over one tenant's recent assessments.
type Summary struct {
	WindowDays        int                     `json:"window_days"`
	TotalAssessments  int                     `json:"total_assessments"`
	Approved          int                     `json:"approved"`
	Declined          int                     `json:"declined"`
	ApprovalRate      float64                 `json:"approval_rate"`
	AverageScore      float64                 `json:"average_score"`
	RiskDistribution  map[domain.RiskTier]int `json:"risk_distribution"`
	TopDeclineReasons []ReasonCount           `json:"top_decline_reasons"`
	FieldAverages     map[string]float64      `json:"field_averages"`
	TopStringFields   []FieldCount            `json:"top_string_fields"`
}

// Summary aggregates all assessments in the window. The average score
// only counts non-declined applicants so hard-gated zeros do not skew
// the scorecard picture.
func (s *Service) Summary(ctx context.Context, tenantID string, windowDays int) (*Summary, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	assessments, err := s.repo.ListAssessmentsSince(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		WindowDays:       windowDays,
		TotalAssessments: len(assessments),
		RiskDistribution: make(map[domain.RiskTier]int),
		FieldAverages:    make(map[string]float64),
	}

	var scoreSum float64
	scored := 0
	reasonCounts := make(map[string]int)
	fieldSums := make(map[string]float64)
	fieldCounts := make(map[string]int)
	stringCounts := make(map[string]int)

	for _, a := range assessments {
		out.RiskDistribution[a.Score.RiskTier]++

		if a.Decision() == domain.DecisionApproved {
			out.Approved++
		} else {
			out.Declined++
		}

		if !a.Score.AutoDecline {
			scoreSum += a.Score.TotalScore
			scored++
		}
		for _, reason := range a.Score.DeclineReasons {
			reasonCounts[reason]++
		}

		for field, v := range a.Profile {
			switch t := v.(type) {
			case float64:
				fieldSums[field] += t
				fieldCounts[field]++
			case string:
				if t != "" {
					stringCounts[field]++
				}
			}
		}
	}

	if out.TotalAssessments > 0 {
		out.ApprovalRate = round2(100 * float64(out.Approved) / float64(out.TotalAssessments))
	}
	if scored > 0 {
		out.AverageScore = round2(scoreSum / float64(scored))
	}

	for reason, count := range reasonCounts {
		out.TopDeclineReasons = append(out.TopDeclineReasons, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(out.TopDeclineReasons, func(i, j int) bool {
		a, b := out.TopDeclineReasons[i], out.TopDeclineReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})

	for field, sum := range fieldSums {
		out.FieldAverages[field] = round2(sum / float64(fieldCounts[field]))
	}

	for field, count := range stringCounts {
		out.TopStringFields = append(out.TopStringFields, FieldCount{Field: field, Count: count})
	}
	sort.Slice(out.TopStringFields, func(i, j int) bool {
		a, b := out.TopStringFields[i], out.TopStringFields[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Field < b.Field
	})

	return out, nil
}

// TrendPoint is one day's aggregate.
type TrendPoint struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	Assessments  int     `json:"assessments"`
	Approved     int     `json:"approved"`
	Declined     int     `json:"declined"`
	AverageScore float64 `json:"average_score"`
}

// Trends groups assessments by calendar day, oldest first. Days with no
// traffic are omitted.
func (s *Service) Trends(ctx context.Context, tenantID string, windowDays int) ([]TrendPoint, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	assessments, err := s.repo.ListAssessmentsSince(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}

	type dayAgg struct {
		count, approved, declined int
		scoreSum                  float64
		scored                    int
	}
	days := make(map[string]*dayAgg)

	for _, a := range assessments {
		key := a.CreatedAt.UTC().Format("2006-01-02")
		agg := days[key]
		if agg == nil {
			agg = &dayAgg{}
			days[key] = agg
		}
		agg.count++
		if a.Decision() == domain.DecisionApproved {
			agg.approved++
		} else {
			agg.declined++
		}
		if !a.Score.AutoDecline {
			agg.scoreSum += a.Score.TotalScore
			agg.scored++
		}
	}

	points := make([]TrendPoint, 0, len(days))
	for date, agg := range days {
		p := TrendPoint{
			Date:        date,
			Assessments: agg.count,
			Approved:    agg.approved,
			Declined:    agg.declined,
		}
		if agg.scored > 0 {
			p.AverageScore = round2(agg.scoreSum / float64(agg.scored))
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	return points, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

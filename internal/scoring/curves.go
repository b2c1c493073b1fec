package scoring

import (
	"math"
	"strings"
)

// NumericCurve maps a numeric field value and its configured weight to a
// point contribution.
type NumericCurve interface {
	Points(value, weight float64) float64
}

// Step is one threshold/multiplier pair of a step curve.
type Step struct {
	Threshold  float64
	Multiplier float64
}

// StepCurve is a piecewise-constant multiplier curve. Steps are checked
// in order and the first match wins: ascending curves match value >=
// threshold (steps listed best first), descending curves match value <=
// threshold (steps listed best first).
type StepCurve struct {
	Name       string
	Descending bool
	Steps      []Step
	Default    float64
}

// Multiplier resolves the value's multiplier on the curve.
func (c StepCurve) Multiplier(v float64) float64 {
	for _, s := range c.Steps {
		if c.Descending {
			if v <= s.Threshold {
				return s.Multiplier
			}
		} else if v >= s.Threshold {
			return s.Multiplier
		}
	}
	return c.Default
}

// Points applies the curve, bounded to [0, weight].
func (c StepCurve) Points(value, weight float64) float64 {
	return clamp(c.Multiplier(value)*weight, 0, weight)
}

// linearPctCurve scores weight × (1 − min(value,100)/100). Used for
// utilization where every extra point of usage costs score.
type linearPctCurve struct{}

func (linearPctCurve) Points(value, weight float64) float64 {
	v := clamp(value, 0, 100)
	return weight * (1 - v/100)
}

// percentCurve scores weight × min(value,100)/100 for generic
// percentage-named fields.
type percentCurve struct{}

func (percentCurve) Points(value, weight float64) float64 {
	return weight * clamp(value, 0, 100) / 100
}

// fallbackCurve scores min(value, weight) for fields no named curve
// claims: the raw value contributes directly, capped at the weight.
type fallbackCurve struct{}

func (fallbackCurve) Points(value, weight float64) float64 {
	return clamp(value, 0, weight)
}

// Canonical numeric curves. Thresholds follow the most complete revision
// of the scorecard; earlier drifting variants are superseded.
var (
	creditScoreCurve = StepCurve{Name: "credit_score", Steps: []Step{
		{750, 1.0}, {700, 0.85}, {650, 0.65}, {600, 0.4}, {550, 0.2},
	}}

	inquiriesCurve = StepCurve{Name: "inquiries", Descending: true, Steps: []Step{
		{2, 1.0}, {4, 0.7}, {6, 0.4}, {10, 0.2},
	}}

	delinquencyCurve = StepCurve{Name: "delinquency", Descending: true, Steps: []Step{
		{0, 1.0}, {1, 0.7}, {3, 0.4}, {5, 0.2},
	}}

	negativeDaysCurve = StepCurve{Name: "negative_days", Descending: true, Steps: []Step{
		{0, 1.0}, {3, 0.7}, {7, 0.4}, {14, 0.2},
	}}

	businessScoreCurve = StepCurve{Name: "business_score", Steps: []Step{
		{90, 1.0}, {76, 0.9}, {51, 0.7}, {26, 0.4}, {11, 0.2},
	}}

	balanceCurve = StepCurve{Name: "balance", Steps: []Step{
		{25000, 1.0}, {10000, 0.8}, {5000, 0.6}, {2500, 0.4}, {1000, 0.2},
	}}

	depositsCurve = StepCurve{Name: "deposits", Steps: []Step{
		{100000, 1.0}, {50000, 0.8}, {25000, 0.6}, {20000, 0.4}, {10000, 0.2},
	}}

	frequencyCurve = StepCurve{Name: "frequency", Steps: []Step{
		{15, 1.0}, {10, 0.8}, {5, 0.5}, {3, 0.2},
	}}

	distanceCurve = StepCurve{Name: "distance", Descending: true, Steps: []Step{
		{5, 1.0}, {15, 0.8}, {30, 0.5}, {50, 0.3},
	}, Default: 0.1}

	assetCurve = StepCurve{Name: "asset", Steps: []Step{
		{500000, 1.0}, {250000, 0.85}, {100000, 0.7}, {50000, 0.5},
		{25000, 0.3}, {10000, 0.15},
	}}

	yearsCurve = StepCurve{Name: "years", Steps: []Step{
		{10, 1.0}, {5, 0.8}, {3, 0.6}, {2, 0.4}, {1, 0.2},
	}, Default: 0.1}
)

// numericRoute binds field-name markers to a curve. Routes are checked
// in precedence order; the first marker found as a substring wins.
type numericRoute struct {
	markers []string
	curve   NumericCurve
}

var numericRoutes = []numericRoute{
	{[]string{"credit_score"}, creditScoreCurve},
	{[]string{"utilization"}, linearPctCurve{}},
	{[]string{"inquiries"}, inquiriesCurve},
	{[]string{"past_due", "nsf_count"}, delinquencyCurve},
	{[]string{"negative_days"}, negativeDaysCurve},
	{[]string{"intelliscore", "stability_score"}, businessScoreCurve},
	{[]string{"balance", "daily_average_balance"}, balanceCurve},
	{[]string{"deposits", "monthly_deposits"}, depositsCurve},
	{[]string{"frequency"}, frequencyCurve},
	{[]string{"distance"}, distanceCurve},
	{[]string{"asset", "value", "amount", "capital", "collateral"}, assetCurve},
	{[]string{"years"}, yearsCurve},
	{[]string{"pct", "percent"}, percentCurve{}},
}

// RouteNumeric picks the scoring curve for a numeric field by name.
func RouteNumeric(field string) NumericCurve {
	f := strings.ToLower(field)
	for _, r := range numericRoutes {
		for _, m := range r.markers {
			if strings.Contains(f, m) {
				return r.curve
			}
		}
	}
	return fallbackCurve{}
}

// CategoryCurve maps known category strings to multipliers. Unknown
// categories take the default. Multipliers may exceed 1.0 only for the
// industry bonus curve.
type CategoryCurve struct {
	Name    string
	Table   map[string]float64
	Default float64
}

// Points applies the table, bounded to [0, 1.2×weight].
func (c CategoryCurve) Points(category string, weight float64) float64 {
	mult, ok := c.Table[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		mult = c.Default
	}
	return clamp(mult*weight, 0, 1.2*weight)
}

var (
	bureauRatingCurve = CategoryCurve{Name: "bureau_rating", Table: map[string]float64{
		"a+": 1.0, "a": 1.0, "a-": 0.9, "b": 0.8, "c": 0.6, "d": 0.4, "e": 0.2, "f": 0,
	}}

	bbbRatingCurve = CategoryCurve{Name: "bbb_rating", Table: map[string]float64{
		"a+": 1.0, "a": 0.9, "a-": 0.85, "b+": 0.75, "b": 0.65, "b-": 0.55,
		"c+": 0.45, "c": 0.4, "d": 0.2, "f": 0,
	}}

	backgroundCurve = CategoryCurve{Name: "background_check", Table: map[string]float64{
		"clear": 1.0, "clean": 1.0, "minor": 0.5, "issues": 0, "flagged": 0,
	}}

	verificationCurve = CategoryCurve{Name: "verification", Table: map[string]float64{
		"verified": 1.0, "confirmed": 1.0, "pending": 0.5, "unverified": 0,
	}}

	// Receivable-heavy industries carry a bonus multiplier above 1.0.
	industryCurve = CategoryCurve{Name: "industry", Default: 0.3, Table: map[string]float64{
		"trucking": 1.2, "logistics": 1.2, "freight": 1.2, "transportation": 1.1,
		"construction": 1.1, "medical": 1.0, "healthcare": 1.0,
		"manufacturing": 0.9, "wholesale": 0.85, "ecommerce": 0.8,
		"professional services": 0.75, "retail": 0.7, "restaurant": 0.6,
		"hospitality": 0.55,
	}}

	locationCurve = CategoryCurve{Name: "location", Table: map[string]float64{
		"prime": 1.0, "excellent": 1.0, "good": 0.8, "average": 0.6,
		"fair": 0.4, "poor": 0.2,
	}}

	digitalPresenceCurve = CategoryCurve{Name: "digital_presence", Table: map[string]float64{
		"established": 1.0, "strong": 1.0, "moderate": 0.6, "basic": 0.4,
		"weak": 0.3, "minimal": 0.3, "none": 0,
	}}

	// Unrouted categorical values score zero but the field still counts
	// toward the denominator.
	defaultCategoryCurve = CategoryCurve{Name: "default"}
)

type categoryRoute struct {
	markers []string
	curve   CategoryCurve
}

var categoryRoutes = []categoryRoute{
	{[]string{"bbb"}, bbbRatingCurve},
	{[]string{"background"}, backgroundCurve},
	{[]string{"verif"}, verificationCurve},
	{[]string{"industry"}, industryCurve},
	{[]string{"location"}, locationCurve},
	{[]string{"digital", "online", "web"}, digitalPresenceCurve},
	{[]string{"rating", "bureau", "paynet", "experian", "grade"}, bureauRatingCurve},
}

// RouteCategory picks the category table for a field by name.
func RouteCategory(field string) CategoryCurve {
	f := strings.ToLower(field)
	for _, r := range categoryRoutes {
		for _, m := range r.markers {
			if strings.Contains(f, m) {
				return r.curve
			}
		}
	}
	return defaultCategoryCurve
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

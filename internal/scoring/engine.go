package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DataError reports a profile value that cannot be scored and must not
// be silently defaulted. It names the bad value so the caller can report
// a correctable validation failure.
type DataError struct {
	Field  string
	Value  string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("field %s: %s: %q", e.Field, e.Reason, e.Value)
}

// Override replaces the builtin curve for one field. Compiled from a
// rule set expression by the rules engine.
type Override func(value any, weight float64) (float64, error)

// Options tunes one score run.
type Options struct {
	// Now is the reference time for date-derived fields. Zero means
	// time.Now; tests pass a fixed time for reproducible runs.
	Now time.Time

	// Overrides maps field name to a compiled expression that replaces
	// the builtin curve for that field.
	Overrides map[string]Override
}

// Accepted layouts for business_start_date.
var startDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
}

// Score evaluates a profile against a rule set. It is a pure function
// of its inputs plus opts.Now; it never applies the auto-decline gate.
// The only error it returns is a *DataError for an unparseable
// business_start_date.
func Score(profile domain.Profile, rs *domain.RuleSet, opts Options) (domain.ScoreResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	includeSecondary := IncludeSecondaryOwner(profile)

	var raw, max float64
	var breakdown []domain.FieldScore

	// Map order is randomized; walk sections and fields sorted so the
	// breakdown is stable across identical runs.
	for _, section := range sortedKeys(rs.Sections) {
		fields := rs.Sections[section]
		for _, field := range sortedKeys(fields) {
			rule := fields[field]

			if isSecondaryOwnerField(field) && !includeSecondary {
				continue
			}

			value, err := resolveValue(profile, field, now)
			if err != nil {
				return domain.ScoreResult{}, err
			}

			fv := Classify(value)

			// Advisory only: absent means absent, not zero.
			if field == domain.FieldUnderwriterAdj && fv.Kind == KindMissing {
				continue
			}

			points := fieldPoints(field, fv, rule, opts.Overrides)
			raw += points
			max += rule.Weight

			breakdown = append(breakdown, domain.FieldScore{
				Section: section,
				Field:   field,
				Kind:    fv.Kind.String(),
				Weight:  rule.Weight,
				Points:  round2(points),
			})
		}
	}

	total := 0.0
	if max > 0 {
		total = round2(100 * raw / max)
	}

	return domain.ScoreResult{
		TotalScore:  total,
		RawScore:    round2(raw),
		MaxPossible: round2(max),
		RiskTier:    ClassifyRisk(total),
		Breakdown:   breakdown,
	}, nil
}

// resolveValue returns the raw value to score, deriving
// years_in_business from business_start_date when the years field was
// not supplied. A blank years value counts as not supplied, so form
// frontends that send "" still get the derivation. An unparseable start
// date is fatal for the request.
func resolveValue(profile domain.Profile, field string, now time.Time) (any, error) {
	if field == domain.FieldYearsInBusiness && !profile.Supplied(field) && profile.Supplied(domain.FieldBusinessStartDate) {
		raw := profile.Text(domain.FieldBusinessStartDate)
		start, err := parseStartDate(raw)
		if err != nil {
			return nil, &DataError{
				Field:  domain.FieldBusinessStartDate,
				Value:  raw,
				Reason: "unparseable date",
			}
		}
		years := now.Sub(start).Hours() / 24 / 365.25
		return round2(math.Max(years, 0)), nil
	}
	return profile[field], nil
}

func parseStartDate(s string) (time.Time, error) {
	for _, layout := range startDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", s)
}

// fieldPoints scores one classified value against its rule.
func fieldPoints(field string, fv FieldValue, rule domain.FieldRule, overrides map[string]Override) float64 {
	if ov, ok := overrides[field]; ok && fv.Kind != KindMissing {
		if pts, err := ov(rawFor(fv), rule.Weight); err == nil {
			return clamp(pts, 0, 1.2*rule.Weight)
		}
		// A failing override falls through to the builtin curve so one
		// bad expression cannot zero a live scorecard.
	}

	switch fv.Kind {
	case KindBoolean:
		good := fv.Bool
		if NegativeIsGood(field) {
			good = !good
		}
		if good {
			return rule.Weight
		}
		return 0
	case KindCategorical:
		return RouteCategory(field).Points(fv.Text, rule.Weight)
	case KindNumeric:
		return RouteNumeric(field).Points(fv.Num, rule.Weight)
	default:
		return 0
	}
}

// rawFor converts a classified value back to the dynamic form override
// expressions receive.
func rawFor(fv FieldValue) any {
	switch fv.Kind {
	case KindBoolean:
		return fv.Bool
	case KindCategorical:
		return fv.Text
	case KindNumeric:
		return fv.Num
	default:
		return nil
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

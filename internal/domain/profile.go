package domain

import (
	"strconv"
	"strings"
)

// Profile is the flat applicant payload submitted for assessment.
// Values are dynamically typed: absent, string, bool, or number, exactly
// as they arrive from the JSON layer. Unknown fields are carried along but
// ignored by the scoring engine.
type Profile map[string]any

// Control field names recognized across the pipeline.
const (
	FieldOwner1Pct         = "owner1_ownership_pct"
	FieldOwner2Prefix      = "owner2_"
	FieldOwner2Pct         = "owner2_ownership_pct"
	FieldYearsInBusiness   = "years_in_business"
	FieldBusinessStartDate = "business_start_date"
	FieldMonthlyDeposits   = "monthly_deposits"
	FieldDepositFrequency  = "deposit_frequency"
	FieldUnderwriterAdj    = "underwriter_adjustment"
)

// Has reports whether the field is present with a non-nil value.
func (p Profile) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Supplied reports whether the field carries a usable value: present,
// non-nil, and not a blank string. Fields that arrive as "" from form
// frontends are treated as not supplied.
func (p Profile) Supplied(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Number parses the field as a float64. Numeric strings are accepted.
// Returns the fallback when the field is absent or unparseable.
func (p Profile) Number(key string, fallback float64) float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fallback
		}
		return f
	default:
		return fallback
	}
}

// Text returns the field as a trimmed string, or "" when absent or not
// string-valued.
func (p Profile) Text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Owner1Pct returns the primary owner's ownership percentage, defaulting
// to 100 when the field is absent or does not parse. Never fails.
func (p Profile) Owner1Pct() float64 {
	return p.Number(FieldOwner1Pct, 100)
}

// SecondaryOwnerProvided reports whether at least one owner2_* field other
// than owner2_ownership_pct carries a non-empty value.
func (p Profile) SecondaryOwnerProvided() bool {
	for key, v := range p {
		if !strings.HasPrefix(key, FieldOwner2Prefix) || key == FieldOwner2Pct {
			continue
		}
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if strings.TrimSpace(s) != "" {
				return true
			}
			continue
		}
		return true
	}
	return false
}

// Package scoring implements the applicant risk score: field
// classification, data-driven scoring curves, the ownership inclusion
// policy, auto-decline gating, and risk tier bands.
package scoring

import (
	"strconv"
	"strings"
)

// Kind tags the classified type of a profile field value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindBoolean
	KindCategorical
	KindNumeric
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindCategorical:
		return "categorical"
	case KindNumeric:
		return "numeric"
	default:
		return "missing"
	}
}

// FieldValue is the classified form of one raw profile value. Exactly
// one of Bool, Text, Num is meaningful, selected by Kind.
type FieldValue struct {
	Kind Kind
	Bool bool
	Text string
	Num  float64
}

var truthyWords = map[string]bool{
	"yes": true, "true": true, "good": true, "passed": true,
}

var falsyWords = map[string]bool{
	"no": true, "false": true, "bad": true, "failed": true,
}

// Classify resolves a raw dynamic value into its scoring type. Strings
// are trimmed and matched case-insensitively; numeric strings may carry
// currency formatting ($, commas, %).
func Classify(v any) FieldValue {
	switch val := v.(type) {
	case nil:
		return FieldValue{Kind: KindMissing}
	case bool:
		return FieldValue{Kind: KindBoolean, Bool: val}
	case float64:
		return FieldValue{Kind: KindNumeric, Num: val}
	case float32:
		return FieldValue{Kind: KindNumeric, Num: float64(val)}
	case int:
		return FieldValue{Kind: KindNumeric, Num: float64(val)}
	case int64:
		return FieldValue{Kind: KindNumeric, Num: float64(val)}
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return FieldValue{Kind: KindMissing}
		}
		lower := strings.ToLower(s)
		if truthyWords[lower] {
			return FieldValue{Kind: KindBoolean, Bool: true}
		}
		if falsyWords[lower] {
			return FieldValue{Kind: KindBoolean, Bool: false}
		}
		if n, err := strconv.ParseFloat(stripNumeric(s), 64); err == nil {
			return FieldValue{Kind: KindNumeric, Num: n}
		}
		return FieldValue{Kind: KindCategorical, Text: lower}
	default:
		return FieldValue{Kind: KindMissing}
	}
}

// stripNumeric removes currency and percent formatting so values like
// "$12,500.00" or "85%" parse as numbers.
func stripNumeric(s string) string {
	r := strings.NewReplacer("$", "", ",", "", "%", "")
	return strings.TrimSpace(r.Replace(s))
}

// negativeIsGoodMarkers flags fields where a "no" answer carries full
// weight, such as criminal background or outstanding liens.
var negativeIsGoodMarkers = []string{
	"criminal", "lien", "bankrupt", "judgment", "felony", "eviction", "default_history",
}

// NegativeIsGood reports whether a boolean field scores inverted.
func NegativeIsGood(field string) bool {
	f := strings.ToLower(field)
	for _, m := range negativeIsGoodMarkers {
		if strings.Contains(f, m) {
			return true
		}
	}
	return false
}

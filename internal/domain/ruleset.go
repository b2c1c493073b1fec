package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FieldRule configures how one profile field is scored.
type FieldRule struct {
	// Weight is the maximum points the field can contribute. Required,
	// must be >= 0.
	Weight float64 `json:"weight"`

	// Expression is an optional CEL override for the builtin scoring
	// curve. Variables: value (dyn), weight (double). Must evaluate to
	// a numeric point contribution.
	Expression string `json:"expression,omitempty"`
}

// Section maps field name to its rule within one scorecard section.
type Section map[string]FieldRule

// RuleSet is a versioned scorecard configuration: sections of weighted
// fields. The zero value is not usable; build via ParseRuleSetDocument.
type RuleSet struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	Version   int                `json:"version"`
	Sections  map[string]Section `json:"sections"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Document renders the scorecard back to its wire form, the
// section -> field -> rule object the API accepts.
func (rs *RuleSet) Document() ([]byte, error) {
	return json.MarshalIndent(rs.Sections, "", "  ")
}

// FieldCount returns the number of configured fields across all sections.
func (rs *RuleSet) FieldCount() int {
	n := 0
	for _, sec := range rs.Sections {
		n += len(sec)
	}
	return n
}

// fieldRuleDoc mirrors FieldRule with a pointer weight so a missing
// weight can be told apart from an explicit zero.
type fieldRuleDoc struct {
	Weight     *float64 `json:"weight"`
	Expression string   `json:"expression"`
}

// ParseRuleSetDocument parses and validates a scorecard document.
// Every offending field is reported, not just the first: a bad config
// should fail loudly at load time with the full list.
func ParseRuleSetDocument(data []byte) (*RuleSet, error) {
	var doc map[string]map[string]fieldRuleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid rule set document: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("rule set document has no sections")
	}

	var problems []string
	sections := make(map[string]Section, len(doc))
	for name, fields := range doc {
		sec := make(Section, len(fields))
		for field, fr := range fields {
			switch {
			case fr.Weight == nil:
				problems = append(problems, fmt.Sprintf("%s.%s: missing weight", name, field))
			case *fr.Weight < 0:
				problems = append(problems, fmt.Sprintf("%s.%s: negative weight %v", name, field, *fr.Weight))
			default:
				sec[field] = FieldRule{Weight: *fr.Weight, Expression: fr.Expression}
			}
		}
		sections[name] = sec
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid rule set: %s", strings.Join(problems, "; "))
	}

	return &RuleSet{Sections: sections, UpdatedAt: time.Now().UTC()}, nil
}

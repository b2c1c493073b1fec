// Package rules owns scorecard loading, validation, and hot reload.
// The scoring engine itself is pure; this package hands it a consistent
// rule-set snapshot per call.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Snapshot is one immutable loaded scorecard: the parsed rule set plus
// the compiled curve overrides for fields that declared an expression.
type Snapshot struct {
	RuleSet   *domain.RuleSet
	Overrides map[string]scoring.Override
	LoadedAt  time.Time
}

// Engine holds the active scorecard snapshot. Readers get a consistent
// value per call; LoadRuleSet swaps atomically under the write lock.
type Engine struct {
	mu      sync.RWMutex
	env     *cel.Env
	current *Snapshot
}

// NewEngine creates the engine with the override expression environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("weight", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// ValidateDocument parses and fully compiles a scorecard document
// without touching the loaded snapshot. Returns the parsed rule set so
// callers can persist it after validation.
func (e *Engine) ValidateDocument(data []byte) (*domain.RuleSet, error) {
	rs, err := domain.ParseRuleSetDocument(data)
	if err != nil {
		return nil, err
	}
	if _, err := e.compileOverrides(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadRuleSet compiles and installs a rule set as the active snapshot.
// A compile failure leaves the previous snapshot in place.
func (e *Engine) LoadRuleSet(rs *domain.RuleSet) error {
	overrides, err := e.compileOverrides(rs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.current = &Snapshot{
		RuleSet:   rs,
		Overrides: overrides,
		LoadedAt:  time.Now().UTC(),
	}
	e.mu.Unlock()
	return nil
}

// Snapshot returns the active scorecard, or nil when none is loaded.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// FieldCount reports the number of scorable fields in the active
// snapshot.
func (e *Engine) FieldCount() int {
	s := e.Snapshot()
	if s == nil {
		return 0
	}
	return s.RuleSet.FieldCount()
}

// Close drops the loaded snapshot.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	return nil
}

// compileOverrides compiles every field expression in the document.
// All failures are reported together, load-time config errors should
// name every offending field at once.
func (e *Engine) compileOverrides(rs *domain.RuleSet) (map[string]scoring.Override, error) {
	overrides := make(map[string]scoring.Override)
	var problems []string

	for section, fields := range rs.Sections {
		for field, rule := range fields {
			if rule.Expression == "" {
				continue
			}
			prog, err := e.compileExpression(rule.Expression)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s.%s: %v", section, field, err))
				continue
			}
			overrides[field] = celOverride(prog)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid rule expressions: %s", strings.Join(problems, "; "))
	}
	return overrides, nil
}

func (e *Engine) compileExpression(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("expression must return bool, int, or double, got %s", outputType)
	}

	return e.env.Program(ast)
}

// celOverride wraps a compiled program as a scoring override.
func celOverride(prog cel.Program) scoring.Override {
	return func(value any, weight float64) (float64, error) {
		out, _, err := prog.Eval(map[string]any{
			"value":  value,
			"weight": weight,
		})
		if err != nil {
			return 0, err
		}
		return toPoints(out, weight), nil
	}
}

// toPoints converts a CEL result to a point contribution. Booleans map
// to full weight or zero.
func toPoints(val ref.Val, weight float64) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return weight
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}

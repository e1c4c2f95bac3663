package anonymize

import (
	"context"
	"regexp"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// Engine applies the ordered rule list to staged tables. One engine is
// shared by all workers of a phase; the consistency map carries the
// only mutable state.
type Engine struct {
	rules    []types.AnonymizationRule
	patterns []*regexp.Regexp
	salt     string
	cmap     *ConsistencyMap
	faker    *gofakeit.Faker
	logger   zerolog.Logger
}

// TableResult describes what the engine did to one table
type TableResult struct {
	AnonymizedFields []string
	FieldsByRule     map[string][]string
	Leaks            []string
}

// NewEngine compiles the rule patterns and binds the salt and
// consistency map
func NewEngine(rules []types.AnonymizationRule, salt string, cmap *ConsistencyMap) (*Engine, error) {
	patterns := make([]*regexp.Regexp, len(rules))
	for i, rule := range rules {
		re, err := regexp.Compile("(?i)" + rule.FieldPattern)
		if err != nil {
			return nil, errtag.Configuration.New("rule %q: %v", rule.Name, err)
		}
		patterns[i] = re
	}
	return &Engine{
		rules:    rules,
		patterns: patterns,
		salt:     salt,
		cmap:     cmap,
		faker:    gofakeit.New(0),
		logger:   log.WithComponent("anonymize"),
	}, nil
}

// RuleFor returns the first rule whose pattern matches the column
// name, or nil for implicit passthrough
func (e *Engine) RuleFor(column string) *types.AnonymizationRule {
	for i := range e.rules {
		if e.patterns[i].MatchString(column) {
			return &e.rules[i]
		}
	}
	return nil
}

// AnonymizeTable rewrites the matched columns of t in place.
// fkColumns lists the table's FK columns, which the null strategy must
// never blank. Null cells stay null under every strategy.
func (e *Engine) AnonymizeTable(ctx context.Context, t *stage.Table, fkColumns map[string]bool) (*TableResult, error) {
	result := &TableResult{FieldsByRule: make(map[string][]string)}

	for c := range t.Columns {
		if err := ctx.Err(); err != nil {
			return nil, errtag.Cancelled.Wrap(err)
		}
		col := &t.Columns[c]

		rule := e.RuleFor(col.Name)
		if rule == nil || rule.Strategy == types.StrategyPassthrough {
			continue
		}
		if rule.Strategy == types.StrategyNull && fkColumns[col.Name] {
			e.logger.Warn().
				Str("column", col.Name).
				Str("rule", rule.Name).
				Msg("Null strategy matched an FK column, passing through")
			continue
		}

		if err := e.anonymizeColumn(col, rule); err != nil {
			return nil, err
		}

		result.AnonymizedFields = append(result.AnonymizedFields, col.Name)
		result.FieldsByRule[rule.Name] = append(result.FieldsByRule[rule.Name], col.Name)
		result.Leaks = append(result.Leaks, ScanColumn(rule, col)...)
	}
	return result, nil
}

func (e *Engine) anonymizeColumn(col *stage.Column, rule *types.AnonymizationRule) error {
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		original := stage.Stringify(v)

		var out any
		var err error
		switch rule.Strategy {
		case types.StrategySynthetic:
			var s string
			s, err = e.cmap.Resolve(rule.Name, original, syntheticGenerator(e.faker, rule))
			if err == nil {
				out, err = fitColumnType(col.Type, s)
			}
		case types.StrategyHash:
			out, err = Hash(rule.HashAlgorithm, original, e.salt)
		case types.StrategyToken:
			out = e.cmap.Token(rule.Name, original)
		case types.StrategyNull:
			out = nil
		default:
			return errtag.Configuration.New("rule %q has unknown strategy %q", rule.Name, rule.Strategy)
		}
		if err != nil {
			return err
		}
		col.Values[i] = out
	}

	// Replacement values are strings unless the column's own type
	// could be preserved
	if rule.Strategy != types.StrategyNull && !preservesType(col.Type, rule) {
		col.Type = types.TypeString
	}
	if rule.Strategy == types.StrategyNull {
		col.Nullable = true
	}
	return nil
}

// fitColumnType parses a synthetic string back into the column's
// domain where possible
func fitColumnType(typ types.LogicalType, s string) (any, error) {
	switch typ {
	case types.TypeDate, types.TypeTimestamp:
		ts, err := time.Parse(dateLayout, s)
		if err != nil {
			// Not a date-shaped synthetic value; column degrades to string
			return s, nil
		}
		return ts, nil
	default:
		return s, nil
	}
}

func preservesType(typ types.LogicalType, rule *types.AnonymizationRule) bool {
	if typ == types.TypeString {
		return true
	}
	if rule.Strategy == types.StrategySynthetic && rule.SyntheticType == "date_of_birth" {
		return typ == types.TypeDate || typ == types.TypeTimestamp
	}
	return false
}

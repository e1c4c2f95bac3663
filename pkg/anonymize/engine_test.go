package anonymize

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

func newTestEngine(t *testing.T, rules []types.AnonymizationRule) *Engine {
	t.Helper()
	cmap, err := OpenConsistencyMap(filepath.Join(t.TempDir(), MapFile))
	require.NoError(t, err)
	engine, err := NewEngine(rules, "test-salt", cmap)
	require.NoError(t, err)
	return engine
}

func emailRule() types.AnonymizationRule {
	return types.AnonymizationRule{
		Name:          "email_rule",
		FieldPattern:  "email",
		Strategy:      types.StrategySynthetic,
		SyntheticType: "email",
	}
}

func stringTable(t *testing.T, name string, values ...any) *stage.Table {
	t.Helper()
	tab := stage.NewTable([]types.ColumnSchema{{Name: name, Type: types.TypeString, Nullable: true}})
	for _, v := range values {
		require.NoError(t, tab.AppendRow([]any{v}))
	}
	return tab
}

func TestSyntheticEmailConsistency(t *testing.T) {
	engine := newTestEngine(t, []types.AnonymizationRule{emailRule()})
	tab := stringTable(t, "contact_email", "a@x.com", "b@y.com", "a@x.com")

	result, err := engine.AnonymizeTable(context.Background(), tab, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"contact_email"}, result.AnonymizedFields)
	assert.Empty(t, result.Leaks)

	first, _ := tab.Value("contact_email", 0)
	second, _ := tab.Value("contact_email", 1)
	third, _ := tab.Value("contact_email", 2)

	// Equal originals map to equal outputs
	assert.Equal(t, first, third)
	assert.NotEqual(t, first, second)
	for _, v := range []any{first, second, third} {
		s := v.(string)
		assert.NotContains(t, s, "@x.com")
		assert.NotContains(t, s, "@y.com")
		assert.True(t, strings.HasSuffix(s, "example.org"), "got %q", s)
	}
}

func TestLeakScanFlagsRealEmail(t *testing.T) {
	rule := emailRule()
	col := &stage.Column{
		Name: "contact_email",
		Type: types.TypeString,
		Values: []any{
			"keep@real.com",
			"fake@example.org",
			"fake2@example.org",
		},
	}

	findings := ScanColumn(&rule, col)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "contact_email")
	assert.Contains(t, findings[0], "1 of 3")
	// Findings never echo the suspect value
	assert.NotContains(t, findings[0], "keep@real.com")
}

func TestLeakScanFlagsShortNames(t *testing.T) {
	rule := types.AnonymizationRule{Name: "name_rule", Strategy: types.StrategySynthetic, SyntheticType: "last_name"}
	col := &stage.Column{
		Name:   "last_name",
		Type:   types.TypeString,
		Values: []any{"X", "Morales", nil, "Li"},
	}

	findings := ScanColumn(&rule, col)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "2 of 3")
}

func TestNullPreservation(t *testing.T) {
	rules := []types.AnonymizationRule{
		{Name: "email_rule", FieldPattern: "email", Strategy: types.StrategySynthetic, SyntheticType: "email"},
		{Name: "ssn_rule", FieldPattern: "ssn", Strategy: types.StrategyHash},
		{Name: "ref_rule", FieldPattern: "external_ref", Strategy: types.StrategyToken},
	}
	engine := newTestEngine(t, rules)

	tab := stage.NewTable([]types.ColumnSchema{
		{Name: "email", Type: types.TypeString, Nullable: true},
		{Name: "ssn", Type: types.TypeString, Nullable: true},
		{Name: "external_ref", Type: types.TypeString, Nullable: true},
	})
	require.NoError(t, tab.AppendRow([]any{nil, nil, nil}))
	require.NoError(t, tab.AppendRow([]any{"a@b.com", "123-45-6789", "r-1"}))

	_, err := engine.AnonymizeTable(context.Background(), tab, nil)
	require.NoError(t, err)

	for _, col := range []string{"email", "ssn", "external_ref"} {
		v, _ := tab.Value(col, 0)
		assert.Nil(t, v, "column %s row 0", col)
		v, _ = tab.Value(col, 1)
		assert.NotNil(t, v, "column %s row 1", col)
	}
}

func TestJoinPreservationThroughHashedIDs(t *testing.T) {
	// P(id, name), C(p_id): hashing id and p_id under one rule keeps
	// the equijoin cardinality
	rules := []types.AnonymizationRule{
		{Name: "id_rule", FieldPattern: "^(p_)?id$", Strategy: types.StrategyHash},
	}
	engine := newTestEngine(t, rules)

	parents := stringTable(t, "id", "p1", "p2")
	children := stringTable(t, "p_id", "p1", "p1", "p2", "p1")

	_, err := engine.AnonymizeTable(context.Background(), parents, nil)
	require.NoError(t, err)
	_, err = engine.AnonymizeTable(context.Background(), children, nil)
	require.NoError(t, err)

	parentIDs := map[any]int{}
	for i := 0; i < parents.Rows(); i++ {
		v, _ := parents.Value("id", i)
		parentIDs[v]++
	}
	matches := 0
	for i := 0; i < children.Rows(); i++ {
		v, _ := children.Value("p_id", i)
		matches += parentIDs[v]
	}
	assert.Equal(t, 4, matches)
}

func TestTokenStrategyCountsPerRule(t *testing.T) {
	rules := []types.AnonymizationRule{
		{Name: "ref_rule", FieldPattern: "ref", Strategy: types.StrategyToken},
	}
	engine := newTestEngine(t, rules)
	tab := stringTable(t, "ref", "alpha", "beta", "alpha", "gamma")

	_, err := engine.AnonymizeTable(context.Background(), tab, nil)
	require.NoError(t, err)

	v0, _ := tab.Value("ref", 0)
	v1, _ := tab.Value("ref", 1)
	v2, _ := tab.Value("ref", 2)
	v3, _ := tab.Value("ref", 3)
	assert.Equal(t, "TOKEN_00000001", v0)
	assert.Equal(t, "TOKEN_00000002", v1)
	assert.Equal(t, v0, v2)
	assert.Equal(t, "TOKEN_00000003", v3)
}

func TestHashIsSaltedAndTruncated(t *testing.T) {
	h1, err := Hash("sha256", "alice@example.com", "salt-a")
	require.NoError(t, err)
	h2, err := Hash("sha256", "alice@example.com", "salt-b")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Len(t, h1, 16)

	h3, err := Hash("sha512", "alice@example.com", "salt-a")
	require.NoError(t, err)
	assert.Len(t, h3, 16)
	assert.NotEqual(t, h1, h3)

	_, err = Hash("md5", "x", "s")
	assert.Error(t, err)
}

func TestNullStrategySkipsFKColumns(t *testing.T) {
	rules := []types.AnonymizationRule{
		{Name: "note_rule", FieldPattern: "_id$|note", Strategy: types.StrategyNull},
	}
	engine := newTestEngine(t, rules)

	tab := stage.NewTable([]types.ColumnSchema{
		{Name: "school_id", Type: types.TypeString},
		{Name: "note", Type: types.TypeString, Nullable: true},
	})
	require.NoError(t, tab.AppendRow([]any{"s-1", "sensitive"}))

	result, err := engine.AnonymizeTable(context.Background(), tab, map[string]bool{"school_id": true})
	require.NoError(t, err)

	fk, _ := tab.Value("school_id", 0)
	note, _ := tab.Value("note", 0)
	assert.Equal(t, "s-1", fk)
	assert.Nil(t, note)
	assert.Equal(t, []string{"note"}, result.AnonymizedFields)
}

func TestFirstMatchingRuleGoverns(t *testing.T) {
	rules := []types.AnonymizationRule{
		{Name: "specific", FieldPattern: "^work_email$", Strategy: types.StrategyToken},
		{Name: "general", FieldPattern: "email", Strategy: types.StrategyNull},
	}
	engine := newTestEngine(t, rules)

	assert.Equal(t, "specific", engine.RuleFor("work_email").Name)
	assert.Equal(t, "general", engine.RuleFor("home_email").Name)
	assert.Nil(t, engine.RuleFor("school_id"))
}

package derive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
	"github.com/kasuganosora/sqlfuzz/pkg/scope"
)

func testUniverse() *scope.Universe {
	return scope.NewUniverse([]*scope.Object{
		{Schema: "app", Name: "users", Kind: scope.KindTable, Columns: []string{"id", "name", "email"}},
		{Schema: "app", Name: "orders", Kind: scope.KindTable, Columns: []string{"id", "user_id", "total"}},
		{Schema: "app", Name: "items", Kind: scope.KindTable, Columns: []string{"id", "sku", "price"}},
	})
}

type testRule struct {
	lhs    string
	rhs    []string
	weight int
	gen    grammar.GenID
	rep    grammar.RepID
}

func buildTestGrammar(t *testing.T, defs []testRule) (*grammar.Grammar, *grammar.Symbol) {
	t.Helper()
	syms := grammar.NewSymbolTable()
	g := grammar.New(syms)
	for _, def := range defs {
		lhs := syms.Intern(def.lhs)
		rhs := make([]*grammar.Symbol, len(def.rhs))
		for i, name := range def.rhs {
			rhs[i] = syms.Intern(name)
		}
		rule := g.Rules().Intern(lhs, rhs)
		require.NoError(t, g.AddRule(rule, def.weight, def.gen, def.rep))
	}
	start, ok := syms.Lookup(defs[0].lhs)
	require.True(t, ok)
	return g, start
}

// 最小可渲染文法：进段、登记一张表、取一列、渲染 FROM 列表、出段
func selectGrammar(t *testing.T) (*grammar.Grammar, *grammar.Symbol) {
	t.Helper()
	return buildTestGrammar(t, []testRule{
		{lhs: "s", rhs: []string{"q_enter", "seed", "SELECT", "col", "FROM", "from_list", "q_exit"}, weight: 1},
		{lhs: "q_enter", weight: 1, gen: GenEnterQuery},
		{lhs: "q_exit", weight: 1, gen: GenLeaveQuery},
		{lhs: "seed", weight: 1, gen: GenPickTable},
		{lhs: "col", weight: 1, gen: GenColumnRef, rep: RepPayload},
		{lhs: "from_list", weight: 1, gen: GenSourceList, rep: RepPayload},
	})
}

func TestGenerateFixedSeedReproduces(t *testing.T) {
	g, start := selectGrammar(t)
	e := NewEngine(g, testUniverse())

	first, err := e.Generate(start, 42)
	require.NoError(t, err)
	second, err := e.Generate(start, 42)
	require.NoError(t, err)

	assert.True(t, first.OK)
	assert.Equal(t, first.Text, second.Text)
	assert.True(t, strings.HasPrefix(first.Text, "SELECT "))
	assert.Contains(t, first.Text, " FROM ")
}

func TestGenerateSeedsDiverge(t *testing.T) {
	g, start := selectGrammar(t)
	e := NewEngine(g, testUniverse())

	seen := make(map[string]bool)
	for seed := int64(0); seed < 32; seed++ {
		res, err := e.Generate(start, seed)
		require.NoError(t, err)
		require.True(t, res.OK)
		seen[res.Text] = true
	}
	// 三张表各三列，32 个种子撞在同一条语句上的概率可以忽略
	assert.Greater(t, len(seen), 1)
}

func TestGenerateUnimplementedFallsBack(t *testing.T) {
	g, start := buildTestGrammar(t, []testRule{
		{lhs: "s", rhs: []string{"stub"}, weight: 1},
		{lhs: "stub", weight: 1, rep: RepUnimplemented},
	})
	e := NewEngine(g, testUniverse())

	res, err := e.Generate(start, 7)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, FallbackSQL, res.Text)
	assert.NotEmpty(t, res.Reason)
}

func TestGenerateMissingPayloadFallsBack(t *testing.T) {
	// 声明了载荷呈现却没有生成回调写载荷，属于可恢复的渲染错误
	g, start := buildTestGrammar(t, []testRule{
		{lhs: "s", rhs: []string{"hole"}, weight: 1},
		{lhs: "hole", weight: 1, rep: RepPayload},
	})
	e := NewEngine(g, testUniverse())

	res, err := e.Generate(start, 7)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, FallbackSQL, res.Text)
	assert.Contains(t, res.Reason, "载荷")
}

func TestGenerateStartMustBeNonterminal(t *testing.T) {
	g, _ := selectGrammar(t)
	syms := grammar.NewSymbolTable()
	stray := syms.Intern("SELECT")
	e := NewEngine(g, testUniverse())

	_, err := e.Generate(stray, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, grammar.ErrNotNonterminal)
}

func TestGenerateRuleCounting(t *testing.T) {
	g, start := selectGrammar(t)
	e := NewEngine(g, testUniverse(), WithRuleCounting())

	res, err := e.Generate(start, 3)
	require.NoError(t, err)
	require.Len(t, res.RuleCounts, g.RuleCount())

	total := 0
	for _, n := range res.RuleCounts {
		total += n
	}
	// 六个非终结符各展开一次
	assert.Equal(t, 6, total)
}

func TestGenerateEmptyUniverseUsesPlaceholders(t *testing.T) {
	g, start := selectGrammar(t)
	e := NewEngine(g, scope.NewUniverse(nil))

	res, err := e.Generate(start, 11)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Text, "fz_tab_")
}

func TestRenderTightReps(t *testing.T) {
	g, start := buildTestGrammar(t, []testRule{
		{lhs: "s", rhs: []string{"(", "inner", ")"}, weight: 1, rep: RepTightParen},
		{lhs: "inner", rhs: []string{"a", "+", "b"}, weight: 1, rep: RepTightBinary},
	})
	e := NewEngine(g, testUniverse())

	res, err := e.Generate(start, 1)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "(a+b)", res.Text)
}

func TestRenderCommaList(t *testing.T) {
	g, start := buildTestGrammar(t, []testRule{
		{lhs: "s", rhs: []string{"a", ",", "b", ",", "c"}, weight: 1, rep: RepCommaList},
	})
	e := NewEngine(g, testUniverse())

	res, err := e.Generate(start, 1)
	require.NoError(t, err)
	assert.Equal(t, "a, b, c", res.Text)
}

package grammar

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolInterning(t *testing.T) {
	tab := NewSymbolTable()
	a := tab.Intern("select_stmt")
	b := tab.Intern("select_stmt")
	c := tab.Intern("expr")

	assert.Same(t, a, b, "同名符号必须返回同一个实例")
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, tab.Len())

	got, ok := tab.Lookup("expr")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestRuleInterning(t *testing.T) {
	syms := NewSymbolTable()
	rules := NewRuleTable()
	s := syms.Intern("S")
	a := syms.Intern("a")

	r1 := rules.Intern(s, []*Symbol{a})
	r2 := rules.Intern(s, []*Symbol{a})
	r3 := rules.Intern(s, []*Symbol{a, a})
	eps := rules.Intern(s, nil)

	assert.Same(t, r1, r2)
	assert.NotSame(t, r1, r3)
	assert.Equal(t, 3, rules.Len())
	assert.Equal(t, "S -> ε", eps.String())
	assert.Equal(t, "S -> a a", r3.String())
}

func TestAddRuleRejectsDuplicatesAndBadWeights(t *testing.T) {
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	a := syms.Intern("a")
	r := g.Rules().Intern(s, []*Symbol{a})

	require.NoError(t, g.AddRule(r, 3, GenNone, RepDefault))
	err := g.AddRule(r, 1, GenNone, RepDefault)
	assert.ErrorIs(t, err, ErrDuplicateRule)

	r2 := g.Rules().Intern(s, nil)
	err = g.AddRule(r2, 0, GenNone, RepDefault)
	assert.ErrorIs(t, err, ErrBadWeight)
}

func TestIsNonterminal(t *testing.T) {
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	a := syms.Intern("a")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{a}), 1, GenNone, RepDefault))

	assert.True(t, g.IsNonterminal(s))
	assert.False(t, g.IsNonterminal(a))
}

// buildLinear 构造 S -> a | S b 这种最小递归文法
func buildLinear(t *testing.T, w1, w2 int) (*Grammar, *Symbol) {
	t.Helper()
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	a := syms.Intern("a")
	b := syms.Intern("b")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{a}), w1, GenNone, RepDefault))
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{s, b}), w2, GenNone, RepDefault))
	return g, s
}

func TestRandomRuleDeterministicWalk(t *testing.T) {
	g, s := buildLinear(t, 1, 1)

	// 固定种子下抽样可复现
	rng1 := rand.New(rand.NewSource(7))
	rng2 := rand.New(rand.NewSource(7))
	for i := 0; i < 32; i++ {
		e1, err := g.RandomRule(s, rng1)
		require.NoError(t, err)
		e2, err := g.RandomRule(s, rng2)
		require.NoError(t, err)
		assert.Same(t, e1.Rule, e2.Rule)
	}
}

func TestRandomRuleHonorsWeights(t *testing.T) {
	g, s := buildLinear(t, 1, 9)
	rng := rand.New(rand.NewSource(42))

	recursive := 0
	const n = 2000
	for i := 0; i < n; i++ {
		e, err := g.RandomRule(s, rng)
		require.NoError(t, err)
		if len(e.Rule.RHS) == 2 {
			recursive++
		}
	}
	// 期望 90%，允许较宽的波动区间
	assert.Greater(t, recursive, n*80/100)
	assert.Less(t, recursive, n*97/100)
}

func TestWeightsRoundTrip(t *testing.T) {
	g, s := buildLinear(t, 3, 2)
	an := NewAnalyzer(g)

	before := g.Weights()
	radiusBefore := an.SpectralRadius()
	totalBefore := g.GroupTotal(s)

	require.NoError(t, g.SetWeights(before, true))
	an.Rebuild()

	assert.Equal(t, before, g.Weights())
	assert.Equal(t, totalBefore, g.GroupTotal(s))
	assert.InDelta(t, radiusBefore, an.SpectralRadius(), 1e-12)
}

func TestSetWeightsLengthMismatch(t *testing.T) {
	g, _ := buildLinear(t, 1, 1)
	err := g.SetWeights([]int{1, 2, 3}, true)
	assert.ErrorIs(t, err, ErrWeightLength)
}

func TestSetWeightsRequirePositive(t *testing.T) {
	g, _ := buildLinear(t, 1, 1)
	assert.ErrorIs(t, g.SetWeights([]int{0, 1}, true), ErrBadWeight)
	assert.NoError(t, g.SetWeights([]int{0, 1}, false))
	assert.ErrorIs(t, g.SetWeights([]int{-1, 1}, false), ErrBadWeight)
}

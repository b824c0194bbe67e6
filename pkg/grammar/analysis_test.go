package grammar

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpectralRadiusLinearRecursion(t *testing.T) {
	// S -> a | S b，等权时递归概率 0.5，每次展开期望产生 0.5 个 S
	g, _ := buildLinear(t, 1, 1)
	an := NewAnalyzer(g)
	assert.InDelta(t, 0.5, an.SpectralRadius(), 1e-9)
	assert.True(t, an.Consistent())
}

func TestSpectralRadiusUnboundedSelfRecursion(t *testing.T) {
	// S 唯一的产生式引用自身，展开必然失控
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	b := syms.Intern("b")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{s, b}), 1, GenNone, RepDefault))

	an := NewAnalyzer(g)
	assert.GreaterOrEqual(t, an.SpectralRadius(), 1.0)
	assert.False(t, an.Consistent())
}

func TestSpectralRadiusBinaryRecursion(t *testing.T) {
	// S -> a | S S b：递归产生式权重压倒性时半径 ≈ 2
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	a := syms.Intern("a")
	b := syms.Intern("b")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{a}), 1, GenNone, RepDefault))
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{s, s, b}), 99, GenNone, RepDefault))

	an := NewAnalyzer(g)
	assert.Greater(t, an.SpectralRadius(), 1.0)
	assert.False(t, an.Consistent())

	// 递归权重很低时期望分支因子远小于 1
	require.NoError(t, g.SetWeights([]int{99, 1}, true))
	an.Rebuild()
	assert.Less(t, an.SpectralRadius(), 1.0)
	assert.True(t, an.Consistent())
}

func TestSpectralRadiusTwoNonterminals(t *testing.T) {
	// S -> A A | a, A -> a：无递归，幂迭代应收敛到 0
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	aNT := syms.Intern("A")
	a := syms.Intern("a")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{aNT, aNT}), 1, GenNone, RepDefault))
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{a}), 1, GenNone, RepDefault))
	require.NoError(t, g.AddRule(g.Rules().Intern(aNT, []*Symbol{a}), 1, GenNone, RepDefault))

	an := NewAnalyzer(g)
	assert.InDelta(t, 0.0, an.SpectralRadius(), 1e-9)
	assert.True(t, an.Consistent())
}

func TestAdjustWeightsSingleRulePerNonterminal(t *testing.T) {
	// 每个非终结符只有一条产生式时，调整后权重就是 targetTop
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	aNT := syms.Intern("A")
	a := syms.Intern("a")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{aNT}), 7, GenNone, RepDefault))
	require.NoError(t, g.AddRule(g.Rules().Intern(aNT, []*Symbol{a}), 3, GenNone, RepDefault))

	an := NewAnalyzer(g)
	require.NoError(t, an.AdjustWeights(100))
	assert.Equal(t, []int{100, 100}, g.Weights())
}

func TestAdjustWeightsPreservesSparsity(t *testing.T) {
	g, _ := buildLinear(t, 1, 5)
	// 权重 0 只能通过非严格导入进入
	require.NoError(t, g.SetWeights([]int{0, 5}, false))
	an := NewAnalyzer(g)
	require.NoError(t, an.AdjustWeights(200))

	w := g.Weights()
	assert.Equal(t, 0, w[0], "零权重不能被调整引入非零")
	assert.Equal(t, 200, w[1])
}

func TestAdjustWeightsAllZeroGroup(t *testing.T) {
	g, _ := buildLinear(t, 1, 1)
	require.NoError(t, g.SetWeights([]int{0, 0}, false))
	an := NewAnalyzer(g)
	require.NoError(t, an.AdjustWeights(50))
	assert.Equal(t, []int{50, 50}, g.Weights())
}

func TestAdjustWeightsFloor(t *testing.T) {
	g, _ := buildLinear(t, 1, 1000)
	an := NewAnalyzer(g)
	require.NoError(t, an.AdjustWeights(100))

	w := g.Weights()
	assert.Equal(t, 100, w[1])
	// 1/1000 缩放后落在 1% 下限上
	assert.Equal(t, 1, w[0])
}

func TestValidateAndRepairShrinksRecursiveRule(t *testing.T) {
	// S -> a | S S b，递归权重压倒性，初始半径接近 2
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	a := syms.Intern("a")
	b := syms.Intern("b")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{a}), 50, GenNone, RepDefault))
	recursive := g.Rules().Intern(s, []*Symbol{s, s, b})
	require.NoError(t, g.AddRule(recursive, 99, GenNone, RepDefault))

	an := NewAnalyzer(g)
	rng := rand.New(rand.NewSource(1))
	report, err := an.ValidateAndRepair(g.Weights(), 100, 0.9, 500, rng)
	require.NoError(t, err)

	assert.True(t, report.OK, "修复应当把谱半径压到目标以下，最终 %v", report.Radius)
	assert.LessOrEqual(t, report.Radius, 0.9)
	assert.Greater(t, report.Accepted, 0)

	w := g.Weights()
	idx, ok := g.IndexOf(recursive)
	require.True(t, ok)
	assert.Less(t, w[idx], 100, "递归产生式的权重必须被降低")
	assert.GreaterOrEqual(t, w[idx], 1)
}

func TestValidateAndRepairKeepsSparsity(t *testing.T) {
	g, _ := buildLinear(t, 1, 5)
	an := NewAnalyzer(g)
	rng := rand.New(rand.NewSource(3))
	_, err := an.ValidateAndRepair([]int{0, 5}, 100, 0.9, 100, rng)
	require.NoError(t, err)

	w := g.Weights()
	assert.Equal(t, 0, w[0])
	assert.Greater(t, w[1], 0)
}

func TestValidateAndRepairGivesUpWithinBudget(t *testing.T) {
	// S 只有自引用产生式，无论怎么降权半径都是 1，修复必须在预算内停止
	syms := NewSymbolTable()
	g := New(syms)
	s := syms.Intern("S")
	require.NoError(t, g.AddRule(g.Rules().Intern(s, []*Symbol{s}), 10, GenNone, RepDefault))

	an := NewAnalyzer(g)
	rng := rand.New(rand.NewSource(5))
	report, err := an.ValidateAndRepair(g.Weights(), 100, 0.9, 20, rng)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.LessOrEqual(t, report.Attempts, 20)
}

package grammar

import (
	"fmt"
	"math/rand"
)

// GenID 生成回调标识。具体行为由派生引擎解释，文法只负责存储。
// 零值 GenNone 表示没有生成回调。
type GenID uint8

// GenNone 无生成回调
const GenNone GenID = 0

// RepID 呈现回调标识。零值 RepDefault 表示缺省呈现方式
// （子节点按序空格连接并去掉首尾空白）。
type RepID uint8

// RepDefault 缺省呈现
const RepDefault RepID = 0

// RuleEntry 产生式表项：产生式本体、正整数权重、两个可选回调标识。
type RuleEntry struct {
	Rule   *Rule
	Weight int
	Gen    GenID
	Rep    RepID
}

// ntGroup 按左部非终结符聚合的产生式分组
type ntGroup struct {
	total   int   // 组内权重和
	indices []int // 按注册顺序排列的产生式表下标
	dense   int   // 非终结符的稠密编号，供一致性分析建矩阵用
}

// Grammar 带权文法。持有产生式表、按非终结符的分组与累计权重，
// 提供按权重随机选择、整表权重导入导出。
// 权重导入是 O(产生式数) 的纯数值操作，不改变结构，
// 因此可以廉价地反复换装候选权重向量再回滚。
type Grammar struct {
	symbols *SymbolTable
	rules   *RuleTable
	entries []*RuleEntry
	byRule  map[*Rule]int
	groups  map[*Symbol]*ntGroup
	ntOrder []*Symbol // 按稠密编号排列的非终结符
}

// New 创建空文法，符号表由调用方提供并在多个组件间共享
func New(symbols *SymbolTable) *Grammar {
	return &Grammar{
		symbols: symbols,
		rules:   NewRuleTable(),
		byRule:  make(map[*Rule]int),
		groups:  make(map[*Symbol]*ntGroup),
	}
}

// Symbols 返回文法使用的符号表
func (g *Grammar) Symbols() *SymbolTable {
	return g.symbols
}

// Rules 返回文法使用的产生式驻留表
func (g *Grammar) Rules() *RuleTable {
	return g.rules
}

// AddRule 注册产生式。同一产生式重复注册或权重小于 1 都是配置错误。
func (g *Grammar) AddRule(rule *Rule, weight int, gen GenID, rep RepID) error {
	if weight < 1 {
		return fmt.Errorf("%w: %s 权重 %d", ErrBadWeight, rule, weight)
	}
	if _, ok := g.byRule[rule]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule)
	}
	idx := len(g.entries)
	g.entries = append(g.entries, &RuleEntry{Rule: rule, Weight: weight, Gen: gen, Rep: rep})
	g.byRule[rule] = idx

	grp, ok := g.groups[rule.LHS]
	if !ok {
		grp = &ntGroup{dense: len(g.ntOrder)}
		g.groups[rule.LHS] = grp
		g.ntOrder = append(g.ntOrder, rule.LHS)
	}
	grp.total += weight
	grp.indices = append(grp.indices, idx)
	return nil
}

// IsNonterminal 判断符号是否为非终结符（是否有以它为左部的产生式）
func (g *Grammar) IsNonterminal(sym *Symbol) bool {
	_, ok := g.groups[sym]
	return ok
}

// RandomRule 按权重随机选择 nt 的一条产生式。
// 在 [1, 组内权重和] 上取均匀整数，沿注册顺序累加权重，
// 选中第一条累计值达到抽样值的产生式。抽样值确定时选择是可复现的。
func (g *Grammar) RandomRule(nt *Symbol, rng *rand.Rand) (*RuleEntry, error) {
	grp, ok := g.groups[nt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotNonterminal, nt)
	}
	if grp.total < 1 {
		return nil, fmt.Errorf("%w: %s", ErrNoRule, nt)
	}
	draw := rng.Intn(grp.total) + 1
	running := 0
	for _, idx := range grp.indices {
		running += g.entries[idx].Weight
		if running >= draw {
			return g.entries[idx], nil
		}
	}
	// 权重和与缓存不一致才会走到这里
	return nil, fmt.Errorf("%s: 累计权重 %d 小于抽样值 %d", nt, running, draw)
}

// RuleCount 返回产生式数量，也就是权重向量的长度
func (g *Grammar) RuleCount() int {
	return len(g.entries)
}

// Entry 按产生式表下标取表项
func (g *Grammar) Entry(idx int) *RuleEntry {
	return g.entries[idx]
}

// EntryOf 按产生式取表项
func (g *Grammar) EntryOf(rule *Rule) (*RuleEntry, bool) {
	idx, ok := g.byRule[rule]
	if !ok {
		return nil, false
	}
	return g.entries[idx], true
}

// IndexOf 返回产生式在表中的位置
func (g *Grammar) IndexOf(rule *Rule) (int, bool) {
	idx, ok := g.byRule[rule]
	return idx, ok
}

// Nonterminals 按稠密编号顺序返回全部非终结符
func (g *Grammar) Nonterminals() []*Symbol {
	out := make([]*Symbol, len(g.ntOrder))
	copy(out, g.ntOrder)
	return out
}

// DenseIndex 返回非终结符的稠密编号
func (g *Grammar) DenseIndex(nt *Symbol) (int, bool) {
	grp, ok := g.groups[nt]
	if !ok {
		return 0, false
	}
	return grp.dense, true
}

// GroupIndices 返回 nt 名下全部产生式的表下标（注册顺序）。
// 非终结符作基因的遗传算子按这个分组整组继承。
func (g *Grammar) GroupIndices(nt *Symbol) []int {
	grp, ok := g.groups[nt]
	if !ok {
		return nil
	}
	out := make([]int, len(grp.indices))
	copy(out, grp.indices)
	return out
}

// GroupTotal 返回 nt 名下产生式的权重和
func (g *Grammar) GroupTotal(nt *Symbol) int {
	grp, ok := g.groups[nt]
	if !ok {
		return 0
	}
	return grp.total
}

// Weights 导出整表权重向量。向量按产生式注册顺序定位，
// 只对导出它的这份文法实例有意义。
func (g *Grammar) Weights() []int {
	out := make([]int, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.Weight
	}
	return out
}

// SetWeights 导入整表权重向量并重算每个非终结符的权重和。
// 长度不匹配是配置错误。requirePositive 为真时任何小于 1 的
// 分量都会被拒绝；为假时允许 0（供权重修复过程中间状态使用），
// 但负数始终非法。
func (g *Grammar) SetWeights(weights []int, requirePositive bool) error {
	if len(weights) != len(g.entries) {
		return fmt.Errorf("%w: 期望 %d 实际 %d", ErrWeightLength, len(g.entries), len(weights))
	}
	for i, w := range weights {
		if w < 0 || (requirePositive && w < 1) {
			return fmt.Errorf("%w: 第 %d 项为 %d", ErrBadWeight, i, w)
		}
	}
	for i, w := range weights {
		g.entries[i].Weight = w
	}
	for _, grp := range g.groups {
		grp.total = 0
		for _, idx := range grp.indices {
			grp.total += g.entries[idx].Weight
		}
	}
	return nil
}

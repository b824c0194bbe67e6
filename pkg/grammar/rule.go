package grammar

import "strings"

// Rule 产生式：一个左部非终结符加一段有序的右部符号序列（可以为空）。
// 由 RuleTable 驻留，同一 (左部, 右部) 只存在一个实例。
type Rule struct {
	LHS *Symbol
	RHS []*Symbol
}

// String 以 "lhs -> a b c" 形式输出，空右部输出 "lhs -> ε"
func (r *Rule) String() string {
	var b strings.Builder
	b.WriteString(r.LHS.Name)
	b.WriteString(" ->")
	if len(r.RHS) == 0 {
		b.WriteString(" ε")
		return b.String()
	}
	for _, s := range r.RHS {
		b.WriteByte(' ')
		b.WriteString(s.Name)
	}
	return b.String()
}

func ruleKey(lhs *Symbol, rhs []*Symbol) string {
	var b strings.Builder
	b.WriteString(lhs.Name)
	for _, s := range rhs {
		b.WriteByte('\x00')
		b.WriteString(s.Name)
	}
	return b.String()
}

// RuleTable 产生式驻留表
type RuleTable struct {
	byKey map[string]*Rule
	order []*Rule
}

// NewRuleTable 创建空的产生式表
func NewRuleTable() *RuleTable {
	return &RuleTable{
		byKey: make(map[string]*Rule),
	}
}

// Intern 返回 (lhs, rhs) 对应的产生式，不存在时创建。
// 右部序列会被复制，调用方可以复用自己的切片。
func (t *RuleTable) Intern(lhs *Symbol, rhs []*Symbol) *Rule {
	key := ruleKey(lhs, rhs)
	if r, ok := t.byKey[key]; ok {
		return r
	}
	cp := make([]*Symbol, len(rhs))
	copy(cp, rhs)
	r := &Rule{LHS: lhs, RHS: cp}
	t.byKey[key] = r
	t.order = append(t.order, r)
	return r
}

// Lookup 查找已驻留的产生式
func (t *RuleTable) Lookup(lhs *Symbol, rhs []*Symbol) (*Rule, bool) {
	r, ok := t.byKey[ruleKey(lhs, rhs)]
	return r, ok
}

// Len 返回已驻留产生式数量
func (t *RuleTable) Len() int {
	return len(t.order)
}

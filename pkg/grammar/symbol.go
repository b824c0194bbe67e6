package grammar

import "sort"

// Symbol 文法符号。终结符与非终结符共用同一种表示，
// 区分方式是结构性的：至少有一条产生式以它为左部的符号才是非终结符。
// 符号由 SymbolTable 驻留，同名符号全表唯一，可以直接比较指针。
type Symbol struct {
	Name string
}

func (s *Symbol) String() string {
	return s.Name
}

// SymbolTable 符号驻留表。一个文法构建上下文持有一张表，
// 不使用任何全局状态。
type SymbolTable struct {
	byName map[string]*Symbol
	order  []*Symbol
}

// NewSymbolTable 创建空的符号表
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string]*Symbol),
	}
}

// Intern 返回名字对应的符号，不存在时创建。
// 对同一个名字的重复调用返回同一个实例。
func (t *SymbolTable) Intern(name string) *Symbol {
	if s, ok := t.byName[name]; ok {
		return s
	}
	s := &Symbol{Name: name}
	t.byName[name] = s
	t.order = append(t.order, s)
	return s
}

// Lookup 查找已注册的符号
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Len 返回已注册符号数量
func (t *SymbolTable) Len() int {
	return len(t.order)
}

// All 按名字排序返回全部符号
func (t *SymbolTable) All() []*Symbol {
	out := make([]*Symbol, len(t.order))
	copy(out, t.order)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

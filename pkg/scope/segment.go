package scope

import (
	"errors"
	"fmt"
)

// State 限定引用构建状态机。兄弟展开在没有直接通信的情况下
// 协作拼出一个 schema.table.column 引用，状态记录拼到了哪一步。
type State int

const (
	StateNone State = iota
	StateAliasChosen
	StateNameResolved
	StateColumnChosen
)

var stateNames = map[State]string{
	StateNone:         "NONE",
	StateAliasChosen:  "ALIAS_CHOSEN",
	StateNameResolved: "NAME_RESOLVED",
	StateColumnChosen: "COLUMN_CHOSEN",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrBadState 某个操作在非法状态下被调用。
// 这是文法回调接线的程序缺陷，不是数据问题，调用方应当中止本次生成。
var ErrBadState = errors.New("作用域状态机非法转移")

// ErrNoSegment 作用域栈为空
var ErrNoSegment = errors.New("没有活动的作用域段")

// Source 段内注册的行来源：物理对象或内联子查询。
// 内联来源的列清单不在注册时冻结，而是在取列时向子段的导出列表求值。
type Source struct {
	Alias       string
	Schema      string
	Name        string
	Kind        ObjectKind
	columns     []string
	child       *Segment // 内联子查询来源
	aliased     bool     // 别名是否已区别于对象本名
	Placeholder bool
}

// Columns 返回来源的列清单。物理对象的列是固定的；
// 内联来源在调用时向子段求值。
func (s *Source) Columns() []string {
	if s.child != nil {
		return s.child.Exports()
	}
	return s.columns
}

// Inline 是否为内联子查询来源
func (s *Source) Inline() bool {
	return s.child != nil
}

// Aliased 别名是否已区别于对象本名
func (s *Source) Aliased() bool {
	return s.aliased
}

// Ref 返回 FROM 列表里这条来源的文本，
// qualify 为真且来源带模式时加模式前缀。
func (s *Source) Ref(qualify bool) string {
	name := s.Name
	if qualify && s.Schema != "" {
		name = s.Schema + "." + name
	}
	if s.aliased {
		return name + " AS " + s.Alias
	}
	return name
}

// Segment 一个查询块的作用域段。
// 记录本块已经引入的来源、列和标志，并链接到父段。
type Segment struct {
	catalog *Catalog
	parent  *Segment
	name    string // 合成名，供父段把本段注册为内联来源

	symtab   map[string]*Source
	symOrder []string
	// coltab: 列名 -> 选定别名 -> 来源别名，处理同名列冲突
	coltab   map[string]map[string]string
	exports  []string
	flags    map[string]bool
	state    State
	aliasSeq int
}

func newSegment(c *Catalog, parent *Segment, name string) *Segment {
	return &Segment{
		catalog: c,
		parent:  parent,
		name:    name,
		symtab:  make(map[string]*Source),
		coltab:  make(map[string]map[string]string),
		flags:   make(map[string]bool),
	}
}

// Name 返回段的合成名
func (s *Segment) Name() string { return s.name }

// Parent 返回父段，根段返回 nil
func (s *Segment) Parent() *Segment { return s.parent }

// State 返回当前状态
func (s *Segment) State() State { return s.state }

// SetFlag 设置标志位（比如 qualify_schema）
func (s *Segment) SetFlag(name string, v bool) { s.flags[name] = v }

// Flag 读取标志位
func (s *Segment) Flag(name string) bool { return s.flags[name] }

// Sources 按注册顺序返回本段全部来源
func (s *Segment) Sources() []*Source {
	out := make([]*Source, 0, len(s.symOrder))
	for _, alias := range s.symOrder {
		out = append(out, s.symtab[alias])
	}
	return out
}

// Lookup 在本段查别名，查不到时沿父链向上（相关子查询引用）
func (s *Segment) Lookup(alias string) (*Source, bool) {
	for seg := s; seg != nil; seg = seg.parent {
		if src, ok := seg.symtab[alias]; ok {
			return src, true
		}
	}
	return nil, false
}

// Exports 返回本段已选定的列别名清单。
// 内联来源的列解析在取列时刻对这份清单求值。
func (s *Segment) Exports() []string {
	out := make([]string, len(s.exports))
	copy(out, s.exports)
	return out
}

// ColumnSources 返回某列名下 选定别名 -> 来源别名 的映射副本
func (s *Segment) ColumnSources(column string) map[string]string {
	m, ok := s.coltab[column]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Segment) register(src *Source) {
	s.symtab[src.Alias] = src
	s.symOrder = append(s.symOrder, src.Alias)
}

// freeAlias 在 base 被占用时追加递增后缀直到可用
func (s *Segment) freeAlias(base string) string {
	if _, taken := s.symtab[base]; !taken {
		return base
	}
	for {
		s.aliasSeq++
		alias := fmt.Sprintf("%s_%d", base, s.aliasSeq)
		if _, taken := s.symtab[alias]; !taken {
			return alias
		}
	}
}

func (s *Segment) requireState(op string, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s 不能在 %s 状态下调用（段 %s）", ErrBadState, op, s.state, s.name)
}

func (s *Segment) exportColumn(chosen string) {
	for _, e := range s.exports {
		if e == chosen {
			return
		}
	}
	s.exports = append(s.exports, chosen)
}

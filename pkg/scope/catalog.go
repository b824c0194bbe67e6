package scope

import (
	"fmt"
	"math/rand"
)

// FlagQualifySchema 渲染限定名时带上模式前缀
const FlagQualifySchema = "qualify_schema"

// Catalog 作用域目录：一次语句生成期间的作用域段栈。
// 每个生成调用独占一份目录；只读的 Universe 可以跨目录共享。
type Catalog struct {
	universe *Universe
	top      *Segment
	segSeq   int
	phSeq    int
}

// NewCatalog 创建空目录
func NewCatalog(u *Universe) *Catalog {
	return &Catalog{universe: u}
}

// Universe 返回共享对象目录
func (c *Catalog) Universe() *Universe { return c.universe }

// Current 返回当前段，栈空时返回 nil
func (c *Catalog) Current() *Segment { return c.top }

// Depth 返回栈深
func (c *Catalog) Depth() int {
	d := 0
	for seg := c.top; seg != nil; seg = seg.parent {
		d++
	}
	return d
}

// Push 进入一个查询块：新建段并压栈。
// 非根段会以自己的合成名注册进父段，作为一条内联行来源，
// 其列清单在取用时向子段的导出列表懒求值；
// 反方向的相关引用通过子段沿父链查找实现。
func (c *Catalog) Push() *Segment {
	c.segSeq++
	seg := newSegment(c, c.top, fmt.Sprintf("sq_%d", c.segSeq))
	if c.top != nil {
		c.top.register(&Source{
			Alias: seg.name,
			Name:  seg.name,
			Kind:  KindView,
			child: seg,
		})
	}
	c.top = seg
	return seg
}

// Pop 离开当前查询块
func (c *Catalog) Pop() error {
	if c.top == nil {
		return ErrNoSegment
	}
	c.top = c.top.parent
	return nil
}

// placeholderName 合成全目录唯一的占位名。
// 资源耗尽（目录里没有所需类别的对象）是可恢复情形，
// 生成继续进行，只是引用了一个显然是占位符的名字。
func (c *Catalog) placeholderName(prefix string) string {
	c.phSeq++
	return fmt.Sprintf("fz_%s_%d", prefix, c.phSeq)
}

func (c *Catalog) placeholderSource(alias string, kind ObjectKind) *Source {
	name := c.placeholderName(kind.short())
	if alias == "" {
		alias = name
	}
	var cols []string
	if kind != KindSequence {
		cols = []string{"c1", "c2", "c3"}
	}
	return &Source{
		Alias:       alias,
		Name:        name,
		Kind:        kind,
		columns:     cols,
		Placeholder: true,
	}
}

func (k ObjectKind) short() string {
	switch k {
	case KindView:
		return "view"
	case KindMaterializedView:
		return "mview"
	case KindSequence:
		return "seq"
	default:
		return "tab"
	}
}

// AddPhysicalSource 从目录里随机选一个本段还没用过的 kind 类别对象，
// 注册为行来源并返回描述符。别名冲突时追加递增后缀；
// 目录没有该类别对象时合成占位来源而不是失败。
func (c *Catalog) AddPhysicalSource(kind ObjectKind, rng *rand.Rand) (*Source, error) {
	seg := c.top
	if seg == nil {
		return nil, ErrNoSegment
	}
	if err := seg.requireState("AddPhysicalSource", StateNone, StateNameResolved); err != nil {
		return nil, err
	}

	used := make(map[string]bool, len(seg.symOrder))
	for _, alias := range seg.symOrder {
		used[seg.symtab[alias].Name] = true
	}
	var candidates []*Object
	for _, obj := range c.universe.Objects(kind) {
		if !used[obj.Name] {
			candidates = append(candidates, obj)
		}
	}

	var src *Source
	if len(candidates) == 0 {
		src = c.placeholderSource("", kind)
		src.Alias = seg.freeAlias(src.Alias)
	} else {
		obj := candidates[rng.Intn(len(candidates))]
		cols := make([]string, len(obj.Columns))
		copy(cols, obj.Columns)
		src = &Source{
			Alias:   seg.freeAlias(obj.Name),
			Schema:  obj.Schema,
			Name:    obj.Name,
			Kind:    kind,
			columns: cols,
		}
		src.aliased = src.Alias != obj.Name
	}
	seg.register(src)
	seg.state = StateNameResolved
	return src, nil
}

// PickSequence 从目录随机取一个序列名，目录里没有序列时合成占位名。
// 序列不是行来源：不进符号表，也不推动段状态机。
func (c *Catalog) PickSequence(rng *rand.Rand) string {
	if obj := c.universe.Random(KindSequence, rng); obj != nil {
		return obj.Name
	}
	return c.placeholderName(KindSequence.short())
}

// AddSourceAlias 解析一个别名或对象名：
// 已经是真别名时幂等返回；还是注册来源的本名时为它铸造新别名，
// 并同步 coltab 里指向旧别名的记录；都不是时合成占位来源。
func (c *Catalog) AddSourceAlias(aliasOrName string) (*Source, error) {
	seg := c.top
	if seg == nil {
		return nil, ErrNoSegment
	}
	if err := seg.requireState("AddSourceAlias", StateNone, StateNameResolved, StateAliasChosen); err != nil {
		return nil, err
	}

	if src, ok := seg.symtab[aliasOrName]; ok {
		if src.aliased || src.Inline() {
			seg.state = StateAliasChosen
			return src, nil
		}
		// 还是本名：铸造新别名并重挂
		minted := seg.freeAlias(fmt.Sprintf("%s_a%d", src.Name, len(seg.symOrder)))
		delete(seg.symtab, src.Alias)
		old := src.Alias
		src.Alias = minted
		src.aliased = true
		seg.symtab[minted] = src
		for i, a := range seg.symOrder {
			if a == old {
				seg.symOrder[i] = minted
			}
		}
		for _, m := range seg.coltab {
			for chosen, sourceAlias := range m {
				if sourceAlias == old {
					m[chosen] = minted
				}
			}
		}
		seg.state = StateAliasChosen
		return src, nil
	}

	src := c.placeholderSource(aliasOrName, KindTable)
	seg.register(src)
	seg.state = StateAliasChosen
	return src, nil
}

// AddSourceColumn 选定（或接收）一个来源别名，再从该来源的列集中
// 随机取一列，以新的或复用的选定别名登记进 coltab。
// alias 为空串时随机挑一个已注册来源；本段没有来源时合成占位来源。
func (c *Catalog) AddSourceColumn(alias string, rng *rand.Rand) (*Source, string, error) {
	seg := c.top
	if seg == nil {
		return nil, "", ErrNoSegment
	}
	// 开始一个新的列引用会隐式放弃上一个已完成的引用，
	// 所以 COLUMN_CHOSEN 状态下也允许再取列
	if err := seg.requireState("AddSourceColumn", StateNone, StateAliasChosen, StateNameResolved, StateColumnChosen); err != nil {
		return nil, "", err
	}

	var src *Source
	switch {
	case alias != "":
		if found, ok := seg.Lookup(alias); ok {
			src = found
		} else {
			src = c.placeholderSource(alias, KindTable)
			seg.register(src)
		}
	case len(seg.symOrder) > 0:
		src = seg.symtab[seg.symOrder[rng.Intn(len(seg.symOrder))]]
	default:
		src = c.placeholderSource("", KindTable)
		seg.register(src)
	}

	cols := src.Columns()
	var col string
	if len(cols) == 0 {
		col = c.placeholderName("col")
	} else {
		col = cols[rng.Intn(len(cols))]
	}

	chosen := seg.bindColumn(col, src.Alias)
	seg.state = StateColumnChosen
	return src, chosen, nil
}

// bindColumn 把 (列名, 来源别名) 登记进 coltab，
// 同名列来自不同来源时为后来者铸造带后缀的选定别名。
func (s *Segment) bindColumn(col, sourceAlias string) string {
	m, ok := s.coltab[col]
	if !ok {
		m = make(map[string]string)
		s.coltab[col] = m
	}
	for chosen, sa := range m {
		if sa == sourceAlias {
			s.exportColumn(chosen)
			return chosen
		}
	}
	chosen := col
	if _, taken := m[chosen]; taken {
		i := 1
		for {
			chosen = fmt.Sprintf("%s_%d", col, i)
			if _, taken := m[chosen]; !taken {
				break
			}
			i++
		}
	}
	m[chosen] = sourceAlias
	s.exportColumn(chosen)
	return chosen
}

// AddColumnAlias 为已登记的列取回或铸造别名。
// 列不在 coltab 里时返回空描述符且不做任何修改。
func (c *Catalog) AddColumnAlias(column, sourceAlias string) (string, error) {
	seg := c.top
	if seg == nil {
		return "", ErrNoSegment
	}
	if _, ok := seg.coltab[column]; !ok {
		return "", nil
	}
	if err := seg.requireState("AddColumnAlias", StateColumnChosen); err != nil {
		return "", err
	}
	chosen := seg.bindColumn(column, sourceAlias)
	seg.state = StateNone
	return chosen, nil
}

// ChooseSchema 返回一个模式名：本段已有来源时从来源里选，
// 否则直接从目录采样。任何状态下都合法，调用后状态复位为 NONE。
func (c *Catalog) ChooseSchema(rng *rand.Rand) (string, error) {
	seg := c.top
	if seg == nil {
		return "", ErrNoSegment
	}
	schema := ""
	if len(seg.symOrder) > 0 {
		var withSchema []string
		for _, alias := range seg.symOrder {
			if seg.symtab[alias].Schema != "" {
				withSchema = append(withSchema, seg.symtab[alias].Schema)
			}
		}
		if len(withSchema) > 0 {
			schema = withSchema[rng.Intn(len(withSchema))]
		}
	}
	if schema == "" {
		schema = c.universe.RandomSchema(rng)
	}
	seg.SetFlag(FlagQualifySchema, true)
	seg.state = StateNone
	return schema, nil
}

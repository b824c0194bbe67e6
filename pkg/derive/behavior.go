package derive

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
	"github.com/kasuganosora/sqlfuzz/pkg/scope"
)

// 生成回调闭集。文法只存储标识，这里给出全部取值和解释。
// 生成回调在展开时刻运行，可以修改作用域目录，
// 返回值由引擎写进节点的载荷槽，供呈现阶段直接取用。
const (
	// GenEnterQuery 进入查询块：压入新作用域段
	GenEnterQuery grammar.GenID = iota + 1
	// GenLeaveQuery 离开查询块：弹出当前段
	GenLeaveQuery
	// GenPickTable 登记一张随机表为行来源
	GenPickTable
	// GenPickView 登记一个随机视图为行来源
	GenPickView
	// GenPickMatView 登记一个随机物化视图为行来源
	GenPickMatView
	// GenPickSequence 取一个随机序列名，载荷为 nextval 调用文本
	GenPickSequence
	// GenSourceList 载荷为当前段全部已登记物理来源的 FROM 文本
	GenSourceList
	// GenColumnRef 从已登记来源随机取列，载荷为 alias.column
	GenColumnRef
	// GenColumnAlias 为最近选定的列取别名，载荷为别名文本
	GenColumnAlias
	// GenChooseSchema 选定模式名，载荷为模式名
	GenChooseSchema
)

// 呈现回调闭集。呈现在整棵树建完后自底向上运行。
const (
	// RepConcat 子节点紧排，无分隔
	RepConcat grammar.RepID = iota + 1
	// RepTightUnary 一元算子与操作数之间去空白
	RepTightUnary
	// RepTightBinary 二元算子两侧去空白
	RepTightBinary
	// RepTightParen 括号内侧去空白
	RepTightParen
	// RepCommaList 缺省连接后清理逗号前的空格
	RepCommaList
	// RepPayload 直接输出节点载荷（作用域解析出的名字）
	RepPayload
	// RepUnimplemented 未实现桩：渲染到它就放弃本条语句
	RepUnimplemented
)

// ErrUnimplemented 渲染到未实现桩。按语句粒度可恢复：
// 引擎捕获后改发安全的回退语句，不中止整批生成。
var ErrUnimplemented = errors.New("文法桩未实现")

// errRender 可恢复的渲染错误，带上下文原因
type errRender struct {
	reason string
	cause  error
}

func (e *errRender) Error() string { return e.reason }
func (e *errRender) Unwrap() error { return e.cause }

// runGen 执行节点的生成回调，返回要写入载荷槽的文本。
// 作用域时序错误原样上抛，属于文法接线缺陷，必须中止本次生成。
func (e *Engine) runGen(id grammar.GenID, cat *scope.Catalog) (string, error) {
	switch id {
	case grammar.GenNone:
		return "", nil

	case GenEnterQuery:
		cat.Push()
		return "", nil

	case GenLeaveQuery:
		return "", cat.Pop()

	case GenPickTable:
		_, err := cat.AddPhysicalSource(scope.KindTable, e.rng)
		return "", err

	case GenPickView:
		_, err := cat.AddPhysicalSource(scope.KindView, e.rng)
		return "", err

	case GenPickMatView:
		_, err := cat.AddPhysicalSource(scope.KindMaterializedView, e.rng)
		return "", err

	case GenPickSequence:
		// 序列不占行来源槽，直接取名拼 nextval 调用
		return fmt.Sprintf("nextval('%s')", cat.PickSequence(e.rng)), nil

	case GenSourceList:
		seg := cat.Current()
		if seg == nil {
			return "", scope.ErrNoSegment
		}
		qualify := seg.Flag(scope.FlagQualifySchema)
		text := ""
		for _, src := range seg.Sources() {
			if src.Inline() || src.Kind == scope.KindSequence {
				continue
			}
			if text != "" {
				text += ", "
			}
			text += src.Ref(qualify)
		}
		if text == "" {
			// FROM 列表不能为空，登记一张表兜底
			src, err := cat.AddPhysicalSource(scope.KindTable, e.rng)
			if err != nil {
				return "", err
			}
			text = src.Ref(qualify)
		}
		return text, nil

	case GenColumnRef:
		src, col, err := cat.AddSourceColumn("", e.rng)
		if err != nil {
			return "", err
		}
		e.lastSource = src.Alias
		e.lastColumn = col
		return src.Alias + "." + col, nil

	case GenColumnAlias:
		alias, err := cat.AddColumnAlias(e.lastColumn, e.lastSource)
		if err != nil {
			return "", err
		}
		return alias, nil

	case GenChooseSchema:
		return cat.ChooseSchema(e.rng)

	default:
		return "", fmt.Errorf("未知生成回调 %d", id)
	}
}

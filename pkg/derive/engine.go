package derive

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
	"github.com/kasuganosora/sqlfuzz/pkg/scope"
)

// nodeLimit 单次推导的节点数上限。一致的文法期望推导规模有限，
// 碰到上限按可恢复情形处理，发回退语句。
const nodeLimit = 1 << 16

// FallbackSQL 渲染失败时发出的保底语句
const FallbackSQL = "SELECT 1"

// node 推导树节点。节点存在节点池里按下标寻址，
// 载荷由引擎代为写入，回调不直接触碰节点内部。
type node struct {
	sym      *grammar.Symbol
	children []int
	text     string // 终结符字面量或生成回调算出的载荷
	gen      grammar.GenID
	rep      grammar.RepID
}

// Result 一次生成的结果。渲染期语义错误不上抛：
// Text 换成保底语句，OK 置假，Reason 记录原因。
type Result struct {
	Text   string
	Seed   int64
	OK     bool
	Reason string
	// RuleCounts 按产生式表下标统计的命中次数，开启计数时才有
	RuleCounts []int
}

// Engine 随机自顶向下推导引擎。
// 单线程同步执行；随机流由每次调用的种子显式派生，没有隐藏全局状态。
type Engine struct {
	g          *grammar.Grammar
	uni        *scope.Universe
	countRules bool

	// 单次 Generate 调用内的工作状态
	rng        *rand.Rand
	arena      []node
	lastSource string
	lastColumn string
}

// Option 引擎选项
type Option func(*Engine)

// WithRuleCounting 开启按产生式的命中计数
func WithRuleCounting() Option {
	return func(e *Engine) { e.countRules = true }
}

// NewEngine 创建引擎。目录只读共享，引擎本身不能跨 goroutine 并用。
func NewEngine(g *grammar.Grammar, uni *scope.Universe, opts ...Option) *Engine {
	e := &Engine{g: g, uni: uni}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) newNode(sym *grammar.Symbol) int {
	idx := len(e.arena)
	nd := node{sym: sym}
	if !e.g.IsNonterminal(sym) {
		nd.text = sym.Name
	}
	e.arena = append(e.arena, nd)
	return idx
}

// Generate 从 start 出发做一次随机推导并渲染。
// 相同种子两次调用产生完全相同的文本。
// 配置类错误与作用域时序错误通过 error 返回；
// 渲染期语义错误换保底语句，在 Result 里报告。
func (e *Engine) Generate(start *grammar.Symbol, seed int64) (*Result, error) {
	if !e.g.IsNonterminal(start) {
		return nil, fmt.Errorf("%w: 起始符号 %s", grammar.ErrNotNonterminal, start)
	}

	e.rng = rand.New(rand.NewSource(seed))
	e.arena = e.arena[:0]
	e.lastSource = ""
	e.lastColumn = ""

	result := &Result{Seed: seed}
	if e.countRules {
		result.RuleCounts = make([]int, e.g.RuleCount())
	}

	cat := scope.NewCatalog(e.uni)
	root := e.newNode(start)
	pending := []int{root}

	for len(pending) > 0 {
		idx := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		sym := e.arena[idx].sym
		if !e.g.IsNonterminal(sym) {
			continue
		}
		entry, err := e.g.RandomRule(sym, e.rng)
		if err != nil {
			return nil, err
		}
		e.arena[idx].gen = entry.Gen
		e.arena[idx].rep = entry.Rep
		if result.RuleCounts != nil {
			if i, ok := e.g.IndexOf(entry.Rule); ok {
				result.RuleCounts[i]++
			}
		}

		payload, err := e.runGen(entry.Gen, cat)
		if err != nil {
			return nil, fmt.Errorf("生成回调失败（%s）: %w", entry.Rule, err)
		}
		if payload != "" {
			e.arena[idx].text = payload
		}

		if len(e.arena)+len(entry.Rule.RHS) > nodeLimit {
			result.Text = FallbackSQL
			result.Reason = "推导规模超过上限"
			return result, nil
		}
		children := make([]int, len(entry.Rule.RHS))
		for i, rhsSym := range entry.Rule.RHS {
			children[i] = e.newNode(rhsSym)
		}
		e.arena[idx].children = children
		// 倒序入栈，让最左边的子节点先展开，
		// 深度优先顺序贴近文本的从左到右顺序
		for i := len(children) - 1; i >= 0; i-- {
			pending = append(pending, children[i])
		}
	}

	text, err := e.render(root)
	if err != nil {
		var re *errRender
		if errors.As(err, &re) || errors.Is(err, ErrUnimplemented) {
			result.Text = FallbackSQL
			result.Reason = err.Error()
			return result, nil
		}
		return nil, err
	}

	result.Text = text
	result.OK = true
	return result, nil
}

package derive

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
)

// render 自底向上渲染整棵推导树。
// 节点的呈现是它自己的呈现回调作用在它身上的结果；
// 终结符的呈现就是它的字面量。
func (e *Engine) render(idx int) (string, error) {
	nd := &e.arena[idx]
	if !e.g.IsNonterminal(nd.sym) {
		return nd.text, nil
	}

	switch nd.rep {
	case RepPayload:
		// 作用域查询类回调：展开时刻已把解析出的名字写进载荷
		if nd.text == "" {
			return "", &errRender{reason: fmt.Sprintf("节点 %s 缺少作用域载荷", nd.sym)}
		}
		return nd.text, nil
	case RepUnimplemented:
		return "", &errRender{reason: fmt.Sprintf("符号 %s 的呈现未实现", nd.sym), cause: ErrUnimplemented}
	}

	parts := make([]string, 0, len(nd.children))
	for _, child := range nd.children {
		s, err := e.render(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}

	switch nd.rep {
	case grammar.RepDefault:
		return joinSpaced(parts), nil
	case RepConcat, RepTightUnary, RepTightBinary, RepTightParen:
		// 紧排类回调都剥掉子片段周围的空白再拼接
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(strings.TrimSpace(p))
		}
		return b.String(), nil
	case RepCommaList:
		return strings.ReplaceAll(joinSpaced(parts), " ,", ","), nil
	default:
		return "", fmt.Errorf("未知呈现回调 %d（符号 %s）", nd.rep, nd.sym)
	}
}

// joinSpaced 缺省呈现：子片段按序单空格连接，去掉首尾空白。
// 空片段（ε 展开）不参与连接，避免产生连续空格。
func joinSpaced(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Package sqlgram 提供内置的 SQL 文法定义表。
// 文法引擎只消费 (左部, 右部序列, 权重档, 生成回调, 呈现回调) 元组，
// 这张表就是那份静态配置：符号按结构区分终结与非终结，
// 限定名通过作用域目录回调解析，不靠随机拼名。
package sqlgram

import (
	"fmt"

	"github.com/kasuganosora/sqlfuzz/pkg/derive"
	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
)

// StartSymbol 推导起点
const StartSymbol = "statement"

// WeightClass 权重档。文法定义只写档位，数值映射集中在一处，
// 遗传演化再在数值层面上微调。
type WeightClass string

const (
	Heavy WeightClass = "heavy"
	Mid   WeightClass = "mid"
	Light WeightClass = "light"
	Rare  WeightClass = "rare"
)

var classWeights = map[WeightClass]int{
	Heavy: 80,
	Mid:   40,
	Light: 12,
	Rare:  3,
}

// Weight 返回权重档对应的整数权重
func (c WeightClass) Weight() (int, error) {
	w, ok := classWeights[c]
	if !ok {
		return 0, fmt.Errorf("未知权重档 %q", string(c))
	}
	return w, nil
}

// RuleDef 一条产生式定义
type RuleDef struct {
	LHS   string
	RHS   []string
	Class WeightClass
	Gen   grammar.GenID
	Rep   grammar.RepID
}

// Rules 返回内置 SQL 文法的全部产生式。
// 约定：非终结符用小写下划线命名，终结符是 SQL 关键字、
// 标点和字面量本身。
func Rules() []RuleDef {
	return []RuleDef{
		// 语句层
		{LHS: "statement", RHS: []string{"query"}, Class: Heavy},
		{LHS: "statement", RHS: []string{"query", "UNION", "query"}, Class: Light},
		{LHS: "statement", RHS: []string{"query", "UNION", "ALL", "query"}, Class: Rare},

		// 查询块：进入时压作用域段，离开时弹出
		{LHS: "query", RHS: []string{"q_enter", "sel_stmt", "q_exit"}, Class: Heavy},
		{LHS: "q_enter", RHS: nil, Class: Heavy, Gen: derive.GenEnterQuery},
		{LHS: "q_exit", RHS: nil, Class: Heavy, Gen: derive.GenLeaveQuery},

		// SELECT 主体。行来源先于选择列表登记（seed_sources 不产出文本），
		// FROM 列表渲染时向作用域目录查询已登记来源
		{LHS: "sel_stmt", RHS: []string{
			"seed_sources", "qualify_opt",
			"SELECT", "distinct_opt", "sel_list",
			"FROM", "from_list",
			"where_opt", "group_opt", "order_opt", "limit_opt",
		}, Class: Heavy},

		{LHS: "seed_sources", RHS: []string{"seed_table"}, Class: Heavy},
		{LHS: "seed_sources", RHS: []string{"seed_table", "seed_table"}, Class: Mid},
		{LHS: "seed_sources", RHS: []string{"seed_table", "seed_view"}, Class: Light},
		{LHS: "seed_sources", RHS: []string{"seed_table", "seed_matview"}, Class: Rare},
		{LHS: "seed_table", RHS: nil, Class: Heavy, Gen: derive.GenPickTable},
		{LHS: "seed_view", RHS: nil, Class: Heavy, Gen: derive.GenPickView},
		{LHS: "seed_matview", RHS: nil, Class: Heavy, Gen: derive.GenPickMatView},

		{LHS: "qualify_opt", RHS: nil, Class: Heavy},
		{LHS: "qualify_opt", RHS: []string{"pick_schema"}, Class: Light},
		{LHS: "pick_schema", RHS: nil, Class: Heavy, Gen: derive.GenChooseSchema},

		{LHS: "from_list", RHS: nil, Class: Heavy, Gen: derive.GenSourceList, Rep: derive.RepPayload},

		{LHS: "distinct_opt", RHS: nil, Class: Heavy},
		{LHS: "distinct_opt", RHS: []string{"DISTINCT"}, Class: Light},

		// 选择列表
		{LHS: "sel_list", RHS: []string{"sel_item"}, Class: Heavy},
		{LHS: "sel_list", RHS: []string{"sel_item", ",", "sel_list"}, Class: Mid, Rep: derive.RepCommaList},
		{LHS: "sel_item", RHS: []string{"col_ref"}, Class: Heavy},
		{LHS: "sel_item", RHS: []string{"col_ref", "AS", "col_alias"}, Class: Mid},
		{LHS: "sel_item", RHS: []string{"agg_call"}, Class: Light},
		{LHS: "sel_item", RHS: []string{"window_fn"}, Class: Rare},

		// 限定名解析走作用域目录
		{LHS: "col_ref", RHS: nil, Class: Heavy, Gen: derive.GenColumnRef, Rep: derive.RepPayload},
		{LHS: "col_alias", RHS: nil, Class: Heavy, Gen: derive.GenColumnAlias, Rep: derive.RepPayload},

		{LHS: "agg_call", RHS: []string{"agg_name", "(", "col_ref", ")"}, Class: Heavy, Rep: derive.RepTightParen},
		{LHS: "agg_name", RHS: []string{"COUNT"}, Class: Heavy},
		{LHS: "agg_name", RHS: []string{"SUM"}, Class: Mid},
		{LHS: "agg_name", RHS: []string{"MIN"}, Class: Mid},
		{LHS: "agg_name", RHS: []string{"MAX"}, Class: Mid},
		{LHS: "agg_name", RHS: []string{"AVG"}, Class: Mid},

		// 窗口函数留作快速失败的桩
		{LHS: "window_fn", RHS: nil, Class: Heavy, Rep: derive.RepUnimplemented},

		// WHERE 谓词
		{LHS: "where_opt", RHS: nil, Class: Mid},
		{LHS: "where_opt", RHS: []string{"WHERE", "pred"}, Class: Heavy},
		{LHS: "pred", RHS: []string{"comparison"}, Class: Heavy},
		{LHS: "pred", RHS: []string{"comparison", "AND", "pred"}, Class: Light},
		{LHS: "pred", RHS: []string{"comparison", "OR", "pred"}, Class: Light},
		{LHS: "pred", RHS: []string{"NOT", "pred"}, Class: Rare},
		{LHS: "pred", RHS: []string{"(", "pred", ")"}, Class: Rare, Rep: derive.RepTightParen},

		{LHS: "comparison", RHS: []string{"col_ref", "cmp_op", "operand"}, Class: Heavy},
		{LHS: "comparison", RHS: []string{"col_ref", "IS", "NULL"}, Class: Light},
		{LHS: "comparison", RHS: []string{"col_ref", "IS", "NOT", "NULL"}, Class: Light},
		{LHS: "comparison", RHS: []string{"col_ref", "IN", "(", "in_list", ")"}, Class: Light},

		{LHS: "cmp_op", RHS: []string{"="}, Class: Heavy},
		{LHS: "cmp_op", RHS: []string{"<>"}, Class: Mid},
		{LHS: "cmp_op", RHS: []string{"<"}, Class: Mid},
		{LHS: "cmp_op", RHS: []string{">"}, Class: Mid},
		{LHS: "cmp_op", RHS: []string{"<="}, Class: Light},
		{LHS: "cmp_op", RHS: []string{">="}, Class: Light},

		{LHS: "operand", RHS: []string{"col_ref"}, Class: Heavy},
		{LHS: "operand", RHS: []string{"literal"}, Class: Heavy},
		{LHS: "operand", RHS: []string{"-", "operand"}, Class: Light, Rep: derive.RepTightUnary},
		{LHS: "operand", RHS: []string{"operand", "arith_op", "operand"}, Class: Light, Rep: derive.RepTightBinary},
		{LHS: "operand", RHS: []string{"scalar_subq"}, Class: Rare},
		{LHS: "operand", RHS: []string{"seq_ref"}, Class: Rare},

		{LHS: "arith_op", RHS: []string{"+"}, Class: Heavy},
		{LHS: "arith_op", RHS: []string{"-"}, Class: Mid},
		{LHS: "arith_op", RHS: []string{"*"}, Class: Mid},

		{LHS: "scalar_subq", RHS: []string{"(", "query", ")"}, Class: Heavy, Rep: derive.RepTightParen},
		{LHS: "seq_ref", RHS: nil, Class: Heavy, Gen: derive.GenPickSequence, Rep: derive.RepPayload},

		{LHS: "in_list", RHS: []string{"literal"}, Class: Heavy},
		{LHS: "in_list", RHS: []string{"literal", ",", "in_list"}, Class: Mid, Rep: derive.RepCommaList},

		{LHS: "literal", RHS: []string{"0"}, Class: Mid},
		{LHS: "literal", RHS: []string{"1"}, Class: Heavy},
		{LHS: "literal", RHS: []string{"42"}, Class: Mid},
		{LHS: "literal", RHS: []string{"100"}, Class: Light},
		{LHS: "literal", RHS: []string{"'fuzz'"}, Class: Light},
		{LHS: "literal", RHS: []string{"NULL"}, Class: Rare},

		// GROUP BY / HAVING
		{LHS: "group_opt", RHS: nil, Class: Heavy},
		{LHS: "group_opt", RHS: []string{"GROUP", "BY", "col_ref"}, Class: Light},
		{LHS: "group_opt", RHS: []string{"GROUP", "BY", "col_ref", "HAVING", "comparison"}, Class: Rare},

		// ORDER BY / LIMIT
		{LHS: "order_opt", RHS: nil, Class: Heavy},
		{LHS: "order_opt", RHS: []string{"ORDER", "BY", "col_ref", "dir_opt"}, Class: Light},
		{LHS: "dir_opt", RHS: nil, Class: Heavy},
		{LHS: "dir_opt", RHS: []string{"ASC"}, Class: Mid},
		{LHS: "dir_opt", RHS: []string{"DESC"}, Class: Mid},
		{LHS: "limit_opt", RHS: nil, Class: Heavy},
		{LHS: "limit_opt", RHS: []string{"LIMIT", "limit_num"}, Class: Light},
		{LHS: "limit_num", RHS: []string{"1"}, Class: Mid},
		{LHS: "limit_num", RHS: []string{"10"}, Class: Heavy},
		{LHS: "limit_num", RHS: []string{"100"}, Class: Light},
	}
}

// Build 用内置定义表装配一份带权文法，返回文法和起始符号。
func Build() (*grammar.Grammar, *grammar.Symbol, error) {
	return BuildFrom(Rules())
}

// BuildFrom 用外部提供的定义表装配文法。
// 定义表就是 §外部接口 里的元组形式，内置表只是其中一份。
func BuildFrom(defs []RuleDef) (*grammar.Grammar, *grammar.Symbol, error) {
	syms := grammar.NewSymbolTable()
	g := grammar.New(syms)

	for _, def := range defs {
		w, err := def.Class.Weight()
		if err != nil {
			return nil, nil, fmt.Errorf("产生式 %s: %w", def.LHS, err)
		}
		lhs := syms.Intern(def.LHS)
		rhs := make([]*grammar.Symbol, len(def.RHS))
		for i, name := range def.RHS {
			rhs[i] = syms.Intern(name)
		}
		rule := g.Rules().Intern(lhs, rhs)
		if err := g.AddRule(rule, w, def.Gen, def.Rep); err != nil {
			return nil, nil, err
		}
	}

	start, ok := syms.Lookup(StartSymbol)
	if !ok {
		return nil, nil, fmt.Errorf("定义表缺少起始符号 %q", StartSymbol)
	}
	if !g.IsNonterminal(start) {
		return nil, nil, fmt.Errorf("起始符号 %q 没有产生式", StartSymbol)
	}
	return g, start, nil
}

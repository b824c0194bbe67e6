// Package score 把一批执行记录折算成候选权重向量的适应度。
// 评分器只看执行结局的原始计数，对文法和权重一无所知。
package score

import (
	"github.com/kasuganosora/sqlfuzz/pkg/executor"
)

// Counters 一批语句的结局计数
type Counters struct {
	Total    int
	OK       int
	Syntax   int
	Error    int
	Timeout  int
	Fallback int
	Rows     int
	// DistinctErrors 互不相同的错误文本数量，衡量触发面的广度
	DistinctErrors int
}

// Tally 汇总一批执行记录。fallbacks 是渲染失败改发保底语句的条数，
// 这些语句也会被执行，但不能算作文法的功劳。
func Tally(results []*executor.Result, fallbacks int) Counters {
	c := Counters{Total: len(results), Fallback: fallbacks}
	seen := make(map[string]bool)
	for _, r := range results {
		switch r.Outcome {
		case executor.OutcomeOK:
			c.OK++
			c.Rows += r.Rows
		case executor.OutcomeSyntax:
			c.Syntax++
		case executor.OutcomeTimeout:
			c.Timeout++
		default:
			c.Error++
			if r.Message != "" && !seen[r.Message] {
				seen[r.Message] = true
				c.DistinctErrors++
			}
		}
	}
	return c
}

// Scorer 把计数折算成适应度。分数越高，候选越优。
type Scorer interface {
	Score(c Counters) float64
	// Special 报告这批结果是否出现了必须原样保留候选的罕见结局
	Special(c Counters) bool
}

// CoverageScorer 缺省评分器。奖励执行成功率和错误多样性，
// 惩罚语法垃圾和保底回退：模糊测试想要的是"合法但折腾"的语句。
type CoverageScorer struct {
	// ErrorBonus 每种互异错误文本的加分
	ErrorBonus float64
	// SyntaxPenalty 每条语法垃圾的扣分
	SyntaxPenalty float64
	// FallbackPenalty 每条保底回退的扣分
	FallbackPenalty float64
}

// NewCoverageScorer 返回带缺省参数的评分器
func NewCoverageScorer() *CoverageScorer {
	return &CoverageScorer{
		ErrorBonus:      15,
		SyntaxPenalty:   2,
		FallbackPenalty: 1,
	}
}

// Score 折算适应度
func (s *CoverageScorer) Score(c Counters) float64 {
	if c.Total == 0 {
		return 0
	}
	okRatio := float64(c.OK) / float64(c.Total)
	score := okRatio * 100
	score += float64(c.DistinctErrors) * s.ErrorBonus
	score -= float64(c.Syntax) * s.SyntaxPenalty
	score -= float64(c.Fallback) * s.FallbackPenalty
	return score
}

// Special 超时是罕见且珍贵的结局：触发它的权重向量
// 必须原样传进下一代，不许被交叉变异冲掉。
func (s *CoverageScorer) Special(c Counters) bool {
	return c.Timeout > 0
}

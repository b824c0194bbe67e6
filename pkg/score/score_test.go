package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kasuganosora/sqlfuzz/pkg/executor"
)

func TestTallyCountsOutcomes(t *testing.T) {
	results := []*executor.Result{
		{Outcome: executor.OutcomeOK, Rows: 3},
		{Outcome: executor.OutcomeOK, Rows: 1},
		{Outcome: executor.OutcomeError, Message: "no such table: t1"},
		{Outcome: executor.OutcomeError, Message: "no such table: t1"},
		{Outcome: executor.OutcomeError, Message: "division by zero"},
		{Outcome: executor.OutcomeSyntax, Message: "parse error"},
		{Outcome: executor.OutcomeTimeout, Message: "context deadline exceeded"},
	}

	c := Tally(results, 2)
	assert.Equal(t, 7, c.Total)
	assert.Equal(t, 2, c.OK)
	assert.Equal(t, 4, c.Rows)
	assert.Equal(t, 3, c.Error)
	assert.Equal(t, 2, c.DistinctErrors)
	assert.Equal(t, 1, c.Syntax)
	assert.Equal(t, 1, c.Timeout)
	assert.Equal(t, 2, c.Fallback)
}

func TestCoverageScorerOrdering(t *testing.T) {
	s := NewCoverageScorer()

	clean := Counters{Total: 10, OK: 10}
	noisy := Counters{Total: 10, OK: 8, Error: 2, DistinctErrors: 2}
	garbage := Counters{Total: 10, OK: 2, Syntax: 8}

	// 错误多样性应当胜过全绿，全绿胜过语法垃圾
	assert.Greater(t, s.Score(noisy), s.Score(clean))
	assert.Greater(t, s.Score(clean), s.Score(garbage))
}

func TestCoverageScorerPenalties(t *testing.T) {
	s := NewCoverageScorer()

	base := Counters{Total: 10, OK: 10}
	withFallback := Counters{Total: 10, OK: 10, Fallback: 3}
	assert.Greater(t, s.Score(base), s.Score(withFallback))

	assert.Equal(t, 0.0, s.Score(Counters{}))
}

func TestSpecialOnTimeout(t *testing.T) {
	s := NewCoverageScorer()
	assert.False(t, s.Special(Counters{Total: 10, OK: 10}))
	assert.True(t, s.Special(Counters{Total: 10, OK: 9, Timeout: 1}))
}

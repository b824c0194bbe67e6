// Package fuzz 演化调度器：把文法、推导引擎、执行器、评分器和
// 繁育器串成一轮轮的模糊测试循环。每轮对种群里的每个候选装配
// 权重、生成并执行一批语句、评分，然后繁育下一代。
package fuzz

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kasuganosora/sqlfuzz/pkg/config"
	"github.com/kasuganosora/sqlfuzz/pkg/derive"
	"github.com/kasuganosora/sqlfuzz/pkg/executor"
	"github.com/kasuganosora/sqlfuzz/pkg/genetic"
	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
	"github.com/kasuganosora/sqlfuzz/pkg/history"
	"github.com/kasuganosora/sqlfuzz/pkg/scope"
	"github.com/kasuganosora/sqlfuzz/pkg/score"
	"github.com/kasuganosora/sqlfuzz/pkg/sqlgram"
)

// failedStmtLimit 每个候选最多落库的失败语句数
const failedStmtLimit = 20

// Runner 演化调度器。Run 与各只读方法可以交错调用，
// 内部锁保证轮与轮之间是可观察的安全点。
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	g       *grammar.Grammar
	start   *grammar.Symbol
	an      *grammar.Analyzer
	engine  *derive.Engine
	breeder *genetic.Breeder
	exec    *executor.Executor
	scorer  score.Scorer
	store   *history.Store
	ckpt    *history.Checkpoints
	rng     *rand.Rand

	mu          sync.Mutex
	runID       string
	round       int
	pop         []*genetic.Candidate
	bestWeights []int
	bestScore   float64
}

// Snapshot 调度器当前状态
type Snapshot struct {
	RunID      string  `json:"run_id"`
	Round      int     `json:"round"`
	Population int     `json:"population"`
	BestScore  float64 `json:"best_score"`
}

// New 组装调度器。执行器的生命期归调用方管；
// 历史库与检查点库按配置在这里打开，由 Close 释放。
func New(cfg *config.Config, uni *scope.Universe, exec *executor.Executor, logger *zap.Logger) (*Runner, error) {
	g, start, err := sqlgram.Build()
	if err != nil {
		return nil, fmt.Errorf("装配文法失败: %w", err)
	}
	an := grammar.NewAnalyzer(g)

	var engineOpts []derive.Option
	if cfg.Grammar.RuleCounting {
		engineOpts = append(engineOpts, derive.WithRuleCounting())
	}

	gcfg := genetic.Config{
		PopulationSize: cfg.Genetic.PopulationSize,
		MutationProb:   cfg.Genetic.MutationProb,
		Sigma:          cfg.Genetic.Sigma,
		RuleFraction:   cfg.Genetic.RuleFraction,
		NTFraction:     cfg.Genetic.NTFraction,
		CopyFraction:   cfg.Genetic.CopyFraction,
	}
	if cfg.Genetic.Mode == "nonterminal" {
		gcfg.Mode = genetic.NonterminalGene
	}
	rng := rand.New(rand.NewSource(cfg.Genetic.Seed))

	r := &Runner{
		cfg:         cfg,
		logger:      logger,
		g:           g,
		start:       start,
		an:          an,
		engine:      derive.NewEngine(g, uni, engineOpts...),
		breeder:     genetic.NewBreeder(g, an, gcfg, rng),
		exec:        exec,
		scorer:      score.NewCoverageScorer(),
		rng:         rng,
		runID:       uuid.New().String(),
		bestWeights: g.Weights(),
	}

	if cfg.History.Enabled {
		store, err := history.OpenStore(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		ckpt, err := history.OpenCheckpoints(cfg.History.CheckpointDir)
		if err != nil {
			store.Close()
			return nil, err
		}
		r.store = store
		r.ckpt = ckpt
	}
	return r, nil
}

// Close 释放调度器打开的存储
func (r *Runner) Close() error {
	var first error
	if r.ckpt != nil {
		if err := r.ckpt.Close(); err != nil {
			first = err
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RunID 返回本次运行的标识
func (r *Runner) RunID() string { return r.runID }

// Status 返回当前状态快照
func (r *Runner) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		RunID:      r.runID,
		Round:      r.round,
		Population: len(r.pop),
		BestScore:  r.bestScore,
	}
}

// BestWeights 返回迄今最优的权重向量副本
func (r *Runner) BestWeights() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := make([]int, len(r.bestWeights))
	copy(w, r.bestWeights)
	return w
}

// Run 执行配置轮数的完整演化并收尾
func (r *Runner) Run(ctx context.Context) error {
	if r.store != nil {
		err := r.store.CreateRun(&history.Run{
			ID:       r.runID,
			Driver:   r.cfg.Target.Driver,
			GeneMode: r.cfg.Genetic.Mode,
		})
		if err != nil {
			r.logger.Warn("登记运行失败", zap.Error(err))
		}
	}

	if err := r.RunRounds(ctx, r.cfg.Genetic.Generations); err != nil {
		return err
	}

	r.mu.Lock()
	round, best := r.round, r.bestScore
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.FinishRun(r.runID, round, best); err != nil {
			r.logger.Warn("收尾运行失败", zap.Error(err))
		}
		if dir := r.cfg.History.ReportDir; dir != "" {
			gens, err := r.store.Generations(r.runID)
			if err == nil {
				err = history.ExportReport(filepath.Join(dir, r.runID+".xlsx"), r.runID, gens)
			}
			if err != nil {
				r.logger.Warn("导出汇总表失败", zap.Error(err))
			}
		}
	}
	r.logger.Info("演化结束",
		zap.String("run", r.runID),
		zap.Int("rounds", round),
		zap.Float64("best", best))
	return nil
}

// RunRounds 追加执行 n 轮演化。首次调用时播种初始种群：
// 缺省权重占一席，其余席位是它的变异体。
func (r *Runner) RunRounds(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runRound(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runRound(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pop == nil {
		if err := r.seedPopulation(); err != nil {
			return err
		}
	}
	r.round++

	for idx, cand := range r.pop {
		if err := ctx.Err(); err != nil {
			return err
		}
		counters, radius, err := r.evaluate(ctx, cand, r.round, idx)
		if err != nil {
			return fmt.Errorf("第 %d 轮候选 %d 评估失败: %w", r.round, idx, err)
		}
		cand.Score = r.scorer.Score(counters)
		cand.Special = cand.Special || r.scorer.Special(counters)

		if r.store != nil {
			err := r.store.RecordGeneration(&history.Generation{
				RunID:     r.runID,
				Round:     r.round,
				Candidate: idx,
				Score:     cand.Score,
				Special:   cand.Special,
				OKCount:   counters.OK,
				ErrCount:  counters.Error,
				SynCount:  counters.Syntax,
				TOCount:   counters.Timeout,
				FBCount:   counters.Fallback,
				Radius:    radius,
			})
			if err != nil {
				r.logger.Warn("落库候选记录失败", zap.Error(err))
			}
		}

		if cand.Score > r.bestScore || r.bestWeights == nil {
			r.bestScore = cand.Score
			r.bestWeights = append([]int(nil), cand.Weights...)
		}
	}

	if r.ckpt != nil {
		if err := r.ckpt.Save(r.runID, r.round, r.bestScore, r.bestWeights); err != nil {
			r.logger.Warn("存检查点失败", zap.Error(err))
		}
	}
	r.logger.Info("轮次完成",
		zap.Int("round", r.round),
		zap.Float64("best", r.bestScore))

	next, err := r.breeder.NextGeneration(r.pop)
	if err != nil {
		return fmt.Errorf("繁育下一代失败: %w", err)
	}
	r.pop = next
	return nil
}

// seedPopulation 播种初始种群
func (r *Runner) seedPopulation() error {
	base := r.g.Weights()
	pop := make([]*genetic.Candidate, 0, r.cfg.Genetic.PopulationSize)
	pop = append(pop, &genetic.Candidate{Weights: base})
	for len(pop) < r.cfg.Genetic.PopulationSize {
		mutant, _, err := r.breeder.Mutate(base)
		if err != nil {
			return err
		}
		pop = append(pop, &genetic.Candidate{Weights: mutant})
	}
	r.pop = pop
	return nil
}

// evaluate 装配候选权重、生成并执行一批语句、汇总计数。
// 修复后的权重写回候选，繁育永远从一致向量出发。
func (r *Runner) evaluate(ctx context.Context, cand *genetic.Candidate, round, idx int) (score.Counters, float64, error) {
	rep, err := r.an.ValidateAndRepair(cand.Weights,
		r.cfg.Grammar.TargetTop,
		r.cfg.Grammar.MaxRadius,
		r.cfg.Grammar.RepairAttempts,
		r.rng)
	if err != nil {
		return score.Counters{}, 0, err
	}
	if !rep.OK {
		r.logger.Warn("权重修复未达标",
			zap.Int("round", round),
			zap.Int("candidate", idx),
			zap.Float64("radius", rep.Radius),
			zap.Int("attempts", rep.Attempts))
	}
	cand.Weights = r.g.Weights()

	batch := r.cfg.Genetic.BatchSize
	texts := make([]string, 0, batch)
	fallbacks := 0
	for i := 0; i < batch; i++ {
		seed := r.cfg.Genetic.Seed + int64(round)*1_000_000 + int64(idx)*10_000 + int64(i)
		res, err := r.engine.Generate(r.start, seed)
		if err != nil {
			return score.Counters{}, 0, err
		}
		if !res.OK {
			fallbacks++
		}
		texts = append(texts, res.Text)
	}

	results := r.exec.ExecuteBatch(ctx, texts)
	counters := score.Tally(results, fallbacks)

	if r.store != nil {
		var failed []*history.Statement
		for _, res := range results {
			if res.Outcome == executor.OutcomeOK || len(failed) >= failedStmtLimit {
				continue
			}
			failed = append(failed, &history.Statement{
				ID:         res.ID,
				RunID:      r.runID,
				Round:      round,
				Candidate:  idx,
				SQL:        res.SQL,
				Outcome:    res.Outcome.String(),
				Rows:       res.Rows,
				DurationMS: res.Duration.Milliseconds(),
				Message:    res.Message,
			})
		}
		if err := r.store.RecordStatements(failed); err != nil {
			r.logger.Warn("落库失败语句失败", zap.Error(err))
		}
	}
	return counters, rep.Radius, nil
}

// GenerateBatch 用迄今最优权重生成 n 条语句，不执行。
// 装配的向量必须通过一致性检验，否则拒绝生成。
// 供 MCP 的 generate 工具调用。
func (r *Runner) GenerateBatch(n int, seed int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.g.SetWeights(r.bestWeights, false); err != nil {
		return nil, err
	}
	r.an.Rebuild()
	if !r.an.Consistent() {
		return nil, fmt.Errorf("当前最优权重不一致（谱半径 %.4f），拒绝生成", r.an.SpectralRadius())
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res, err := r.engine.Generate(r.start, seed+int64(i))
		if err != nil {
			return nil, err
		}
		out = append(out, res.Text)
	}
	return out, nil
}

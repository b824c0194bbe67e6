// Package history 持久化运行历史：每一轮每个候选的得分与计数
// 进关系库，最优权重向量进检查点库，轮次汇总可导出表格。
// 存储失败不应中断演化，调用方把错误记日志后继续。
package history

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run 一次完整的模糊测试运行
type Run struct {
	ID         string `gorm:"primaryKey"`
	Driver     string
	GeneMode   string
	StartedAt  time.Time
	FinishedAt time.Time
	Rounds     int
	BestScore  float64
}

// Generation 一轮里一个候选的评分记录
type Generation struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"index"`
	Round     int
	Candidate int
	Score     float64
	Special   bool
	OKCount   int
	ErrCount  int
	SynCount  int
	TOCount   int
	FBCount   int
	Radius    float64
}

// Statement 一条被执行语句的留痕。只保留失败语句和抽样的
// 成功语句，全量落库会让历史库膨胀得毫无意义。
type Statement struct {
	ID         string `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	Round      int
	Candidate  int
	SQL        string
	Outcome    string
	Rows       int
	DurationMS int64
	Message    string
}

// Store 关系历史库
type Store struct {
	db *gorm.DB
}

// OpenStore 打开（或创建）历史库。path 用 :memory: 时建内存库。
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开历史库失败: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &Generation{}, &Statement{}); err != nil {
		return nil, fmt.Errorf("历史库建表失败: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRun 登记一次新运行
func (s *Store) CreateRun(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return s.db.Create(run).Error
}

// FinishRun 写回运行的收尾字段
func (s *Store) FinishRun(runID string, rounds int, bestScore float64) error {
	return s.db.Model(&Run{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"finished_at": time.Now(),
		"rounds":      rounds,
		"best_score":  bestScore,
	}).Error
}

// RecordGeneration 落一条候选评分记录
func (s *Store) RecordGeneration(gen *Generation) error {
	return s.db.Create(gen).Error
}

// RecordStatements 批量落语句留痕
func (s *Store) RecordStatements(stmts []*Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	return s.db.CreateInBatches(stmts, 100).Error
}

// Generations 按轮次升序取一次运行的全部候选记录
func (s *Store) Generations(runID string) ([]Generation, error) {
	var gens []Generation
	err := s.db.Where("run_id = ?", runID).
		Order("round asc, candidate asc").
		Find(&gens).Error
	return gens, err
}

// BestGeneration 取一次运行的最高分记录
func (s *Store) BestGeneration(runID string) (*Generation, error) {
	var gen Generation
	err := s.db.Where("run_id = ?", runID).
		Order("score desc").
		First(&gen).Error
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// FailedStatements 取一次运行里结局非 ok 的语句
func (s *Store) FailedStatements(runID string, limit int) ([]Statement, error) {
	var stmts []Statement
	err := s.db.Where("run_id = ? AND outcome <> ?", runID, "ok").
		Order("round asc").
		Limit(limit).
		Find(&stmts).Error
	return stmts, err
}

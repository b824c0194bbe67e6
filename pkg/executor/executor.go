// Package executor 把生成的语句送进被测数据库执行，并把结果
// 归类成评分器可以消费的结局。执行失败是模糊测试的正常产出，
// 不是错误：只有连接层面的故障才通过 error 上抛。
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Outcome 一条语句的执行结局
type Outcome int

const (
	// OutcomeOK 执行成功
	OutcomeOK Outcome = iota
	// OutcomeSyntax 语法预检未通过
	OutcomeSyntax
	// OutcomeError 被测库报执行错误
	OutcomeError
	// OutcomeTimeout 执行超时被取消
	OutcomeTimeout
)

var outcomeNames = map[Outcome]string{
	OutcomeOK:      "ok",
	OutcomeSyntax:  "syntax",
	OutcomeError:   "error",
	OutcomeTimeout: "timeout",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Result 一条语句的执行记录
type Result struct {
	// ID 语句的全局唯一标识，供历史库关联
	ID      string
	SQL     string
	Outcome Outcome
	// Class 预检给出的语句分类，预检关闭时为空
	Class    string
	Rows     int
	Duration time.Duration
	// Message 失败时的错误文本
	Message string
}

// driverNames 配置里的驱动名到 database/sql 注册名的映射
var driverNames = map[string]string{
	"mysql":    "mysql",
	"postgres": "postgres",
	"sqlite":   "sqlite",
}

// Executor 被测数据库执行器
type Executor struct {
	db        *sql.DB
	timeout   time.Duration
	preflight *Preflight
}

// Option 执行器选项
type Option func(*Executor)

// WithPreflight 执行前先做语法预检，预检失败的语句不送库
func WithPreflight(p *Preflight) Option {
	return func(e *Executor) { e.preflight = p }
}

// Open 连接被测数据库。driver 取 mysql、postgres 或 sqlite。
func Open(driver, dsn string, timeout time.Duration, opts ...Option) (*Executor, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	e := &Executor{db: db, timeout: timeout}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DB 返回底层连接，供对象目录自省复用
func (e *Executor) DB() *sql.DB { return e.db }

// Ping 验证连接可用
func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close 关闭连接
func (e *Executor) Close() error {
	return e.db.Close()
}

// Execute 执行一条语句并归类结局。行集会被完整遍历，
// 行数计入结果；被测库的报错写进 Message，不上抛。
func (e *Executor) Execute(ctx context.Context, sqlText string) *Result {
	res := &Result{
		ID:  uuid.New().String(),
		SQL: sqlText,
	}

	if e.preflight != nil {
		class, err := e.preflight.Classify(sqlText)
		if err != nil {
			res.Outcome = OutcomeSyntax
			res.Message = err.Error()
			return res
		}
		res.Class = class
	}

	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.db.QueryContext(execCtx, sqlText)
	if err != nil {
		res.Duration = time.Since(start)
		res.Outcome = classifyError(execCtx, err)
		res.Message = err.Error()
		return res
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	res.Duration = time.Since(start)
	res.Rows = count

	if err := rows.Err(); err != nil {
		res.Outcome = classifyError(execCtx, err)
		res.Message = err.Error()
		return res
	}
	res.Outcome = OutcomeOK
	return res
}

// ExecuteBatch 顺序执行一批语句。单条语句的失败都体现在
// 各自的结果里，整批总是返回等长的结果切片。
func (e *Executor) ExecuteBatch(ctx context.Context, stmts []string) []*Result {
	results := make([]*Result, len(stmts))
	for i, s := range stmts {
		results[i] = e.Execute(ctx, s)
	}
	return results
}

func classifyError(ctx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeError
}

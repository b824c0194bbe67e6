package executor

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Preflight SQL 语法预检，封装 TiDB parser。
// 预检把明显的语法垃圾挡在被测库之外，同时给语句分类，
// 让评分器能区分"库拒绝了合法语句"和"文法拼出了垃圾"。
type Preflight struct {
	parser *parser.Parser
}

// NewPreflight 创建预检器。parser 实例不支持并发使用，
// 一个执行器配一个预检器。
func NewPreflight() *Preflight {
	return &Preflight{
		parser: parser.New(),
	}
}

// Classify 解析单条语句并返回分类标签。解析失败时返回错误。
func (p *Preflight) Classify(sql string) (string, error) {
	stmt, err := p.parser.ParseOneStmt(sql, "", "")
	if err != nil {
		return "", fmt.Errorf("语法预检失败: %w", err)
	}
	return classLabel(stmt), nil
}

func classLabel(stmt ast.StmtNode) string {
	switch stmt.(type) {
	case *ast.SelectStmt:
		return "select"
	case *ast.SetOprStmt:
		return "set_op"
	case *ast.InsertStmt:
		return "insert"
	case *ast.UpdateStmt:
		return "update"
	case *ast.DeleteStmt:
		return "delete"
	default:
		return "other"
	}
}

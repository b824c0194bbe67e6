package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	e, err := Open("sqlite", ":memory:", 5*time.Second, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	ctx := context.Background()
	require.NoError(t, e.Ping(ctx))
	for _, ddl := range []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO users (id, name) VALUES (1, 'alice'), (2, 'bob')",
	} {
		res := e.Execute(ctx, ddl)
		require.Equal(t, OutcomeOK, res.Outcome, res.Message)
	}
	return e
}

func TestExecuteSelect(t *testing.T) {
	e := openTestExecutor(t)

	res := e.Execute(context.Background(), "SELECT id, name FROM users")
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 2, res.Rows)
	assert.NotEmpty(t, res.ID)
	assert.Empty(t, res.Message)
}

func TestExecuteErrorIsNotFatal(t *testing.T) {
	e := openTestExecutor(t)

	res := e.Execute(context.Background(), "SELECT missing_col FROM users")
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.NotEmpty(t, res.Message)
}

func TestExecuteBatchKeepsLength(t *testing.T) {
	e := openTestExecutor(t)

	stmts := []string{
		"SELECT 1",
		"SELECT nonsense FROM nowhere",
		"SELECT name FROM users WHERE id = 1",
	}
	results := e.ExecuteBatch(context.Background(), stmts)
	require.Len(t, results, 3)
	assert.Equal(t, OutcomeOK, results[0].Outcome)
	assert.Equal(t, OutcomeError, results[1].Outcome)
	assert.Equal(t, OutcomeOK, results[2].Outcome)
	assert.Equal(t, 1, results[2].Rows)

	// 每条语句的标识互不相同
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestPreflightBlocksGarbage(t *testing.T) {
	e := openTestExecutor(t, WithPreflight(NewPreflight()))

	res := e.Execute(context.Background(), "SELEKT garbage FROM")
	assert.Equal(t, OutcomeSyntax, res.Outcome)
	assert.NotEmpty(t, res.Message)

	ok := e.Execute(context.Background(), "SELECT name FROM users")
	assert.Equal(t, OutcomeOK, ok.Outcome)
	assert.Equal(t, "select", ok.Class)
}

func TestPreflightClassification(t *testing.T) {
	p := NewPreflight()

	class, err := p.Classify("SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "select", class)

	class, err = p.Classify("SELECT 1 UNION SELECT 2")
	require.NoError(t, err)
	assert.Equal(t, "set_op", class)

	_, err = p.Classify("not sql at all")
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", time.Second)
	assert.Error(t, err)
}

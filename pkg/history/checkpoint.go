package history

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNoCheckpoint 指定运行没有任何检查点
var ErrNoCheckpoint = errors.New("没有检查点")

// Checkpoints 权重向量检查点库。每轮结束把当前最优向量存进来，
// 中断的运行可以从最近一轮继续，不必从缺省权重重新演化。
type Checkpoints struct {
	db *badger.DB
}

// OpenCheckpoints 打开检查点库。dir 为空时用内存库，进程退出即失。
func OpenCheckpoints(dir string) (*Checkpoints, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开检查点库失败: %w", err)
	}
	return &Checkpoints{db: db}, nil
}

// Close 关闭检查点库
func (c *Checkpoints) Close() error {
	return c.db.Close()
}

type checkpoint struct {
	Round   int     `json:"round"`
	Score   float64 `json:"score"`
	Weights []int   `json:"weights"`
}

func checkpointKey(runID string, round int) []byte {
	// 轮次零填充，字节序即轮次序
	return []byte(fmt.Sprintf("ckpt/%s/%08d", runID, round))
}

// Save 存一轮的最优权重向量
func (c *Checkpoints) Save(runID string, round int, score float64, weights []int) error {
	data, err := json.Marshal(checkpoint{Round: round, Score: score, Weights: weights})
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(runID, round), data)
	})
}

// Load 取指定轮次的检查点
func (c *Checkpoints) Load(runID string, round int) ([]int, float64, error) {
	var cp checkpoint
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(runID, round))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, ErrNoCheckpoint
	}
	if err != nil {
		return nil, 0, err
	}
	return cp.Weights, cp.Score, nil
}

// LoadLatest 取一次运行最近一轮的检查点
func (c *Checkpoints) LoadLatest(runID string) ([]int, int, error) {
	prefix := []byte(fmt.Sprintf("ckpt/%s/", runID))
	var cp checkpoint
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		// 键按轮次升序，扫到最后一个即最新
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			})
			if err != nil {
				return err
			}
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, ErrNoCheckpoint
	}
	return cp.Weights, cp.Round, nil
}

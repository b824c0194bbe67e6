package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	// 验证文法配置
	assert.Equal(t, 100, config.Grammar.TargetTop)
	assert.Equal(t, 0.95, config.Grammar.MaxRadius)
	assert.Equal(t, 64, config.Grammar.RepairAttempts)
	assert.True(t, config.Grammar.RuleCounting)

	// 验证遗传配置
	assert.Equal(t, "rule", config.Genetic.Mode)
	assert.Equal(t, 20, config.Genetic.PopulationSize)
	assert.Equal(t, 10, config.Genetic.Generations)
	assert.Equal(t, 50, config.Genetic.BatchSize)
	assert.Equal(t, 0.15, config.Genetic.MutationProb)

	// 验证被测库配置
	assert.Equal(t, "sqlite", config.Target.Driver)
	assert.Equal(t, ":memory:", config.Target.DSN)
	assert.Equal(t, 5*time.Second, config.Target.ExecTimeout)
	assert.True(t, config.Target.Preflight)

	// 验证历史配置
	assert.True(t, config.History.Enabled)
	assert.Equal(t, "sqlfuzz_history.db", config.History.Path)

	// 验证日志配置
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	config, err := LoadConfig("")

	assert.NoError(t, err)
	assert.NotNil(t, config)
	assert.Equal(t, "sqlite", config.Target.Driver)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("non_existent_config.json")

	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "配置文件不存在")
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	err := os.WriteFile(configPath, []byte("{invalid json"), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)

	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "解析配置文件失败")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name      string
		configKey string
		configVal map[string]interface{}
		errMsg    string
	}{
		{
			name:      "invalid target top",
			configKey: "grammar",
			configVal: map[string]interface{}{
				"target_top": 0,
			},
			errMsg: "权重归一化目标必须大于0",
		},
		{
			name:      "invalid max radius",
			configKey: "grammar",
			configVal: map[string]interface{}{
				"max_radius": 1.5,
			},
			errMsg: "无效的谱半径上限",
		},
		{
			name:      "invalid repair attempts",
			configKey: "grammar",
			configVal: map[string]interface{}{
				"repair_attempts": 0,
			},
			errMsg: "修复尝试次数必须大于0",
		},
		{
			name:      "invalid gene mode",
			configKey: "genetic",
			configVal: map[string]interface{}{
				"mode": "chromosome",
			},
			errMsg: "无效的基因粒度",
		},
		{
			name:      "invalid population size",
			configKey: "genetic",
			configVal: map[string]interface{}{
				"population_size": 1,
			},
			errMsg: "种群规模必须大于1",
		},
		{
			name:      "invalid batch size",
			configKey: "genetic",
			configVal: map[string]interface{}{
				"batch_size": 0,
			},
			errMsg: "每个候选的语句数必须大于0",
		},
		{
			name:      "invalid mutation prob",
			configKey: "genetic",
			configVal: map[string]interface{}{
				"mutation_prob": 1.5,
			},
			errMsg: "无效的变异概率",
		},
		{
			name:      "unsupported driver",
			configKey: "target",
			configVal: map[string]interface{}{
				"driver": "oracle",
			},
			errMsg: "不支持的数据库驱动",
		},
		{
			name:      "empty dsn",
			configKey: "target",
			configVal: map[string]interface{}{
				"dsn": "",
			},
			errMsg: "数据源名称不能为空",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.json")

			configData := map[string]interface{}{
				tt.configKey: tt.configVal,
			}

			jsonData, _ := json.Marshal(configData)
			err := os.WriteFile(configPath, jsonData, 0644)
			require.NoError(t, err)

			config, err := LoadConfig(configPath)

			assert.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configData := map[string]interface{}{
		"genetic": map[string]interface{}{
			"mode":            "nonterminal",
			"population_size": 40,
		},
		"target": map[string]interface{}{
			"driver": "mysql",
			"dsn":    "root@tcp(127.0.0.1:3306)/test",
		},
	}

	jsonData, _ := json.Marshal(configData)
	err := os.WriteFile(configPath, jsonData, 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)

	assert.NoError(t, err)
	assert.NotNil(t, config)
	assert.Equal(t, "nonterminal", config.Genetic.Mode)
	assert.Equal(t, 40, config.Genetic.PopulationSize)
	assert.Equal(t, "mysql", config.Target.Driver)
	// 其他字段应该使用默认值
	assert.Equal(t, 100, config.Grammar.TargetTop)
	assert.Equal(t, 50, config.Genetic.BatchSize)
}

func TestLoadConfigOrDefault_WithEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	configData := map[string]interface{}{
		"grammar": map[string]interface{}{
			"target_top": 200,
		},
	}

	jsonData, _ := json.Marshal(configData)
	err := os.WriteFile(configPath, jsonData, 0644)
	require.NoError(t, err)

	oldEnv := os.Getenv("SQLFUZZ_CONFIG")
	t.Cleanup(func() {
		os.Setenv("SQLFUZZ_CONFIG", oldEnv)
	})
	os.Setenv("SQLFUZZ_CONFIG", configPath)

	config := LoadConfigOrDefault()

	assert.NotNil(t, config)
	assert.Equal(t, 200, config.Grammar.TargetTop)
}

func TestLoadConfigOrDefault_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	t.Cleanup(func() {
		os.Chdir(oldWd)
	})

	config := LoadConfigOrDefault()

	assert.NotNil(t, config)
	assert.Equal(t, "sqlite", config.Target.Driver) // 使用默认值
}

func TestConfigStructTags(t *testing.T) {
	config := DefaultConfig()

	jsonData, err := json.Marshal(config)
	assert.NoError(t, err)
	assert.NotEmpty(t, jsonData)

	var parsedConfig Config
	err = json.Unmarshal(jsonData, &parsedConfig)
	assert.NoError(t, err)
	assert.Equal(t, config.Genetic.Mode, parsedConfig.Genetic.Mode)
	assert.Equal(t, config.Target.Driver, parsedConfig.Target.Driver)
}

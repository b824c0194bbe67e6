package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 应用程序配置
type Config struct {
	Grammar GrammarConfig `json:"grammar"`
	Genetic GeneticConfig `json:"genetic"`
	Target  TargetConfig  `json:"target"`
	History HistoryConfig `json:"history"`
	MCP     MCPConfig     `json:"mcp"`
	Log     LogConfig     `json:"log"`
}

// GrammarConfig 文法与一致性修复配置
type GrammarConfig struct {
	// TargetTop 权重归一化后组内最大权重的目标值
	TargetTop int `json:"target_top"`
	// MaxRadius 接受的谱半径上限，必须小于 1
	MaxRadius float64 `json:"max_radius"`
	// RepairAttempts 单次修复的尝试次数上限
	RepairAttempts int `json:"repair_attempts"`
	// RuleCounting 生成时按产生式统计命中次数
	RuleCounting bool `json:"rule_counting"`
}

// GeneticConfig 遗传演化配置
type GeneticConfig struct {
	Mode           string  `json:"mode"` // rule 或 nonterminal
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	BatchSize      int     `json:"batch_size"` // 每个候选生成的语句数
	MutationProb   float64 `json:"mutation_prob"`
	Sigma          float64 `json:"sigma"`
	RuleFraction   float64 `json:"rule_fraction"`
	NTFraction     float64 `json:"nt_fraction"`
	CopyFraction   float64 `json:"copy_fraction"`
	Seed           int64   `json:"seed"`
}

// TargetConfig 被测数据库配置
type TargetConfig struct {
	Driver string `json:"driver"` // mysql、postgres 或 sqlite
	DSN    string `json:"dsn"`
	// UniverseFile 对象清单文件；为空时启动期自省被测库
	UniverseFile string        `json:"universe_file"`
	ExecTimeout  time.Duration `json:"exec_timeout"`
	// Preflight 执行前用语法分析器做一次分类预检
	Preflight bool `json:"preflight"`
}

// HistoryConfig 历史与检查点存储配置
type HistoryConfig struct {
	Enabled bool `json:"enabled"`
	// Path 历史库文件路径，内存库用 :memory:
	Path string `json:"path"`
	// CheckpointDir 权重检查点目录，为空时用内存检查点
	CheckpointDir string `json:"checkpoint_dir"`
	// ReportDir 轮次汇总表导出目录，为空时不导出
	ReportDir string `json:"report_dir"`
}

// MCPConfig MCP 服务配置
type MCPConfig struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or text
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Grammar: GrammarConfig{
			TargetTop:      100,
			MaxRadius:      0.95,
			RepairAttempts: 64,
			RuleCounting:   true,
		},
		Genetic: GeneticConfig{
			Mode:           "rule",
			PopulationSize: 20,
			Generations:    10,
			BatchSize:      50,
			MutationProb:   0.15,
			Sigma:          0.08,
			RuleFraction:   0.05,
			NTFraction:     0.10,
			CopyFraction:   0.10,
			Seed:           1,
		},
		Target: TargetConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			ExecTimeout: 5 * time.Second,
			Preflight:   true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "sqlfuzz_history.db",
		},
		MCP: MCPConfig{
			Enabled: false,
			Name:    "sqlfuzz",
			Version: "1.0.0",
			Host:    "127.0.0.1",
			Port:    8901,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件，使用默认配置
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// 检查配置文件是否存在
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigOrDefault 尝试从常见位置加载配置文件
func LoadConfigOrDefault() *Config {
	// 尝试的配置文件路径
	possiblePaths := []string{
		"config.json",
		"./config/config.json",
		"/etc/sqlfuzz/config.json",
	}

	// 尝试从环境变量获取配置文件路径
	if envPath := os.Getenv("SQLFUZZ_CONFIG"); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	// 尝试从常见位置加载
	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	// 使用默认配置
	return DefaultConfig()
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Grammar.TargetTop < 1 {
		return fmt.Errorf("权重归一化目标必须大于0")
	}

	if config.Grammar.MaxRadius <= 0 || config.Grammar.MaxRadius >= 1 {
		return fmt.Errorf("无效的谱半径上限: %f", config.Grammar.MaxRadius)
	}

	if config.Grammar.RepairAttempts < 1 {
		return fmt.Errorf("修复尝试次数必须大于0")
	}

	if config.Genetic.Mode != "rule" && config.Genetic.Mode != "nonterminal" {
		return fmt.Errorf("无效的基因粒度: %s", config.Genetic.Mode)
	}

	if config.Genetic.PopulationSize < 2 {
		return fmt.Errorf("种群规模必须大于1")
	}

	if config.Genetic.BatchSize < 1 {
		return fmt.Errorf("每个候选的语句数必须大于0")
	}

	if config.Genetic.MutationProb < 0 || config.Genetic.MutationProb > 1 {
		return fmt.Errorf("无效的变异概率: %f", config.Genetic.MutationProb)
	}

	switch config.Target.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", config.Target.Driver)
	}

	if config.Target.DSN == "" {
		return fmt.Errorf("数据源名称不能为空")
	}

	if config.Target.ExecTimeout < time.Millisecond {
		return fmt.Errorf("执行超时必须不小于1毫秒")
	}

	if config.MCP.Enabled && (config.MCP.Port < 1 || config.MCP.Port > 65535) {
		return fmt.Errorf("无效的端口号: %d", config.MCP.Port)
	}

	return nil
}

// GetListenAddress 返回 MCP 服务监听地址
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.MCP.Host, c.MCP.Port)
}

// GeneMode 返回遗传配置对应的基因粒度标识
func (c *Config) GeneMode() string {
	return c.Genetic.Mode
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/kasuganosora/sqlfuzz/pkg/config"
	"github.com/kasuganosora/sqlfuzz/pkg/executor"
	"github.com/kasuganosora/sqlfuzz/pkg/scope"
	"github.com/kasuganosora/sqlfuzz/server/mcp"
	"github.com/kasuganosora/sqlfuzz/service/fuzz"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，为空时使用缺省配置")
	serve := flag.Bool("serve", false, "启动 MCP 服务而不是直接跑完整演化")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatal("加载配置失败:", err)
		}
	} else {
		cfg = config.LoadConfigOrDefault()
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var preflightOpts []executor.Option
	if cfg.Target.Preflight {
		preflightOpts = append(preflightOpts, executor.WithPreflight(executor.NewPreflight()))
	}
	exec, err := executor.Open(cfg.Target.Driver, cfg.Target.DSN, cfg.Target.ExecTimeout, preflightOpts...)
	if err != nil {
		log.Fatal("连接被测库失败:", err)
	}
	defer exec.Close()
	if err := exec.Ping(ctx); err != nil {
		log.Fatal("被测库不可达:", err)
	}

	uni, err := loadUniverse(ctx, cfg, exec)
	if err != nil {
		log.Fatal("装载对象目录失败:", err)
	}
	if uni.Empty() {
		fmt.Println("对象目录为空，所有引用都将使用合成占位名")
	}

	runner, err := fuzz.New(cfg, uni, exec, logger)
	if err != nil {
		log.Fatal("组装调度器失败:", err)
	}
	defer runner.Close()

	if *serve {
		fmt.Printf("启动 MCP 服务: %s\n", cfg.GetListenAddress())
		fmt.Println("可用工具: generate / status / evolve")
		srv := mcp.NewServer(runner, &cfg.MCP)
		if err := srv.Start(); err != nil {
			log.Fatal("MCP 服务启动失败:", err)
		}
		return
	}

	fmt.Printf("开始演化: 运行 %s，%d 轮 × %d 候选 × %d 条语句\n",
		runner.RunID(), cfg.Genetic.Generations, cfg.Genetic.PopulationSize, cfg.Genetic.BatchSize)
	if err := runner.Run(ctx); err != nil {
		log.Fatal("演化失败:", err)
	}
}

// loadUniverse 按配置装载对象目录：有清单文件用清单，否则自省被测库
func loadUniverse(ctx context.Context, cfg *config.Config, exec *executor.Executor) (*scope.Universe, error) {
	if cfg.Target.UniverseFile != "" {
		return scope.LoadUniverseFile(cfg.Target.UniverseFile)
	}
	return scope.IntrospectUniverse(ctx, cfg.Target.Driver, cfg.Target.DSN)
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 %q: %w", cfg.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

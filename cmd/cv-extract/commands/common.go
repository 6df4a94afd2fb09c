package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jinford/cv-extract/internal/platform/config"
	"github.com/jinford/cv-extract/internal/platform/container"
	"github.com/jinford/cv-extract/internal/platform/logger"
	"github.com/urfave/cli/v3"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Logger    *slog.Logger
	Container *container.Container
}

// loadConfig は設定を読み込み、コマンドラインの指定で上書きする
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if p := cmd.String("policy"); p != "" {
		cfg.Extraction.PolicyFile = p
	}
	if models := cmd.StringSlice("model"); len(models) > 0 {
		cfg.LLM.Models = models
	}
	return cfg, nil
}

// newLogger は設定に従ってロガーを作成する。ログは標準エラーに出力する。
func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// NewAppContext は設定を読み込み、コンテナを作成して AppContext を返す
func NewAppContext(ctx context.Context, cmd *cli.Command, opts ...container.Option) (*AppContext, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	appLogger := newLogger(cfg)

	cont, err := container.New(ctx, appLogger, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Logger:    appLogger,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// workerID はワーカーの識別子を返す
func workerID(cmd *cli.Command) string {
	if id := cmd.String("worker-id"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/llm"
	"github.com/jinford/cv-extract/internal/infra/openai"
	"github.com/jinford/cv-extract/internal/infra/queue"
	"github.com/jinford/cv-extract/internal/platform/config"
	"github.com/jinford/cv-extract/internal/platform/database"
	"github.com/redis/go-redis/v9"
)

// Container はアプリケーションの依存関係を保持する
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Policy   extraction.Policy
	Service  *extraction.Service
	Client   *llm.ThrottledClient
	Metrics  *llm.Metrics
	ErrorLog *llm.ErrorLog

	// Database と Store は PostgreSQL を使う構成でのみ設定される
	Database *database.Database
	Store    *database.Store

	redis *redis.Client
	queue *queue.Queue
}

type containerOptions struct {
	client   extraction.Client
	database *database.Database
	source   extraction.TextSource
	sink     extraction.RecordSink
	baseCtx  context.Context
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithClient はモデルクライアントを差し替える
func WithClient(client extraction.Client) Option {
	return func(o *containerOptions) {
		o.client = client
	}
}

// WithDatabase は接続済みの Database を使う
func WithDatabase(db *database.Database) Option {
	return func(o *containerOptions) {
		o.database = db
	}
}

// WithFiles はデータベースを使わず、ファイルなどの入出力で動かす。ジョブはメモリ上でのみ管理する。
func WithFiles(source extraction.TextSource, sink extraction.RecordSink) Option {
	return func(o *containerOptions) {
		o.source = source
		o.sink = sink
	}
}

// WithBaseContext はジョブ実行のベースコンテキストを設定する
func WithBaseContext(ctx context.Context) Option {
	return func(o *containerOptions) {
		o.baseCtx = ctx
	}
}

// New は設定からコンテナを生成する
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, Policy: policy}

	// モデルクライアント
	client := options.client
	if client == nil {
		counter, err := llm.NewTokenCounter()
		if err != nil {
			logger.Warn("token counter unavailable, usage fallback disabled", "error", err)
		}
		clientOpts := []openai.ClientOption{openai.WithClientLogger(logger)}
		if counter != nil {
			clientOpts = append(clientOpts, openai.WithTokenCounter(counter))
		}
		client, err = openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Referer: cfg.LLM.AppReferer,
			Title:   cfg.LLM.AppTitle,
		}, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
	}
	c.Client = llm.NewThrottledClient(client, cfg.LLM.RequestsPerMinute, cfg.LLM.MaxConcurrent)
	c.Metrics = llm.NewMetrics()

	c.ErrorLog, err = llm.NewErrorLog(cfg.LLM.ErrorLogDir, llm.WithErrorLogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	serviceOpts := []extraction.ServiceOption{
		extraction.WithServicePolicy(policy),
		extraction.WithServiceLogger(logger),
		extraction.WithServiceObserver(c.Metrics),
	}
	if c.ErrorLog.Enabled() {
		serviceOpts = append(serviceOpts, extraction.WithServiceDiagnostics(c.ErrorLog))
	}
	if options.baseCtx != nil {
		serviceOpts = append(serviceOpts, extraction.WithServiceContext(options.baseCtx))
	}

	source, sink := options.source, options.sink
	if source == nil || sink == nil {
		db := options.database
		if db == nil {
			db, err = database.New(ctx, database.ConnectionParams{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				DBName:   cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
			})
			if err != nil {
				c.ErrorLog.Close()
				return nil, fmt.Errorf("failed to initialize database: %w", err)
			}
		}
		c.Database = db
		c.Store = database.NewStore(db)
		source, sink = c.Store, c.Store
		serviceOpts = append(serviceOpts,
			extraction.WithServiceJobStore(c.Store.Jobs),
			extraction.WithServiceLineIndexer(c.Store),
		)
	}

	c.Service, err = extraction.NewService(source, c.Client, sink, serviceOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create extraction service: %w", err)
	}
	return c, nil
}

// Queue は Redis のジョブキューを返す。初回呼び出し時に接続する。
func (c *Container) Queue(ctx context.Context, workerID string) (*queue.Queue, error) {
	if c.queue != nil {
		return c.queue, nil
	}
	rc := c.Config.Redis
	c.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	q := queue.New(c.redis, queue.Options{
		Queue:        rc.Queue,
		ResultQueue:  rc.ResultQueue,
		WorkerID:     workerID,
		BlockTimeout: rc.BlockTimeout,
		LockTTL:      rc.LockTTL,
	})
	if err := q.Ping(ctx); err != nil {
		_ = c.redis.Close()
		c.redis = nil
		return nil, err
	}
	c.queue = q
	return q, nil
}

// Close は内部リソースを解放する
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.ErrorLog != nil {
		if err := c.ErrorLog.Close(); err != nil {
			c.Logger.Warn("failed to close error log", "error", err)
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.Database != nil {
		c.Database.Close()
	}
}

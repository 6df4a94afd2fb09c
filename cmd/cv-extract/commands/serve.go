package commands

import (
	"context"
	"time"

	"github.com/jinford/cv-extract/internal/app/worker"
	"github.com/jinford/cv-extract/internal/interface/httpapi"
	"github.com/jinford/cv-extract/internal/platform/container"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// ServeAction はHTTPサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd, container.WithBaseContext(context.WithoutCancel(ctx)))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	c := appCtx.Container
	cfg := appCtx.Config
	handler := httpapi.NewHandler(c.Service,
		httpapi.WithDocuments(c.Store.Documents, c.Store.Records),
		httpapi.WithMetrics(c.Metrics, c.Client),
		httpapi.WithLogger(appCtx.Logger),
	)

	addr := cfg.HTTP.Addr
	if a := cmd.String("addr"); a != "" {
		addr = a
	}
	err = httpapi.Serve(ctx, addr, handler.Router(), cfg.HTTP.ShutdownTimeout, appCtx.Logger)

	// 実行中のジョブを待つ。待ちきれない場合はキャンセルする。
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if shutdownErr := c.Service.Shutdown(shutdownCtx); shutdownErr != nil {
		appCtx.Logger.Warn("jobs canceled on shutdown", "error", shutdownErr)
	}
	return err
}

// WorkerAction はキューからジョブを取り出して処理するコマンドのアクション
func WorkerAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd, container.WithBaseContext(context.WithoutCancel(ctx)))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	c := appCtx.Container
	q, err := c.Queue(ctx, workerID(cmd))
	if err != nil {
		return err
	}

	concurrency := cmd.Int("concurrency")
	if concurrency <= 0 {
		concurrency = appCtx.Config.LLM.MaxConcurrent
	}
	w := worker.New(q, c.Service,
		worker.WithConcurrency(concurrency),
		worker.WithLogger(appCtx.Logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	if addr := cmd.String("metrics-addr"); addr != "" {
		handler := httpapi.NewHandler(c.Service,
			httpapi.WithMetrics(c.Metrics, c.Client),
			httpapi.WithLogger(appCtx.Logger),
		)
		g.Go(func() error {
			return httpapi.Serve(gctx, addr, handler.Router(), 5*time.Second, appCtx.Logger)
		})
	}
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appCtx.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if shutdownErr := c.Service.Shutdown(shutdownCtx); shutdownErr != nil {
		appCtx.Logger.Warn("jobs canceled on shutdown", "error", shutdownErr)
	}
	return err
}

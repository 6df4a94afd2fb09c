package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/filesource"
	"github.com/jinford/cv-extract/internal/platform/container"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// ExtractAction はテキストファイルからレコードを抽出するコマンドのアクション
func ExtractAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	outDir := cmd.String("output")

	src := filesource.NewSource()
	docID, err := src.Register(path)
	if err != nil {
		return err
	}
	sink := fileSink(src, outDir)

	appCtx, err := NewAppContext(ctx, cmd, container.WithFiles(src, sink), container.WithBaseContext(ctx))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := runJob(ctx, appCtx, docID, filepath.Base(path))
	if err != nil {
		return err
	}
	if cmd.Bool("metrics") {
		appCtx.Container.Metrics.PrintSummary(os.Stderr)
	}
	if job.Status != extraction.StatusCompleted {
		return fmt.Errorf("抽出に失敗: %s", job.Error)
	}
	if outDir != "" {
		fmt.Fprintf(os.Stderr, "✓ %s\n", sink.OutputPath(docID))
	}
	return nil
}

// BatchAction はディレクトリ内のテキストファイルをまとめて処理するコマンドのアクション
func BatchAction(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	outDir := cmd.String("output")
	concurrency := cmd.Int("concurrency")

	files, err := filesource.Collect(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("処理対象のファイルがありません: %s", dir)
	}

	src := filesource.NewSource()
	ids := make([]uuid.UUID, len(files))
	for i, f := range files {
		if ids[i], err = src.Register(f); err != nil {
			return err
		}
	}
	sink := fileSink(src, outDir)

	appCtx, err := NewAppContext(ctx, cmd, container.WithFiles(src, sink), container.WithBaseContext(ctx))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, f := range files {
		g.Go(func() error {
			job, err := runJob(gctx, appCtx, ids[i], filepath.Base(f))
			if err != nil {
				return err
			}
			if job.Status != extraction.StatusCompleted {
				failed.Add(1)
				appCtx.Logger.Error("document failed", "file", f, "jobID", job.ID, "error", job.Error)
				return nil
			}
			appCtx.Logger.Info("document extracted", "file", f, "jobID", job.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if cmd.Bool("metrics") {
		appCtx.Container.Metrics.PrintSummary(os.Stderr)
	}
	fmt.Fprintf(os.Stderr, "処理件数: %d, 失敗: %d\n", len(files), failed.Load())
	if failed.Load() > 0 {
		return errors.New("一部の文書の抽出に失敗しました")
	}
	return nil
}

func fileSink(src *filesource.Source, outDir string) *filesource.JSONSink {
	if outDir == "" {
		return filesource.NewWriterSink(src, os.Stdout)
	}
	return filesource.NewFileSink(src, outDir)
}

// runJob はジョブを投入して完了を待つ。ctx が終わった場合はジョブを停止する。
func runJob(ctx context.Context, appCtx *AppContext, docID uuid.UUID, fileName string) (*extraction.Job, error) {
	svc := appCtx.Container.Service
	job, err := svc.Submit(ctx, extraction.SubmitRequest{DocumentID: docID, FileName: fileName})
	if err != nil {
		return nil, fmt.Errorf("ジョブの投入に失敗: %w", err)
	}

	done, err := svc.Wait(ctx, job.ID)
	if err != nil {
		if _, stopErr := svc.Stop(context.WithoutCancel(ctx), job.ID); stopErr != nil {
			appCtx.Logger.Warn("failed to stop job", "jobID", job.ID, "error", stopErr)
		}
		return nil, err
	}
	return done, nil
}

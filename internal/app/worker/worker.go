// Package worker はキューからタスクを取り出して抽出ジョブを実行する。
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/queue"
)

// TaskQueue はワーカーが使うキュー操作
type TaskQueue interface {
	Dequeue(ctx context.Context) (*queue.Task, error)
	Claim(ctx context.Context, documentID uuid.UUID) (bool, error)
	Release(ctx context.Context, documentID uuid.UUID) error
	Enqueue(ctx context.Context, task queue.Task) error
	PublishResult(ctx context.Context, result queue.Result) error
}

// JobRunner はジョブの投入・再実行・完了待ちを行う
type JobRunner interface {
	Submit(ctx context.Context, req extraction.SubmitRequest) (*extraction.Job, error)
	Retry(ctx context.Context, jobID uuid.UUID) (extraction.ControlResult, error)
	Wait(ctx context.Context, jobID uuid.UUID) (*extraction.Job, error)
	Get(ctx context.Context, jobID uuid.UUID) (*extraction.Job, error)
}

// Worker はキューのタスクを並行数の上限つきで処理する
type Worker struct {
	queue       TaskQueue
	runner      JobRunner
	concurrency int
	// requeueDelay はロックが取れなかったタスクを戻すまでの待ち時間
	requeueDelay time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Option は Worker のオプション
type Option func(*Worker)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithConcurrency は同時に処理するタスク数を設定する
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithRequeueDelay はロック競合時の再投入までの待ち時間を設定する
func WithRequeueDelay(d time.Duration) Option {
	return func(w *Worker) {
		w.requeueDelay = d
	}
}

// New は新しい Worker を作成します
func New(q TaskQueue, runner JobRunner, opts ...Option) *Worker {
	w := &Worker{
		queue:        q,
		runner:       runner,
		concurrency:  1,
		requeueDelay: time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run は ctx が終わるまでタスクを処理します。処理中のタスクの終了を待ってから戻ります。
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "concurrency", w.concurrency)
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return nil
		case sem <- struct{}{}:
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("failed to dequeue task", "error", err)
			continue
		}
		if task == nil {
			<-sem
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.Handle(ctx, *task); err != nil {
				w.logger.Error("task failed", "action", task.Action, "documentID", task.DocumentID, "jobID", task.JobID, "error", err)
			}
		}()
	}
}

// Handle は1件のタスクを最後まで処理し、結果キューに通知します
func (w *Worker) Handle(ctx context.Context, task queue.Task) error {
	documentID := task.DocumentID
	if task.Action == queue.ActionRetry && documentID == uuid.Nil {
		job, err := w.runner.Get(ctx, task.JobID)
		if err != nil {
			return fmt.Errorf("failed to load job %s: %w", task.JobID, err)
		}
		documentID = job.DocumentID
	}

	claimed, err := w.queue.Claim(ctx, documentID)
	if err != nil {
		return err
	}
	if !claimed {
		// 同じ文書を別のワーカーが処理中
		w.logger.Info("document busy, requeueing task", "documentID", documentID)
		select {
		case <-time.After(w.requeueDelay):
		case <-ctx.Done():
		}
		return w.queue.Enqueue(context.WithoutCancel(ctx), task)
	}
	defer func() {
		if err := w.queue.Release(context.WithoutCancel(ctx), documentID); err != nil {
			w.logger.Warn("failed to release document lock", "documentID", documentID, "error", err)
		}
	}()

	jobID, err := w.start(ctx, task)
	if err != nil {
		return err
	}

	job, err := w.runner.Wait(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to wait for job %s: %w", jobID, err)
	}

	w.logger.Info("task finished", "jobID", jobID, "status", job.Status, "run", job.Run)
	return w.queue.PublishResult(context.WithoutCancel(ctx), queue.Result{
		TaskAction: task.Action,
		Progress:   job.ProgressAt(w.now()),
		FinishedAt: w.now(),
	})
}

func (w *Worker) start(ctx context.Context, task queue.Task) (uuid.UUID, error) {
	switch task.Action {
	case queue.ActionRetry:
		res, err := w.runner.Retry(ctx, task.JobID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to retry job %s: %w", task.JobID, err)
		}
		if !res.Accepted() {
			return uuid.Nil, fmt.Errorf("retry of job %s rejected: %s", task.JobID, res)
		}
		return task.JobID, nil
	case queue.ActionExtract:
		job, err := w.runner.Submit(ctx, extraction.SubmitRequest{
			JobID:      task.JobID,
			DocumentID: task.DocumentID,
			FileName:   task.FileName,
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to submit job: %w", err)
		}
		return job.ID, nil
	default:
		return uuid.Nil, errors.New("unknown task action")
	}
}

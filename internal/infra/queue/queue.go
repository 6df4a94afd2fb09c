// Package queue は抽出ジョブを Redis のリストで受け渡す。
// 投入側は RPUSH、ワーカーは BLPOP で取り出し、同じジョブを複数のワーカーが処理しないようロックキーを取る。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/redis/go-redis/v9"
)

// Action はタスクの種類
type Action string

const (
	ActionExtract Action = "extract"
	ActionRetry   Action = "retry"
)

// Task はキューに積む1件の処理要求
type Task struct {
	Action     Action    `json:"action"`
	JobID      uuid.UUID `json:"job_id,omitempty"`
	DocumentID uuid.UUID `json:"document_id"`
	FileName   string    `json:"file_name,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate はタスクが処理可能かを検証します
func (t Task) Validate() error {
	switch t.Action {
	case ActionExtract:
		if t.DocumentID == uuid.Nil {
			return errors.New("extract task requires document_id")
		}
	case ActionRetry:
		if t.JobID == uuid.Nil {
			return errors.New("retry task requires job_id")
		}
	default:
		return fmt.Errorf("unknown task action %q", t.Action)
	}
	return nil
}

// Result はワーカーが処理を終えたときに結果キューへ積む通知
type Result struct {
	TaskAction Action              `json:"action"`
	WorkerID   string              `json:"worker_id"`
	Progress   extraction.Progress `json:"progress"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Options は Queue の設定
type Options struct {
	Queue        string
	ResultQueue  string
	WorkerID     string
	BlockTimeout time.Duration
	LockTTL      time.Duration
}

// Queue は Redis 上のジョブキュー
type Queue struct {
	client redis.UniversalClient
	opts   Options
}

// New は新しい Queue を作成します
func New(client redis.UniversalClient, opts Options) *Queue {
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 5 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Queue{client: client, opts: opts}
}

// Enqueue はタスクを末尾に追加します
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.RPush(ctx, q.opts.Queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue は先頭のタスクを取り出します。BlockTimeout の間に何もなければ nil を返します。
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	// BLPop は [key, value] を返す
	result, err := q.client.BLPop(ctx, q.opts.BlockTimeout, q.opts.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	return &task, nil
}

// Len は待機中のタスク数を返します
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.opts.Queue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return n, nil
}

// Claim は文書のロックを取得します。他のワーカーが保持している場合は false を返します。
func (q *Queue) Claim(ctx context.Context, documentID uuid.UUID) (bool, error) {
	ok, err := q.client.SetNX(ctx, q.lockKey(documentID), q.opts.WorkerID, q.opts.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim document %s: %w", documentID, err)
	}
	return ok, nil
}

// Release は自分が保持している文書のロックを解放します
func (q *Queue) Release(ctx context.Context, documentID uuid.UUID) error {
	key := q.lockKey(documentID)
	owner, err := q.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock owner: %w", err)
	}
	if owner != q.opts.WorkerID {
		return nil
	}
	if err := q.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release document %s: %w", documentID, err)
	}
	return nil
}

// PublishResult は結果キューに処理結果を追加します
func (q *Queue) PublishResult(ctx context.Context, result Result) error {
	if q.opts.ResultQueue == "" {
		return nil
	}
	if result.WorkerID == "" {
		result.WorkerID = q.opts.WorkerID
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := q.client.RPush(ctx, q.opts.ResultQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

// Ping は Redis への接続を確認します
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func (q *Queue) lockKey(documentID uuid.UUID) string {
	return fmt.Sprintf("%s:lock:%s", q.opts.Queue, documentID)
}

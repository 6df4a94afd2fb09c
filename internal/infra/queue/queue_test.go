package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/queue"
	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	resource, err := pool.Run("redis", "7", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})
	_ = resource.Expire(60)

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp")),
	})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	}))
	return client
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    queue.Task
		wantErr string
	}{
		{name: "抽出", task: queue.Task{Action: queue.ActionExtract, DocumentID: uuid.New()}},
		{name: "再実行", task: queue.Task{Action: queue.ActionRetry, JobID: uuid.New()}},
		{name: "文書IDなし", task: queue.Task{Action: queue.ActionExtract}, wantErr: "document_id"},
		{name: "ジョブIDなし", task: queue.Task{Action: queue.ActionRetry, DocumentID: uuid.New()}, wantErr: "job_id"},
		{name: "不明な種類", task: queue.Task{Action: "delete", DocumentID: uuid.New()}, wantErr: "unknown task action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestQueue(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	opts := queue.Options{
		Queue:        "test:jobs",
		ResultQueue:  "test:results",
		WorkerID:     "worker-1",
		BlockTimeout: 100 * time.Millisecond,
		LockTTL:      time.Minute,
	}
	q := queue.New(client, opts)
	require.NoError(t, q.Ping(ctx))

	t.Run("投入順に取り出す", func(t *testing.T) {
		// Setup
		first := queue.Task{Action: queue.ActionExtract, DocumentID: uuid.New(), FileName: "a.pdf"}
		second := queue.Task{Action: queue.ActionRetry, JobID: uuid.New()}

		// Execute
		require.NoError(t, q.Enqueue(ctx, first))
		require.NoError(t, q.Enqueue(ctx, second))
		n, err := q.Len(ctx)
		require.NoError(t, err)
		got1, err := q.Dequeue(ctx)
		require.NoError(t, err)
		got2, err := q.Dequeue(ctx)
		require.NoError(t, err)

		// Assert
		assert.Equal(t, int64(2), n)
		assert.Equal(t, first.DocumentID, got1.DocumentID)
		assert.Equal(t, "a.pdf", got1.FileName)
		assert.False(t, got1.EnqueuedAt.IsZero())
		assert.Equal(t, second.JobID, got2.JobID)
	})

	t.Run("空のキューは nil を返す", func(t *testing.T) {
		task, err := q.Dequeue(ctx)

		require.NoError(t, err)
		assert.Nil(t, task)
	})

	t.Run("不正なタスクは投入しない", func(t *testing.T) {
		err := q.Enqueue(ctx, queue.Task{Action: queue.ActionExtract})

		assert.Error(t, err)
	})

	t.Run("文書のロック", func(t *testing.T) {
		// Setup
		docID := uuid.New()
		other := queue.New(client, queue.Options{Queue: opts.Queue, WorkerID: "worker-2"})

		// Execute & Assert
		ok, err := q.Claim(ctx, docID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = other.Claim(ctx, docID)
		require.NoError(t, err)
		assert.False(t, ok)

		// 他のワーカーのロックは解放しない
		require.NoError(t, other.Release(ctx, docID))
		ok, err = other.Claim(ctx, docID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, q.Release(ctx, docID))
		ok, err = other.Claim(ctx, docID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("結果の通知", func(t *testing.T) {
		// Setup
		jobID := uuid.New()
		result := queue.Result{
			TaskAction: queue.ActionExtract,
			Progress:   extraction.Progress{JobID: jobID, Status: extraction.StatusCompleted, ProgressPercent: 100},
			FinishedAt: time.Now(),
		}

		// Execute
		require.NoError(t, q.PublishResult(ctx, result))

		// Assert
		raw, err := client.LPop(ctx, opts.ResultQueue).Result()
		require.NoError(t, err)
		assert.Contains(t, raw, jobID.String())
		assert.Contains(t, raw, `"worker_id":"worker-1"`)
		assert.Contains(t, raw, `"status":"completed"`)
	})
}

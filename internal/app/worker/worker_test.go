package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/app/worker"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	mu        sync.Mutex
	tasks     []queue.Task
	claimed   map[uuid.UUID]bool
	busy      map[uuid.UUID]bool
	released  []uuid.UUID
	requeued  []queue.Task
	published []queue.Result
}

func newMockQueue(tasks ...queue.Task) *mockQueue {
	return &mockQueue{tasks: tasks, claimed: map[uuid.UUID]bool{}, busy: map[uuid.UUID]bool{}}
}

func (q *mockQueue) Dequeue(ctx context.Context) (*queue.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
		q.mu.Lock()
		return nil, nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return &t, nil
}

func (q *mockQueue) Claim(_ context.Context, documentID uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.busy[documentID] {
		return false, nil
	}
	q.claimed[documentID] = true
	return true, nil
}

func (q *mockQueue) Release(_ context.Context, documentID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, documentID)
	return nil
}

func (q *mockQueue) Enqueue(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued = append(q.requeued, task)
	return nil
}

func (q *mockQueue) PublishResult(_ context.Context, result queue.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, result)
	return nil
}

func (q *mockQueue) Published() []queue.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Result(nil), q.published...)
}

type mockRunner struct {
	SubmitFunc func(ctx context.Context, req extraction.SubmitRequest) (*extraction.Job, error)
	RetryFunc  func(ctx context.Context, jobID uuid.UUID) (extraction.ControlResult, error)
	WaitFunc   func(ctx context.Context, jobID uuid.UUID) (*extraction.Job, error)
	GetFunc    func(ctx context.Context, jobID uuid.UUID) (*extraction.Job, error)
}

func (m *mockRunner) Submit(ctx context.Context, req extraction.SubmitRequest) (*extraction.Job, error) {
	return m.SubmitFunc(ctx, req)
}

func (m *mockRunner) Retry(ctx context.Context, jobID uuid.UUID) (extraction.ControlResult, error) {
	return m.RetryFunc(ctx, jobID)
}

func (m *mockRunner) Wait(ctx context.Context, jobID uuid.UUID) (*extraction.Job, error) {
	return m.WaitFunc(ctx, jobID)
}

func (m *mockRunner) Get(ctx context.Context, jobID uuid.UUID) (*extraction.Job, error) {
	return m.GetFunc(ctx, jobID)
}

func completedJob(id, documentID uuid.UUID, run int) *extraction.Job {
	return &extraction.Job{
		ID:         id,
		DocumentID: documentID,
		Status:     extraction.StatusCompleted,
		Step:       extraction.StepCompleted,
		Progress:   extraction.ProgressCompleted,
		Run:        run,
	}
}

func TestWorker_HandleExtract(t *testing.T) {
	// Setup
	docID := uuid.New()
	jobID := uuid.New()
	q := newMockQueue()
	var submitted extraction.SubmitRequest
	runner := &mockRunner{
		SubmitFunc: func(_ context.Context, req extraction.SubmitRequest) (*extraction.Job, error) {
			submitted = req
			return &extraction.Job{ID: req.JobID, DocumentID: req.DocumentID}, nil
		},
		WaitFunc: func(_ context.Context, id uuid.UUID) (*extraction.Job, error) {
			return completedJob(id, docID, 1), nil
		},
	}
	w := worker.New(q, runner)

	// Execute
	err := w.Handle(context.Background(), queue.Task{
		Action:     queue.ActionExtract,
		JobID:      jobID,
		DocumentID: docID,
		FileName:   "jane.pdf",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, jobID, submitted.JobID)
	assert.Equal(t, "jane.pdf", submitted.FileName)
	require.Len(t, q.Published(), 1)
	assert.Equal(t, extraction.StatusCompleted, q.published[0].Progress.Status)
	assert.Equal(t, queue.ActionExtract, q.published[0].TaskAction)
	assert.Equal(t, []uuid.UUID{docID}, q.released)
}

func TestWorker_HandleRetry(t *testing.T) {
	docID := uuid.New()
	jobID := uuid.New()

	t.Run("文書IDをジョブから補う", func(t *testing.T) {
		// Setup
		q := newMockQueue()
		runner := &mockRunner{
			GetFunc: func(_ context.Context, id uuid.UUID) (*extraction.Job, error) {
				return &extraction.Job{ID: id, DocumentID: docID, Status: extraction.StatusFailed}, nil
			},
			RetryFunc: func(context.Context, uuid.UUID) (extraction.ControlResult, error) {
				return extraction.ControlAccepted, nil
			},
			WaitFunc: func(_ context.Context, id uuid.UUID) (*extraction.Job, error) {
				return completedJob(id, docID, 2), nil
			},
		}

		// Execute
		err := worker.New(q, runner).Handle(context.Background(), queue.Task{Action: queue.ActionRetry, JobID: jobID})

		// Assert
		require.NoError(t, err)
		assert.True(t, q.claimed[docID])
		require.Len(t, q.Published(), 1)
		assert.Equal(t, 2, q.published[0].Progress.Run)
	})

	t.Run("再実行が拒否された場合", func(t *testing.T) {
		q := newMockQueue()
		runner := &mockRunner{
			RetryFunc: func(context.Context, uuid.UUID) (extraction.ControlResult, error) {
				return extraction.ControlAlreadyCompleted, nil
			},
		}

		err := worker.New(q, runner).Handle(context.Background(), queue.Task{Action: queue.ActionRetry, JobID: jobID, DocumentID: docID})

		assert.ErrorContains(t, err, "already_completed")
		assert.Empty(t, q.Published())
		assert.Equal(t, []uuid.UUID{docID}, q.released, "the lock is released even when the task fails")
	})
}

func TestWorker_HandleBusyDocument(t *testing.T) {
	// Setup
	docID := uuid.New()
	q := newMockQueue()
	q.busy[docID] = true
	runner := &mockRunner{
		SubmitFunc: func(context.Context, extraction.SubmitRequest) (*extraction.Job, error) {
			t.Fatal("a busy document must not be submitted")
			return nil, nil
		},
	}
	task := queue.Task{Action: queue.ActionExtract, DocumentID: docID}

	// Execute
	err := worker.New(q, runner, worker.WithRequeueDelay(0)).Handle(context.Background(), task)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []queue.Task{task}, q.requeued)
	assert.Empty(t, q.released)
}

func TestWorker_Run(t *testing.T) {
	// Setup
	tasks := make([]queue.Task, 0, 3)
	for range 3 {
		tasks = append(tasks, queue.Task{Action: queue.ActionExtract, JobID: uuid.New(), DocumentID: uuid.New()})
	}
	q := newMockQueue(tasks...)
	runner := &mockRunner{
		SubmitFunc: func(_ context.Context, req extraction.SubmitRequest) (*extraction.Job, error) {
			return &extraction.Job{ID: req.JobID, DocumentID: req.DocumentID}, nil
		},
		WaitFunc: func(_ context.Context, id uuid.UUID) (*extraction.Job, error) {
			return completedJob(id, uuid.Nil, 1), nil
		},
	}
	w := worker.New(q, runner, worker.WithConcurrency(2))
	ctx, cancel := context.WithCancel(context.Background())

	// Execute
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return len(q.Published()) == 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

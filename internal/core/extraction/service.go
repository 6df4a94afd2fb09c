package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service は抽出ジョブを管理する。ジョブごとに1つの goroutine で処理し、
// ジョブ間で共有する可変状態はジョブ表だけ。
type Service struct {
	source      TextSource
	client      Client
	sink        RecordSink
	store       JobStore
	indexer     LineIndexer
	observer    AttemptObserver
	diagnostics DiagnosticRecorder
	policy      Policy
	logger      *slog.Logger
	baseCtx     context.Context
	now         func() time.Time

	mu   sync.Mutex
	jobs map[uuid.UUID]*handle
	wg   sync.WaitGroup
}

// handle は1ジョブの実行状態。job は Service.mu で保護する。
type handle struct {
	job    *Job
	policy Policy
	cancel context.CancelFunc // このプロセスで実行していない場合は nil
	done   chan struct{}

	saveMu sync.Mutex
	// commitMu はレコードの保存と停止を排他にする
	commitMu sync.Mutex
}

type serviceOptions struct {
	store       JobStore
	indexer     LineIndexer
	observer    AttemptObserver
	diagnostics DiagnosticRecorder
	policy      *Policy
	logger      *slog.Logger
	baseCtx     context.Context
	now         func() time.Time
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithServicePolicy はポリシーを設定する
func WithServicePolicy(policy Policy) ServiceOption {
	return func(o *serviceOptions) {
		p := policy.Clone()
		o.policy = &p
	}
}

// WithServiceJobStore はジョブの永続化先を設定する（デフォルトはメモリ）
func WithServiceJobStore(store JobStore) ServiceOption {
	return func(o *serviceOptions) {
		o.store = store
	}
}

// WithServiceLineIndexer は行インデックスの保存先を設定する
func WithServiceLineIndexer(indexer LineIndexer) ServiceOption {
	return func(o *serviceOptions) {
		o.indexer = indexer
	}
}

// WithServiceObserver はモデル呼び出しの観測者を設定する
func WithServiceObserver(observer AttemptObserver) ServiceOption {
	return func(o *serviceOptions) {
		o.observer = observer
	}
}

// WithServiceDiagnostics は失敗時の診断情報の記録先を設定する
func WithServiceDiagnostics(d DiagnosticRecorder) ServiceOption {
	return func(o *serviceOptions) {
		o.diagnostics = d
	}
}

// WithServiceContext はジョブ実行の親コンテキストを設定する
func WithServiceContext(ctx context.Context) ServiceOption {
	return func(o *serviceOptions) {
		o.baseCtx = ctx
	}
}

// WithServiceClock は現在時刻の取得関数を設定する
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// NewService は新しい Service を作成する
func NewService(source TextSource, client Client, sink RecordSink, opts ...ServiceOption) (*Service, error) {
	options := serviceOptions{
		logger:  slog.Default(),
		baseCtx: context.Background(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.store == nil {
		options.store = NewMemoryJobStore()
	}
	policy := DefaultPolicy()
	if options.policy != nil {
		policy = *options.policy
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction policy: %w", err)
	}

	return &Service{
		source:      source,
		client:      client,
		sink:        sink,
		store:       options.store,
		indexer:     options.indexer,
		observer:    options.observer,
		diagnostics: options.diagnostics,
		policy:      policy,
		logger:      options.logger,
		baseCtx:     options.baseCtx,
		now:         options.now,
		jobs:        make(map[uuid.UUID]*handle),
	}, nil
}

// Policy はデフォルトのポリシーを返します
func (s *Service) Policy() Policy {
	return s.policy.Clone()
}

// SubmitRequest はジョブ投入のパラメータ
type SubmitRequest struct {
	JobID      uuid.UUID // 省略時は採番する
	DocumentID uuid.UUID
	FileName   string
	Models     []string // 省略時はポリシーのモデル一覧
}

// Submit はジョブを登録し、バックグラウンドで処理を開始する
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.DocumentID == uuid.Nil {
		return nil, fmt.Errorf("document id is required")
	}
	id := req.JobID
	if id == uuid.Nil {
		id = uuid.New()
	}

	policy := s.policy.WithModels(req.Models)
	now := s.now()
	job := &Job{
		ID:         id,
		DocumentID: req.DocumentID,
		FileName:   req.FileName,
		Models:     policy.Models,
		Step:       StepQueued,
		Progress:   ProgressQueued,
		Status:     StatusPending,
		Run:        1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	if _, exists := s.jobs[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("job %s already exists", id)
	}
	h := &handle{job: job, policy: policy}
	s.jobs[id] = h
	runCtx := s.startLocked(h)
	snapshot := job.Clone()
	s.mu.Unlock()

	if err := s.store.Save(ctx, snapshot); err != nil {
		s.mu.Lock()
		h.cancel()
		delete(s.jobs, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Info("job submitted", "jobID", id, "documentID", req.DocumentID, "models", policy.Models)
	s.launch(runCtx, h, job.Run, false)
	return snapshot, nil
}

// startLocked は実行用のコンテキストと完了通知を用意する。s.mu を保持して呼ぶ。
func (s *Service) startLocked(h *handle) context.Context {
	ctx, cancel := context.WithCancel(s.baseCtx)
	h.cancel = cancel
	h.done = make(chan struct{})
	return ctx
}

func (s *Service) launch(ctx context.Context, h *handle, run int, resume bool) {
	s.mu.Lock()
	done, cancel := h.done, h.cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()
		s.execute(ctx, h, run, resume)
	}()
}

// Get はジョブの現在の状態を返す
func (s *Service) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	h, err := s.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.job.Clone(), nil
}

// Progress はジョブの進捗を返す
func (s *Service) Progress(ctx context.Context, jobID uuid.UUID) (Progress, error) {
	h, err := s.lookup(ctx, jobID)
	if err != nil {
		return Progress{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.job.ProgressAt(s.now()), nil
}

// List は新しい順にジョブを返す
func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	jobs, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Stop は実行中のジョブを停止する。実行中のモデル呼び出しはキャンセルし、
// その後に届いた結果は破棄される。レコードの保存中に呼ばれた場合は保存の完了を待つ。
// 何度呼んでも安全。
func (s *Service) Stop(ctx context.Context, jobID uuid.UUID) (ControlResult, error) {
	h, err := s.lookup(ctx, jobID)
	if err != nil {
		return "", err
	}

	h.commitMu.Lock()
	defer h.commitMu.Unlock()

	s.mu.Lock()
	job := h.job
	switch {
	case job.Status == StatusStopped:
		s.mu.Unlock()
		return ControlAlreadyStopped, nil
	case job.Status == StatusCompleted:
		s.mu.Unlock()
		return ControlAlreadyCompleted, nil
	case job.Status == StatusFailed, h.cancel == nil:
		// h.cancel が nil のジョブは別プロセスで実行されている
		s.mu.Unlock()
		return ControlNotRunning, nil
	}

	now := s.now()
	job.Status = StatusStopped
	job.Step = StepStopped
	job.CanRetry = job.Text != ""
	job.FinishedAt = &now
	job.UpdatedAt = now
	h.cancel()
	s.mu.Unlock()

	s.persist(h)
	s.logger.Info("job stopped", "jobID", jobID)
	return ControlAccepted, nil
}

// Retry は失敗・停止したジョブを抽出済みのテキストから再実行する。
// 変換とテキスト抽出は行わず、チャンク分割から決定的にやり直す。
func (s *Service) Retry(ctx context.Context, jobID uuid.UUID) (ControlResult, error) {
	h, err := s.lookup(ctx, jobID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	job := h.job
	switch {
	case job.Status == StatusCompleted:
		s.mu.Unlock()
		return ControlAlreadyCompleted, nil
	case !job.Status.IsTerminal():
		s.mu.Unlock()
		return ControlAlreadyRunning, nil
	case !job.CanRetry || job.Text == "":
		s.mu.Unlock()
		return ControlNotRetryable, nil
	}

	now := s.now()
	job.Run++
	job.Status = StatusRunning
	job.Step = StepExtractingStructure
	job.Progress = ProgressStructureStart
	job.Error = ""
	job.CanRetry = false
	job.ModelsUsed = nil
	job.StartedAt = &now
	job.FinishedAt = nil
	job.UpdatedAt = now
	run := job.Run
	runCtx := s.startLocked(h)
	s.mu.Unlock()

	s.persist(h)
	s.logger.Info("job retried", "jobID", jobID, "run", run)
	s.launch(runCtx, h, run, true)
	return ControlAccepted, nil
}

// Wait は現在の実行が終わるまで待ち、終了時点のジョブを返す
func (s *Service) Wait(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	h, err := s.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	done := h.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return h.job.Clone(), nil
}

// DeleteDocumentJobs は文書に紐づくジョブを停止して削除する
func (s *Service) DeleteDocumentJobs(ctx context.Context, documentID uuid.UUID) (int, error) {
	s.mu.Lock()
	for id, h := range s.jobs {
		if h.job.DocumentID != documentID {
			continue
		}
		if h.cancel != nil {
			h.cancel()
		}
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	n, err := s.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	return n, nil
}

// Shutdown は実行中のジョブの終了を待つ。ctx が先に終わった場合は実行中のジョブをキャンセルする。
func (s *Service) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, h := range s.jobs {
			if h.cancel != nil {
				h.cancel()
			}
		}
		s.mu.Unlock()
		<-finished
		return ctx.Err()
	}
}

// lookup はメモリ上のジョブを返す。なければ JobStore から読み込む。
// このプロセスで実行していないジョブは、別プロセスの更新を反映するため毎回読み直す。
func (s *Service) lookup(ctx context.Context, jobID uuid.UUID) (*handle, error) {
	s.mu.Lock()
	h, ok := s.jobs[jobID]
	owned := ok && h.cancel != nil
	s.mu.Unlock()
	if owned {
		return h, nil
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.jobs[jobID]; ok {
		if h.cancel == nil {
			h.job = job
			h.policy = s.policy.WithModels(job.Models)
		}
		return h, nil
	}
	done := make(chan struct{})
	close(done)
	adopted := &handle{job: job, policy: s.policy.WithModels(job.Models), done: done}
	s.jobs[jobID] = adopted
	return adopted, nil
}

// persist は最新のスナップショットを保存する。保存順はジョブごとに直列化する。
func (s *Service) persist(h *handle) {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()

	s.mu.Lock()
	snapshot := h.job.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), 10*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, snapshot); err != nil {
		s.logger.Error("failed to persist job", "jobID", snapshot.ID, "step", snapshot.Step, "error", err)
	}
}

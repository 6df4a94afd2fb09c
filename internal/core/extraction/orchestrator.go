package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
	"github.com/jinford/cv-extract/internal/core/extraction/repair"
)

// execute は1回分の実行で状態遷移を進める。
//
//	queued → converting → extracting_text → extracting_structure → merging → finalizing → completed
//
// resume の場合は保存済みのテキストを使い extracting_structure から始める。
// 停止や再実行で run が古くなった後の遷移はすべて無視される。
func (s *Service) execute(ctx context.Context, h *handle, run int, resume bool) {
	s.mu.Lock()
	job := h.job.Clone()
	policy := h.policy.Clone()
	s.mu.Unlock()

	logger := s.logger.With("jobID", job.ID, "documentID", job.DocumentID, "run", run)
	logger.Info("job started", "resume", resume, "models", policy.Models)

	text := job.Text
	if !resume {
		started := s.now()
		if !s.advance(h, run, StepConverting, ProgressConverting, func(j *Job) {
			j.Status = StatusRunning
			j.StartedAt = &started
		}) {
			return
		}

		raw, err := s.source.GetText(ctx, job.DocumentID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fail(h, run, logger, fmt.Errorf("%w: %w", ErrConversion, err), false)
			return
		}
		text = normalizeText(raw)
		if strings.TrimSpace(text) == "" {
			s.fail(h, run, logger, fmt.Errorf("%w: document contains no text", ErrConversion), false)
			return
		}

		if !s.advance(h, run, StepExtractingText, ProgressExtractingText, func(j *Job) {
			j.Text = text
		}) {
			return
		}
		s.indexLines(ctx, job, text, logger)

		if !s.advance(h, run, StepExtractingStructure, ProgressStructureStart, nil) {
			return
		}
	}

	results, err := s.extractStructure(ctx, h, run, job, policy, text, logger)
	if err != nil {
		if !errors.Is(err, ErrCanceled) {
			s.fail(h, run, logger, err, true)
		}
		return
	}

	if !s.advance(h, run, StepMerging, ProgressMerging, nil) {
		return
	}
	merged, meta, err := mergeResults(results)
	if err != nil {
		s.fail(h, run, logger, err, true)
		return
	}
	for _, w := range meta.Warnings {
		logger.Warn("record validation warning", "warning", w)
	}

	// 保存から完了までは停止と排他にする。保存が始まった後の停止は完了を待つ。
	h.commitMu.Lock()
	defer h.commitMu.Unlock()
	if !s.advance(h, run, StepFinalizing, ProgressFinalizing, nil) {
		return
	}

	s.mu.Lock()
	meta.JobID = job.ID
	meta.Run = run
	meta.DurationMS = h.job.Duration(s.now()).Milliseconds()
	s.mu.Unlock()

	if err := s.sink.SaveRecord(ctx, job.DocumentID, merged, meta); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(h, run, logger, fmt.Errorf("failed to save record: %w", err), true)
		return
	}

	finished := s.now()
	if s.advance(h, run, StepCompleted, ProgressCompleted, func(j *Job) {
		j.Status = StatusCompleted
		j.CanRetry = false
		j.FinishedAt = &finished
	}) {
		logger.Info("job completed",
			"chunks", meta.ChunkCount,
			"failedChunks", len(meta.FailedChunks),
			"continuations", meta.Continuations,
			"modelsUsed", meta.ModelsUsed,
			"durationMs", meta.DurationMS,
		)
	}
}

// extractStructure はチャンクを文書順に1つずつ処理する
func (s *Service) extractStructure(ctx context.Context, h *handle, run int, job *Job, policy Policy, text string, logger *slog.Logger) ([]ChunkResult, error) {
	chunks, err := chunk.Plan(text, policy.MaxChunkChars, policy.OverlapChars)
	if err != nil {
		return nil, fmt.Errorf("failed to plan chunks: %w", err)
	}
	if policy.MaxChunks > 0 && len(chunks) > policy.MaxChunks {
		return nil, fmt.Errorf("%w: %d chunks exceed the limit of %d", ErrTooManyChunks, len(chunks), policy.MaxChunks)
	}
	logger.Info("chunks planned", "chunks", len(chunks), "textChars", len([]rune(text)))

	estimator := chunk.NewEstimator(policy.Budget)
	invoker := NewInvoker(s.client, estimator, policy,
		WithInvokerLogger(logger),
		WithInvokerObserver(s.observer),
	)
	pipeline := &chunkPipeline{
		jobID:       job.ID,
		documentID:  job.DocumentID,
		fileName:    job.FileName,
		policy:      policy,
		invoker:     invoker,
		continuer:   NewContinuer(invoker, estimator, policy),
		detector:    repair.NewDetector(policy.Truncation.Markers, policy.Truncation.Threshold),
		diagnostics: s.diagnostics,
		logger:      logger,
	}

	results := make([]ChunkResult, 0, len(chunks))
	for i, c := range chunks {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}

		res := pipeline.process(ctx, c, len(chunks))
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		results = append(results, res)

		if res.Failed() {
			logger.Warn("chunk failed", "chunk", c.Index, "error", res.Err)
		} else {
			logger.Info("chunk extracted",
				"chunk", c.Index,
				"model", res.Model,
				"strategy", res.Strategy,
				"continuations", res.Continuations,
			)
		}

		if !s.advance(h, run, StepExtractingStructure, structureProgress(i+1, len(chunks)), func(j *Job) {
			if res.Model != "" && !slices.Contains(j.ModelsUsed, res.Model) {
				j.ModelsUsed = append(j.ModelsUsed, res.Model)
			}
		}) {
			return nil, ErrCanceled
		}
	}
	return results, nil
}

// mergeResults は成功したチャンクのレコードを文書順に統合する。
// すべてのチャンクが失敗した場合だけエラーを返す。
func mergeResults(results []ChunkResult) (*record.Record, Metadata, error) {
	meta := Metadata{
		ChunkCount:       len(results),
		RepairStrategies: make(map[string]int),
	}
	records := make([]*record.Record, 0, len(results))
	var failures []string
	for _, r := range results {
		meta.Continuations += r.Continuations
		meta.Usage = meta.Usage.Add(r.Usage)
		if r.Model != "" && !slices.Contains(meta.ModelsUsed, r.Model) {
			meta.ModelsUsed = append(meta.ModelsUsed, r.Model)
		}
		if r.Failed() {
			meta.FailedChunks = append(meta.FailedChunks, r.Index)
			failures = append(failures, r.Err.Error())
			continue
		}
		meta.RepairStrategies[string(r.Strategy)]++
		records = append(records, r.Record)
	}

	if len(records) == 0 {
		if len(failures) == 1 {
			return nil, meta, errors.New(failures[0])
		}
		return nil, meta, fmt.Errorf("no structured data could be extracted from %d chunks: %s",
			len(results), strings.Join(failures, "; "))
	}

	merged := record.Merge(records...)
	if merged.IsEmpty() {
		return nil, meta, fmt.Errorf("no structured data could be extracted from %d chunks: the model returned an empty record", len(results))
	}
	meta.Warnings = merged.Warnings()
	return merged, meta, nil
}

// advance は現在の run が有効な場合だけ段階と進捗を進めて保存する。進捗は減らさない。
func (s *Service) advance(h *handle, run int, step Step, progress int, mutate func(j *Job)) bool {
	s.mu.Lock()
	job := h.job
	if job.Run != run || job.Status.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	job.Step = step
	job.Progress = max(job.Progress, progress)
	if job.Status == StatusPending {
		job.Status = StatusRunning
	}
	if mutate != nil {
		mutate(job)
	}
	job.UpdatedAt = s.now()
	s.mu.Unlock()

	s.persist(h)
	return true
}

func (s *Service) fail(h *handle, run int, logger *slog.Logger, err error, canRetry bool) {
	now := s.now()
	msg := err.Error()
	if !s.advance(h, run, StepFailed, 0, func(j *Job) {
		j.Status = StatusFailed
		j.Error = msg
		j.CanRetry = canRetry
		j.FinishedAt = &now
	}) {
		return
	}
	logger.Error("job failed", "error", msg, "canRetry", canRetry)
}

func (s *Service) indexLines(ctx context.Context, job *Job, text string, logger *slog.Logger) {
	if s.indexer == nil {
		return
	}
	ls := lines.Split(text)
	if err := s.indexer.IndexLines(ctx, job.DocumentID, ls); err != nil {
		logger.Warn("failed to index lines", "error", err)
		return
	}
	logger.Info("lines indexed", "lines", len(ls))
}

// normalizeText は改行を LF に揃え、NUL 文字を取り除く
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\x00", "")
}

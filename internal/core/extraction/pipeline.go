package extraction

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
	"github.com/jinford/cv-extract/internal/core/extraction/repair"
)

// ChunkResult は1チャンクの抽出結果。Record か Err のどちらか一方が設定される。
type ChunkResult struct {
	Index         int
	Record        *record.Record
	Err           error
	Raw           string // 失敗時の診断用（切り詰め済み）
	Strategy      repair.Strategy
	Continuations int
	Model         string
	Usage         Usage
}

// Failed はチャンクが失敗したかを返します
func (r ChunkResult) Failed() bool {
	return r.Err != nil
}

// chunkPipeline はチャンクごとに 呼び出し → 途切れ判定 → 継続 → 復元 を行う
type chunkPipeline struct {
	jobID       uuid.UUID
	documentID  uuid.UUID
	fileName    string
	policy      Policy
	invoker     *Invoker
	continuer   *Continuer
	detector    *repair.Detector
	diagnostics DiagnosticRecorder
	logger      *slog.Logger
}

func (p *chunkPipeline) process(ctx context.Context, c chunk.Chunk, total int) ChunkResult {
	result := ChunkResult{Index: c.Index}
	prompt := BuildExtractionPrompt(p.fileName, c.Text, c.Index, total)

	raw, err := p.invoker.InvokeWithFallback(ctx, p.policy.Models, prompt, 0)
	if err != nil {
		result.Err = &ChunkError{Index: c.Index, Total: total, Err: err}
		if !errors.Is(err, ErrCanceled) {
			p.diagnose(c.Index, "", "invoke", result.Err, "")
		}
		return result
	}
	result.Model = raw.Model
	result.Usage = raw.Usage

	truncated := raw.HitTokenLimit() || repair.IsIncomplete(raw.Text)
	if !truncated {
		if rec, err := repair.Parse(raw.Text); err == nil {
			result.Record = rec
			result.Strategy = repair.StrategyDirect
			return result
		}
	}

	var continuations []string
	if truncated && p.detector.HasSalvageableStructure(raw.Text) {
		continuations = p.continueResponse(ctx, raw, c.Index, &result)
		if ctx.Err() != nil {
			result.Err = &ChunkError{Index: c.Index, Total: total, Err: ErrCanceled}
			return result
		}
	} else if truncated {
		p.logger.Info("truncated response has no salvageable structure",
			"chunk", c.Index,
			"markers", p.detector.MarkerCount(raw.Text),
		)
	}

	repaired, err := repair.RepairWithContinuation(raw.Text, continuations...)
	if err != nil {
		result.Err = &ChunkError{Index: c.Index, Total: total, Err: err}
		result.Raw = repair.Truncate(raw.Text, repair.MaxDiagnosticChars)
		p.diagnose(c.Index, raw.Model, "repair", err, raw.Text)
		return result
	}

	result.Record = repaired.Record
	result.Strategy = repaired.Strategy
	p.logger.Info("chunk repaired",
		"chunk", c.Index,
		"strategy", repaired.Strategy,
		"continuations", len(continuations),
	)
	return result
}

// continueResponse は MaxContinuations 回まで継続を要求し、得られた継続テキストを順に返す。
// 継続に失敗した場合はそれまでに得られた分だけを返し、復元は原文に対して行われる。
func (p *chunkPipeline) continueResponse(ctx context.Context, raw RawResponse, index int, result *ChunkResult) []string {
	var continuations []string
	previous := raw
	for len(continuations) < p.policy.MaxContinuations {
		next, err := p.continuer.Continue(ctx, previous)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("continuation failed, repairing original response",
					"chunk", index,
					"model", raw.Model,
					"error", err,
				)
			}
			break
		}
		continuations = append(continuations, next.Text)
		result.Continuations++
		result.Usage = result.Usage.Add(next.Usage)

		combined := repair.Splice(raw.Text, continuations...)
		if !next.HitTokenLimit() && !repair.IsIncomplete(combined) {
			break
		}
		previous = RawResponse{Text: combined, Model: raw.Model, Sequence: next.Sequence}
	}
	return continuations
}

func (p *chunkPipeline) diagnose(index int, model, stage string, err error, raw string) {
	if p.diagnostics == nil {
		return
	}
	d := Diagnostic{
		JobID:      p.jobID,
		DocumentID: p.documentID,
		ChunkIndex: index,
		Model:      model,
		Stage:      stage,
		Error:      err.Error(),
		Raw:        repair.Truncate(raw, repair.MaxDiagnosticChars),
	}
	if recErr := p.diagnostics.RecordDiagnostic(d); recErr != nil {
		p.logger.Warn("failed to record diagnostic", "error", recErr)
	}
}

package extraction

import (
	"context"
	"fmt"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
)

// Continuer は途切れた応答の続きを同じモデルに求める
type Continuer struct {
	invoker   *Invoker
	estimator *chunk.Estimator
	tailChars int
	maxTokens int
}

// NewContinuer は新しい Continuer を作成する
func NewContinuer(invoker *Invoker, estimator *chunk.Estimator, policy Policy) *Continuer {
	return &Continuer{
		invoker:   invoker,
		estimator: estimator,
		tailChars: policy.ContinuationTailChars,
		maxTokens: policy.ContinuationMaxTokens,
	}
}

// Continue は previous の続きを要求する。previous.Text は途切れた位置までの応答全体。
// 応答トークン数は ContinuationMaxTokens と見積もりの小さい方。
func (c *Continuer) Continue(ctx context.Context, previous RawResponse) (RawResponse, error) {
	prompt := BuildContinuationPrompt(previous.Text, c.tailChars)

	budget, err := c.estimator.Estimate(previous.Model, prompt.Text())
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to estimate continuation budget: %w", err)
	}
	budget = min(budget, c.maxTokens)

	resp, err := c.invoker.Invoke(ctx, previous.Model, prompt, budget, previous.Sequence+1)
	if err != nil {
		return RawResponse{}, fmt.Errorf("continuation %d failed: %w", previous.Sequence+1, err)
	}
	return resp, nil
}

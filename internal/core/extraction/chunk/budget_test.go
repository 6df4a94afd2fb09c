package chunk_test

import (
	"strings"
	"testing"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator_Estimate(t *testing.T) {
	e := chunk.NewEstimator(chunk.DefaultBudgetConfig())

	tests := []struct {
		name   string
		model  string
		prompt string
		want   int
	}{
		{
			name:   "大きなコンテキストは出力上限で頭打ち",
			model:  "anthropic/claude-3.5-sonnet",
			prompt: strings.Repeat("a", 3000),
			want:   15000,
		},
		{
			name:   "小さなコンテキストは残りトークン数",
			model:  "meta-llama/llama-3.1-8b-instruct",
			prompt: strings.Repeat("a", 9000), // 3000 tokens
			want:   8192 - 3000 - 1000,
		},
		{
			name:   "下限まで引き上げる",
			model:  "meta-llama/llama-3.1-8b-instruct",
			prompt: strings.Repeat("a", 20400), // 6800 tokens
			want:   500,
		},
		{
			name:   "未知のモデルはデフォルトのコンテキスト",
			model:  "acme/unknown-model",
			prompt: strings.Repeat("a", 3), // 1 token
			want:   8192 - 1 - 1000,
		},
		{
			name:   "接頭辞なしでも引ける",
			model:  "gpt-4o",
			prompt: "",
			want:   15000,
		},
		{
			name:   "別プロバイダ経由の同名モデル",
			model:  "azure/gpt-4o",
			prompt: "",
			want:   15000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Estimate(tt.model, tt.prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimator_PromptTooLarge(t *testing.T) {
	// Setup
	e := chunk.NewEstimator(chunk.DefaultBudgetConfig())
	prompt := strings.Repeat("a", 3*7192) // 7192 tokens + 1000 margin = 8192

	// Execute
	_, err := e.Estimate("meta-llama/llama-3.1-8b-instruct", prompt)

	// Assert
	assert.ErrorIs(t, err, chunk.ErrPromptTooLarge)
}

func TestEstimator_PromptTokensRoundsUp(t *testing.T) {
	e := chunk.NewEstimator(chunk.BudgetConfig{CharsPerToken: 4})

	assert.Equal(t, 0, e.PromptTokens(""))
	assert.Equal(t, 1, e.PromptTokens("abc"))
	assert.Equal(t, 2, e.PromptTokens("abcde"))
	assert.Equal(t, 1, e.PromptTokens("履歴書"), "counts runes, not bytes")
}

func TestEstimator_PerModelOutputCap(t *testing.T) {
	// Setup
	cfg := chunk.DefaultBudgetConfig()
	cfg.Models = map[string]chunk.ModelLimit{
		"openai/gpt-4o": {Context: 128000, OutputCap: 4096},
	}
	e := chunk.NewEstimator(cfg)

	// Execute
	got, err := e.Estimate("openai/gpt-4o", "hello")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 4096, got)
	assert.Equal(t, chunk.ModelLimit{Context: 8192, OutputCap: 15000}, e.Limit("anthropic/claude-3.5-sonnet"))
}

func TestEstimator_ZeroConfigUsesDefaults(t *testing.T) {
	e := chunk.NewEstimator(chunk.BudgetConfig{})

	assert.Equal(t, chunk.DefaultBudgetConfig(), e.Config())
}

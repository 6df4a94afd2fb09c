package extraction

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
	"github.com/jinford/cv-extract/internal/core/extraction/repair"
)

// TruncationPolicy は途切れた応答を継続に値すると判断する条件
type TruncationPolicy struct {
	Markers   []string `yaml:"markers"`
	Threshold int      `yaml:"threshold"`
}

// Policy はジョブ実行時の設定。ジョブ開始時に複製され、実行中に変更されない。
type Policy struct {
	// Models は優先順のモデル一覧
	Models      []string `yaml:"models"`
	Temperature float64  `yaml:"temperature"`

	Budget chunk.BudgetConfig `yaml:"budget"`

	// チャンク分割
	MaxChunkChars int `yaml:"max_chunk_chars"`
	OverlapChars  int `yaml:"overlap_chars"`
	MaxChunks     int `yaml:"max_chunks"` // 0 は無制限

	Truncation TruncationPolicy `yaml:"truncation"`

	// 継続リクエスト
	ContinuationTailChars int `yaml:"continuation_tail_chars"`
	ContinuationMaxTokens int `yaml:"continuation_max_tokens"`
	MaxContinuations      int `yaml:"max_continuations"`

	// CallTimeout は1回のモデル呼び出しのタイムアウト
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultPolicy はデフォルトのポリシーを返します
func DefaultPolicy() Policy {
	return Policy{
		Models: []string{
			"anthropic/claude-3.5-sonnet",
			"openai/gpt-4o",
			"anthropic/claude-3-haiku",
			"meta-llama/llama-3.1-8b-instruct",
		},
		Temperature:   0.1,
		Budget:        chunk.DefaultBudgetConfig(),
		MaxChunkChars: 40000,
		OverlapChars:  2000,
		MaxChunks:     10,
		Truncation: TruncationPolicy{
			Markers:   slices.Clone(repair.DefaultMarkers),
			Threshold: repair.DefaultThreshold,
		},
		ContinuationTailChars: 1500,
		ContinuationMaxTokens: 4000,
		MaxContinuations:      1,
		CallTimeout:           180 * time.Second,
	}
}

// Validate はポリシーの整合性を検証します
func (p Policy) Validate() error {
	if len(p.Models) == 0 {
		return fmt.Errorf("policy: at least one model is required")
	}
	for i, m := range p.Models {
		if m == "" {
			return fmt.Errorf("policy: model %d is empty", i)
		}
	}
	if p.MaxChunkChars <= 0 {
		return fmt.Errorf("policy: max_chunk_chars must be positive")
	}
	if p.OverlapChars < 0 || (p.OverlapChars > 0 && 2*p.OverlapChars >= p.MaxChunkChars) {
		return fmt.Errorf("policy: overlap_chars must be in [0, max_chunk_chars/2)")
	}
	if p.MaxChunks < 0 {
		return fmt.Errorf("policy: max_chunks must not be negative")
	}
	if p.MaxContinuations < 0 {
		return fmt.Errorf("policy: max_continuations must not be negative")
	}
	if p.ContinuationTailChars <= 0 || p.ContinuationMaxTokens <= 0 {
		return fmt.Errorf("policy: continuation_tail_chars and continuation_max_tokens must be positive")
	}
	if p.CallTimeout <= 0 {
		return fmt.Errorf("policy: call_timeout must be positive")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("policy: temperature must be in [0, 2]")
	}
	return nil
}

// Clone はスライスとマップを含めて複製したポリシーを返します
func (p Policy) Clone() Policy {
	c := p
	c.Models = slices.Clone(p.Models)
	c.Truncation.Markers = slices.Clone(p.Truncation.Markers)
	c.Budget.Models = maps.Clone(p.Budget.Models)
	return c
}

// WithModels はモデル一覧を差し替えたポリシーを返します
func (p Policy) WithModels(models []string) Policy {
	c := p.Clone()
	if len(models) > 0 {
		c.Models = slices.Clone(models)
	}
	return c
}

package chunk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	// ErrPromptTooLarge はプロンプトだけでモデルのコンテキストを使い切る場合に返されます
	ErrPromptTooLarge = errors.New("prompt too large for model context")
)

// ModelLimit はモデルごとのトークン上限
type ModelLimit struct {
	Context   int `yaml:"context"`
	OutputCap int `yaml:"output_cap,omitempty"` // 0 の場合は BudgetConfig.OutputCap を使う
}

// BudgetConfig は応答トークン数の見積もり設定
type BudgetConfig struct {
	Models            map[string]ModelLimit `yaml:"models"`
	DefaultContext    int                   `yaml:"default_context"`     // 未知のモデルのコンテキスト長
	CharsPerToken     float64               `yaml:"chars_per_token"`     // 1トークンあたりの文字数
	SafetyMargin      int                   `yaml:"safety_margin"`       // 予備トークン数
	OutputCap         int                   `yaml:"output_cap"`          // 応答トークン数の上限
	MinResponseTokens int                   `yaml:"min_response_tokens"` // 応答トークン数の下限
}

// DefaultBudgetConfig はデフォルトの見積もり設定を返します
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		Models: map[string]ModelLimit{
			"anthropic/claude-3.5-sonnet":      {Context: 200000},
			"openai/gpt-4o":                    {Context: 128000},
			"anthropic/claude-3-haiku":         {Context: 200000},
			"meta-llama/llama-3.1-8b-instruct": {Context: 8192},
			"anthropic/claude-3-opus":          {Context: 200000},
			"openai/gpt-4-turbo":               {Context: 128000},
		},
		DefaultContext:    8192,
		CharsPerToken:     3,
		SafetyMargin:      1000,
		OutputCap:         15000,
		MinResponseTokens: 500,
	}
}

// Estimator はモデルとプロンプトから安全な最大応答トークン数を見積もる。
// 文字数ベースの概算で、同じ入力には常に同じ値を返す。
type Estimator struct {
	cfg     BudgetConfig
	byShort map[string]ModelLimit
}

// NewEstimator は Estimator を作成します。ゼロ値の項目はデフォルト値で補います。
func NewEstimator(cfg BudgetConfig) *Estimator {
	def := DefaultBudgetConfig()
	if cfg.Models == nil {
		cfg.Models = def.Models
	}
	if cfg.DefaultContext <= 0 {
		cfg.DefaultContext = def.DefaultContext
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = def.CharsPerToken
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = def.SafetyMargin
	}
	if cfg.OutputCap <= 0 {
		cfg.OutputCap = def.OutputCap
	}
	if cfg.MinResponseTokens <= 0 {
		cfg.MinResponseTokens = def.MinResponseTokens
	}

	models := make(map[string]ModelLimit, len(cfg.Models))
	ids := make([]string, 0, len(cfg.Models))
	for id, l := range cfg.Models {
		models[id] = l
		ids = append(ids, id)
	}
	cfg.Models = models

	// プロバイダ接頭辞を除いた名前でも引けるようにする。衝突時は辞書順で先の ID を優先
	sort.Strings(ids)
	byShort := make(map[string]ModelLimit, len(ids))
	for _, id := range ids {
		short := shortModelID(id)
		if _, ok := byShort[short]; !ok {
			byShort[short] = models[id]
		}
	}

	return &Estimator{cfg: cfg, byShort: byShort}
}

// Config は補完済みの設定を返します
func (e *Estimator) Config() BudgetConfig {
	return e.cfg
}

// Limit はモデルの上限を返します。ID 全体、接頭辞なしの順に照合し、見つからなければデフォルト値を返します。
func (e *Estimator) Limit(modelID string) ModelLimit {
	l, ok := e.cfg.Models[modelID]
	if !ok {
		l, ok = e.byShort[shortModelID(modelID)]
	}
	if !ok {
		l = ModelLimit{Context: e.cfg.DefaultContext}
	}
	if l.Context <= 0 {
		l.Context = e.cfg.DefaultContext
	}
	if l.OutputCap <= 0 {
		l.OutputCap = e.cfg.OutputCap
	}
	return l
}

// PromptTokens はプロンプトのトークン数を切り上げで概算します
func (e *Estimator) PromptTokens(prompt string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(prompt)) / e.cfg.CharsPerToken))
}

// Estimate は最大応答トークン数を返します。
// プロンプトと予備分だけでコンテキストを使い切る場合は ErrPromptTooLarge を返します。
func (e *Estimator) Estimate(modelID, prompt string) (int, error) {
	limit := e.Limit(modelID)
	promptTokens := e.PromptTokens(prompt)

	available := limit.Context - promptTokens - e.cfg.SafetyMargin
	if available <= 0 {
		return 0, fmt.Errorf("%w: model=%s context=%d prompt=%d margin=%d",
			ErrPromptTooLarge, modelID, limit.Context, promptTokens, e.cfg.SafetyMargin)
	}

	return max(min(available, limit.OutputCap), e.cfg.MinResponseTokens), nil
}

func shortModelID(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

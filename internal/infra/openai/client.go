package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultBaseURL は OpenAI 互換のエンドポイント（OpenRouter）
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("LLM API key not set: please set LLM_API_KEY environment variable")

// TokenCounter はサービスが usage を返さない場合にトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// Config は Client の設定
type Config struct {
	APIKey  string
	BaseURL string
	// Referer と Title は OpenRouter のアプリ識別ヘッダー
	Referer string
	Title   string
}

// Client は OpenAI 互換 API を使用した extraction.Client 実装。
// 1回の Complete は1回の HTTP 呼び出しで、SDK のリトライは使わない。
type Client struct {
	client  openai.Client
	counter TokenCounter
	logger  *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client)

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTokenCounter は usage が欠けた応答のトークン数の数え方を設定する
func WithTokenCounter(counter TokenCounter) ClientOption {
	return func(c *Client) {
		c.counter = counter
	}
}

// NewClient は新しい Client を作成する
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", cfg.Title))
	}

	c := &Client{
		client: openai.NewClient(reqOpts...),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Complete はチャット補完を1回呼び出す
func (c *Client) Complete(ctx context.Context, req extraction.CompletionRequest) (extraction.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ResponseFormat == extraction.ResponseFormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return extraction.CompletionResponse{}, classifyError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return extraction.CompletionResponse{}, fmt.Errorf("%w: no completion choices returned", extraction.ErrEmptyResponse)
	}

	choice := completion.Choices[0]
	content := choice.Message.Content
	if strings.TrimSpace(content) == "" {
		return extraction.CompletionResponse{}, fmt.Errorf("%w: model %s returned no content", extraction.ErrEmptyResponse, req.Model)
	}

	usage := extraction.Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	if usage.TotalTokens == 0 && c.counter != nil {
		usage.PromptTokens = c.counter.CountTokens(req.SystemPrompt) + c.counter.CountTokens(req.Prompt)
		usage.CompletionTokens = c.counter.CountTokens(content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	model := completion.Model
	if model == "" {
		model = req.Model
	}
	c.logger.Debug("chat completion received",
		"model", model,
		"finishReason", choice.FinishReason,
		"totalTokens", usage.TotalTokens,
	)

	return extraction.CompletionResponse{
		Content:      content,
		FinishReason: string(choice.FinishReason),
		Model:        model,
		Usage:        usage,
	}, nil
}

// classifyError は SDK のエラーを extraction の失敗種別に対応するエラーへ変換する
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: status %d: %w", extraction.ErrAuth, apiErr.StatusCode, err)
		case http.StatusPaymentRequired, http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d: %w", extraction.ErrQuota, apiErr.StatusCode, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: status %d: %w", extraction.ErrTimeout, apiErr.StatusCode, err)
		}
		return fmt.Errorf("chat completion failed with status %d: %w", apiErr.StatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", extraction.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", extraction.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", extraction.ErrNetwork, err)
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

// インターフェース実装の確認
var _ extraction.Client = (*Client)(nil)

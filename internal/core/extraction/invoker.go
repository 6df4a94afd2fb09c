package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
)

// RawResponse はモデルの生の応答。ジョブの実行中だけ保持する。
type RawResponse struct {
	Text         string
	Model        string
	Prompt       Prompt
	Sequence     int // 0 は通常の応答、1以上は継続
	FinishReason string
	Usage        Usage
}

// HitTokenLimit は応答がトークン上限で打ち切られたかを返します
func (r RawResponse) HitTokenLimit() bool {
	return r.FinishReason == FinishReasonLength
}

// Invoker はモデル呼び出しとフォールバックを担う
type Invoker struct {
	client      Client
	estimator   *chunk.Estimator
	timeout     time.Duration
	temperature float64
	observer    AttemptObserver
	logger      *slog.Logger
}

type invokerOptions struct {
	observer AttemptObserver
	logger   *slog.Logger
}

// InvokerOption は Invoker のオプション設定
type InvokerOption func(*invokerOptions)

// WithInvokerLogger はロガーを設定する
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(o *invokerOptions) {
		o.logger = logger
	}
}

// WithInvokerObserver は呼び出しの観測者を設定する
func WithInvokerObserver(observer AttemptObserver) InvokerOption {
	return func(o *invokerOptions) {
		o.observer = observer
	}
}

// NewInvoker は新しい Invoker を作成する
func NewInvoker(client Client, estimator *chunk.Estimator, policy Policy, opts ...InvokerOption) *Invoker {
	options := invokerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &Invoker{
		client:      client,
		estimator:   estimator,
		timeout:     policy.CallTimeout,
		temperature: policy.Temperature,
		observer:    options.observer,
		logger:      options.logger,
	}
}

// InvokeWithFallback は models を優先順に試し、最初に成功した応答を返す。
// maxTokens が0の場合はモデルごとに見積もる。
// すべて失敗した場合は N モデルに対してちょうど N 回試行した結果を *FallbackError で返す。
// 親コンテキストがキャンセルされた場合は残りのモデルを試さずに ErrCanceled を返す。
func (inv *Invoker) InvokeWithFallback(ctx context.Context, models []string, prompt Prompt, maxTokens int) (RawResponse, error) {
	if len(models) == 0 {
		return RawResponse{}, fmt.Errorf("no models configured")
	}

	attempts := make([]AttemptFailure, 0, len(models))
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return RawResponse{}, fmt.Errorf("%w: %w", ErrCanceled, err)
		}

		resp, err := inv.Invoke(ctx, model, prompt, maxTokens, 0)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return RawResponse{}, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}

		attempts = append(attempts, AttemptFailure{Model: model, Kind: Classify(err), Err: err})
	}

	return RawResponse{}, &FallbackError{Attempts: attempts}
}

// Invoke は1モデルを1回だけ呼び出す。タイムアウトしても同じモデルで再試行しない。
func (inv *Invoker) Invoke(ctx context.Context, model string, prompt Prompt, maxTokens, sequence int) (RawResponse, error) {
	budget := maxTokens
	if budget <= 0 {
		est, err := inv.estimator.Estimate(model, prompt.Text())
		if err != nil {
			inv.record(model, sequence, 0, err, Usage{})
			return RawResponse{}, err
		}
		budget = est
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	start := time.Now()
	resp, err := inv.client.Complete(callCtx, CompletionRequest{
		Model:          model,
		SystemPrompt:   prompt.System,
		Prompt:         prompt.User,
		MaxTokens:      budget,
		Temperature:    inv.temperature,
		ResponseFormat: prompt.Format,
	})
	latency := time.Since(start)

	switch {
	case err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, inv.timeout, err)
	case err == nil && strings.TrimSpace(resp.Content) == "":
		err = ErrEmptyResponse
	}

	inv.record(model, sequence, latency, err, resp.Usage)
	if err != nil {
		return RawResponse{}, err
	}

	return RawResponse{
		Text:         resp.Content,
		Model:        model,
		Prompt:       prompt,
		Sequence:     sequence,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}, nil
}

func (inv *Invoker) record(model string, sequence int, latency time.Duration, err error, usage Usage) {
	a := Attempt{Model: model, Sequence: sequence, Latency: latency, Usage: usage}
	if err != nil {
		a.Kind = Classify(err)
	}
	if inv.observer != nil {
		inv.observer.ObserveAttempt(a)
	}

	if err != nil {
		inv.logger.Warn("model call failed",
			"model", model,
			"sequence", sequence,
			"latencyMs", latency.Milliseconds(),
			"outcome", a.Kind,
			"error", err,
		)
		return
	}
	inv.logger.Info("model call succeeded",
		"model", model,
		"sequence", sequence,
		"latencyMs", latency.Milliseconds(),
		"outcome", "ok",
		"completionTokens", usage.CompletionTokens,
	)
}

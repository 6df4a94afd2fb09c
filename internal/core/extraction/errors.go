package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
)

var (
	// ErrJobNotFound はジョブが存在しない場合に返されます
	ErrJobNotFound = errors.New("job not found")

	// ErrPromptTooLarge はプロンプトがモデルのコンテキストに収まらない場合に返されます
	ErrPromptTooLarge = chunk.ErrPromptTooLarge

	// ErrInvalidPlan はチャンク分割のパラメータが不正な場合に返されます
	ErrInvalidPlan = chunk.ErrInvalidPlan

	// ErrAuth は認証エラー（401/403）
	ErrAuth = errors.New("authentication failed")

	// ErrQuota はクォータ超過またはレート制限（402/429）
	ErrQuota = errors.New("quota exceeded")

	// ErrTimeout はモデル呼び出しのタイムアウト
	ErrTimeout = errors.New("model call timed out")

	// ErrNetwork はネットワークエラー
	ErrNetwork = errors.New("network error")

	// ErrEmptyResponse はモデルが空の応答を返した場合のエラー
	ErrEmptyResponse = errors.New("empty response")

	// ErrCanceled はジョブが停止された場合に返されます
	ErrCanceled = errors.New("extraction canceled")

	// ErrConversion は文書のテキストを取得できない場合のエラー
	ErrConversion = errors.New("document text unavailable")

	// ErrTooManyChunks は分割数が上限を超える場合のエラー
	ErrTooManyChunks = errors.New("document requires too many chunks")
)

// FailureKind はモデル呼び出し失敗の種別
type FailureKind string

const (
	FailureTimeout        FailureKind = "timeout"
	FailureNetwork        FailureKind = "network"
	FailureAuth           FailureKind = "auth"
	FailureQuota          FailureKind = "quota"
	FailureEmptyResponse  FailureKind = "empty-response"
	FailurePromptTooLarge FailureKind = "prompt-too-large"
	FailureCanceled       FailureKind = "canceled"
	FailureError          FailureKind = "error"
)

// Classify はエラーを失敗種別に分類します
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrAuth):
		return FailureAuth
	case errors.Is(err, ErrQuota):
		return FailureQuota
	case errors.Is(err, ErrNetwork):
		return FailureNetwork
	case errors.Is(err, ErrEmptyResponse):
		return FailureEmptyResponse
	case errors.Is(err, ErrPromptTooLarge):
		return FailurePromptTooLarge
	default:
		return FailureError
	}
}

// AttemptFailure は1モデル分の失敗
type AttemptFailure struct {
	Model string
	Kind  FailureKind
	Err   error
}

// FallbackError はすべてのモデルが失敗したことを表します
type FallbackError struct {
	Attempts []AttemptFailure
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("all %d models failed: %s", len(e.Attempts), e.kinds())
}

// Unwrap は各モデルのエラーを返します
func (e *FallbackError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Models は試行したモデルを順に返します
func (e *FallbackError) Models() []string {
	models := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		models = append(models, a.Model)
	}
	return models
}

func (e *FallbackError) kinds() string {
	kinds := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		kinds = append(kinds, string(a.Kind))
	}
	return strings.Join(kinds, ", ")
}

// ChunkError はチャンク単位の失敗。Index は0始まり。
type ChunkError struct {
	Index int
	Total int
	Err   error
}

func (e *ChunkError) Error() string {
	var fe *FallbackError
	if errors.As(e.Err, &fe) {
		return fmt.Sprintf("all %d models failed for chunk %d of %d: %s", len(fe.Attempts), e.Index+1, e.Total, fe.kinds())
	}
	return fmt.Sprintf("chunk %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

package extraction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
)

// ResponseFormat は応答の形式
type ResponseFormat string

const (
	ResponseFormatJSON ResponseFormat = "json"
	ResponseFormatText ResponseFormat = "text"
)

// FinishReasonLength は応答がトークン上限で打ち切られたことを表す
const FinishReasonLength = "length"

// Client はモデルサービスへの単発の呼び出しを抽象化する。
// リトライとフォールバックは呼び出し側が持つ。
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest はモデルへのリクエスト
type CompletionRequest struct {
	Model          string
	SystemPrompt   string
	Prompt         string
	MaxTokens      int
	Temperature    float64
	ResponseFormat ResponseFormat
}

// Usage はトークン使用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add は使用量を合算します
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// CompletionResponse はモデルからの応答
type CompletionResponse struct {
	Content      string
	FinishReason string
	Model        string // サービスが実際に使ったモデル
	Usage        Usage
}

// TextSource は文書のテキストを提供する（変換・OCR は外部で行う）
type TextSource interface {
	GetText(ctx context.Context, documentID uuid.UUID) (string, error)
}

// RecordSink は抽出したレコードを保存する。同じ文書への保存は上書きでなければならない。
type RecordSink interface {
	SaveRecord(ctx context.Context, documentID uuid.UUID, rec *record.Record, meta Metadata) error
}

// Metadata はレコードと一緒に保存する処理情報
type Metadata struct {
	JobID            uuid.UUID      `json:"job_id"`
	Run              int            `json:"run"`
	ModelsUsed       []string       `json:"models_used"`
	DurationMS       int64          `json:"processing_duration_ms"`
	ChunkCount       int            `json:"chunk_count"`
	FailedChunks     []int          `json:"failed_chunks,omitempty"`
	Continuations    int            `json:"continuations"`
	RepairStrategies map[string]int `json:"repair_strategies,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	Usage            Usage          `json:"usage"`
}

// JobStore はジョブのスナップショットを永続化する
type JobStore interface {
	Save(ctx context.Context, job *Job) error
	// Get は存在しない場合 ErrJobNotFound を返す
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

// LineIndexer は文書の行インデックスを保存する（任意）
type LineIndexer interface {
	IndexLines(ctx context.Context, documentID uuid.UUID, ls []lines.Line) error
}

// Attempt は1回のモデル呼び出しの記録
type Attempt struct {
	Model    string
	Sequence int // 0 は通常の抽出、1以上は継続
	Latency  time.Duration
	Kind     FailureKind // 成功時は空
	Usage    Usage
}

// Success は呼び出しが成功したかを返します
func (a Attempt) Success() bool {
	return a.Kind == ""
}

// AttemptObserver はモデル呼び出しを観測する（メトリクスなど）
type AttemptObserver interface {
	ObserveAttempt(a Attempt)
}

// Diagnostic は失敗したチャンクの診断情報
type Diagnostic struct {
	JobID      uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Model      string
	Stage      string // "invoke" または "repair"
	Error      string
	Raw        string
}

// DiagnosticRecorder は診断情報を記録する
type DiagnosticRecorder interface {
	RecordDiagnostic(d Diagnostic) error
}

package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/repair"
)

// ErrorRecord は失敗したチャンクの JSONL レコード
type ErrorRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	JobID      uuid.UUID `json:"job_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Model      string    `json:"model,omitempty"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error_message"`
	// Response は先頭 MaxDiagnosticChars 文字に切り詰めた生の応答
	Response string `json:"response,omitempty"`
}

// ErrorLog は失敗したモデル応答を日付ごとの JSONL ファイルに追記する extraction.DiagnosticRecorder
type ErrorLog struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	file    *os.File
	current string
}

// ErrorLogOption は ErrorLog のオプション設定
type ErrorLogOption func(*ErrorLog)

// WithErrorLogLogger はロガーを設定する
func WithErrorLogLogger(logger *slog.Logger) ErrorLogOption {
	return func(l *ErrorLog) {
		l.logger = logger
	}
}

// WithErrorLogClock は現在時刻の取得関数を設定する
func WithErrorLogClock(now func() time.Time) ErrorLogOption {
	return func(l *ErrorLog) {
		l.now = now
	}
}

// NewErrorLog は新しい ErrorLog を作成する。dir が空の場合は何も記録しない。
func NewErrorLog(dir string, opts ...ErrorLogOption) (*ErrorLog, error) {
	l := &ErrorLog{dir: dir, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return l, nil
}

// Enabled は記録が有効かを返す
func (l *ErrorLog) Enabled() bool {
	return l.dir != ""
}

// RecordDiagnostic は診断情報を1行追記する
func (l *ErrorLog) RecordDiagnostic(d extraction.Diagnostic) error {
	if !l.Enabled() {
		return nil
	}

	now := l.now()
	record := ErrorRecord{
		Timestamp:  now,
		JobID:      d.JobID,
		DocumentID: d.DocumentID,
		ChunkIndex: d.ChunkIndex,
		Model:      d.Model,
		Stage:      d.Stage,
		Error:      d.Error,
		Response:   repair.Truncate(d.Raw, repair.MaxDiagnosticChars),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal error record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fileFor(now)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write error record: %w", err)
	}

	l.logger.Warn("llm failure recorded",
		"jobID", d.JobID,
		"chunk", d.ChunkIndex,
		"stage", d.Stage,
		"model", d.Model,
		"error", d.Error,
	)
	return nil
}

// fileFor は日付に対応するファイルを返す。日付が変わったら開き直す。
func (l *ErrorLog) fileFor(now time.Time) (*os.File, error) {
	name := fmt.Sprintf("llm_errors_%s.jsonl", now.Format("2006-01-02"))
	if l.file != nil && l.current == name {
		return l.file, nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = f
	l.current = name
	return f, nil
}

// Close はログファイルを閉じる
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var _ extraction.DiagnosticRecorder = (*ErrorLog)(nil)

package filesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
)

// Output は1文書分の出力
type Output struct {
	DocumentID uuid.UUID           `json:"document_id"`
	FileName   string              `json:"file_name,omitempty"`
	Record     *record.Record      `json:"record"`
	Metadata   extraction.Metadata `json:"metadata"`
}

// JSONSink はレコードを JSON で書き出します。
// dir が空の場合は w にまとめて出力し、そうでなければ文書ごとに <ファイル名>.json を書き出します。
type JSONSink struct {
	source *Source
	dir    string
	w      io.Writer
	mu     sync.Mutex
}

// NewFileSink は文書ごとのファイルに書き出す JSONSink を作成します
func NewFileSink(source *Source, dir string) *JSONSink {
	return &JSONSink{source: source, dir: dir}
}

// NewWriterSink は w に書き出す JSONSink を作成します
func NewWriterSink(source *Source, w io.Writer) *JSONSink {
	return &JSONSink{source: source, w: w}
}

var _ extraction.RecordSink = (*JSONSink)(nil)

// SaveRecord はレコードを書き出します。同じ文書のファイルは上書きされます。
func (s *JSONSink) SaveRecord(_ context.Context, documentID uuid.UUID, rec *record.Record, meta extraction.Metadata) error {
	out := Output{DocumentID: documentID, Record: rec, Metadata: meta}
	if path, ok := s.source.Path(documentID); ok {
		out.FileName = filepath.Base(path)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		if _, err := s.w.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := s.OutputPath(documentID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// OutputPath は文書の出力先を返します
func (s *JSONSink) OutputPath(documentID uuid.UUID) string {
	name := documentID.String()
	if path, ok := s.source.Path(documentID); ok {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(s.dir, name+".json")
}

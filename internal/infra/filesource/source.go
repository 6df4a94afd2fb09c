// Package filesource はローカルのテキストファイルを抽出処理の入力とし、結果を JSON ファイルに書き出す。
// PDF や DOCX の変換・OCR は行わない。変換済みのテキストファイルを対象とする。
package filesource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
)

var (
	// ErrUnknownDocument は登録されていない文書IDの場合に返されます
	ErrUnknownDocument = errors.New("unknown document")

	// ErrBinaryContent はテキストではないファイルの場合に返されます
	ErrBinaryContent = errors.New("file is not plain text")
)

// documentNamespace はパスから文書IDを導出するための名前空間
var documentNamespace = uuid.MustParse("6f1c3b52-5c7e-4d0f-9a51-2f0e7c1d9b84")

// DocumentID はファイルの絶対パスから決まる文書IDを返します
func DocumentID(path string) (uuid.UUID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return uuid.NewSHA1(documentNamespace, []byte(abs)), nil
}

// Source は登録済みのファイルからテキストを読み込みます
type Source struct {
	mu    sync.RWMutex
	paths map[uuid.UUID]string
}

// NewSource は新しい Source を作成します
func NewSource() *Source {
	return &Source{paths: make(map[uuid.UUID]string)}
}

var _ extraction.TextSource = (*Source)(nil)

// Register はファイルを登録し、文書IDを返します
func (s *Source) Register(path string) (uuid.UUID, error) {
	id, err := DocumentID(path)
	if err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	s.paths[id] = path
	s.mu.Unlock()
	return id, nil
}

// Path は文書IDに対応するファイルパスを返します
func (s *Source) Path(id uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paths[id]
	return p, ok
}

func (s *Source) GetText(ctx context.Context, documentID uuid.UUID) (string, error) {
	path, ok := s.Path(documentID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodeText(path, content)
}

// DecodeText はファイル内容をテキストとして返します。バイナリや不正な UTF-8 は拒否します。
func DecodeText(path string, content []byte) (string, error) {
	if enry.IsBinary(content) {
		return "", fmt.Errorf("%w: %s (%s)", ErrBinaryContent, filepath.Base(path), detectContentType(content))
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrBinaryContent, filepath.Base(path))
	}
	// BOM を除く
	return strings.TrimPrefix(string(content), "\ufeff"), nil
}

func detectContentType(content []byte) string {
	detected := http.DetectContentType(content)
	if idx := strings.Index(detected, ";"); idx != -1 {
		detected = detected[:idx]
	}
	return strings.TrimSpace(detected)
}

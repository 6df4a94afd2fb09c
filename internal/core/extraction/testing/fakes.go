package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
)

// MockClient はテスト用のモック Client です
type MockClient struct {
	CompleteFunc func(ctx context.Context, req extraction.CompletionRequest) (extraction.CompletionResponse, error)
}

func (m *MockClient) Complete(ctx context.Context, req extraction.CompletionRequest) (extraction.CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return extraction.CompletionResponse{}, nil
}

// Reply は ScriptedClient が返す1回分の応答
type Reply struct {
	Content      string
	FinishReason string
	Err          error
	// Block が true の場合はコンテキストが終わるまで応答しない
	Block bool
	Delay time.Duration
}

// ScriptedClient はモデルごとに用意した応答を順に返す Client です
type ScriptedClient struct {
	mu      sync.Mutex
	replies map[string][]Reply
	calls   []extraction.CompletionRequest
}

// NewScriptedClient は新しい ScriptedClient を作成します
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{replies: make(map[string][]Reply)}
}

// On は model への応答を追加します
func (c *ScriptedClient) On(model string, replies ...Reply) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[model] = append(c.replies[model], replies...)
	return c
}

func (c *ScriptedClient) Complete(ctx context.Context, req extraction.CompletionRequest) (extraction.CompletionResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	queue := c.replies[req.Model]
	if len(queue) == 0 {
		c.mu.Unlock()
		return extraction.CompletionResponse{}, fmt.Errorf("no scripted reply for %s", req.Model)
	}
	reply := queue[0]
	c.replies[req.Model] = queue[1:]
	c.mu.Unlock()

	if reply.Block {
		<-ctx.Done()
		return extraction.CompletionResponse{}, ctx.Err()
	}
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return extraction.CompletionResponse{}, ctx.Err()
		}
	}
	if reply.Err != nil {
		return extraction.CompletionResponse{}, reply.Err
	}

	finish := reply.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return extraction.CompletionResponse{
		Content:      reply.Content,
		FinishReason: finish,
		Model:        req.Model,
		Usage:        extraction.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

// Calls は受け取ったリクエストを順に返します
func (c *ScriptedClient) Calls() []extraction.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]extraction.CompletionRequest(nil), c.calls...)
}

// CallCount は呼び出し回数を返します
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// MockTextSource はテスト用のモック TextSource です
type MockTextSource struct {
	GetTextFunc func(ctx context.Context, documentID uuid.UUID) (string, error)
}

func (m *MockTextSource) GetText(ctx context.Context, documentID uuid.UUID) (string, error) {
	if m.GetTextFunc != nil {
		return m.GetTextFunc(ctx, documentID)
	}
	return "", nil
}

// StaticText は常に text を返す TextSource を作成します
func StaticText(text string) *MockTextSource {
	return &MockTextSource{
		GetTextFunc: func(context.Context, uuid.UUID) (string, error) {
			return text, nil
		},
	}
}

// SavedRecord は RecordingSink に保存された1件
type SavedRecord struct {
	DocumentID uuid.UUID
	Record     *record.Record
	Metadata   extraction.Metadata
}

// RecordingSink は保存されたレコードを記録する RecordSink です
type RecordingSink struct {
	mu    sync.Mutex
	saved []SavedRecord
	// Err が設定されている場合は保存に失敗する
	Err error
	// BeforeSave は記録の直前に呼ばれる
	BeforeSave func(ctx context.Context) error
}

func (s *RecordingSink) SaveRecord(ctx context.Context, documentID uuid.UUID, rec *record.Record, meta extraction.Metadata) error {
	if s.Err != nil {
		return s.Err
	}
	if s.BeforeSave != nil {
		if err := s.BeforeSave(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, SavedRecord{DocumentID: documentID, Record: rec, Metadata: meta})
	return nil
}

// Saved は保存されたレコードを順に返します
func (s *RecordingSink) Saved() []SavedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SavedRecord(nil), s.saved...)
}

// MockLineIndexer はテスト用のモック LineIndexer です
type MockLineIndexer struct {
	IndexLinesFunc func(ctx context.Context, documentID uuid.UUID, ls []lines.Line) error
}

func (m *MockLineIndexer) IndexLines(ctx context.Context, documentID uuid.UUID, ls []lines.Line) error {
	if m.IndexLinesFunc != nil {
		return m.IndexLinesFunc(ctx, documentID, ls)
	}
	return nil
}

// RecordingObserver はモデル呼び出しを記録する AttemptObserver です
type RecordingObserver struct {
	mu       sync.Mutex
	attempts []extraction.Attempt
}

func (o *RecordingObserver) ObserveAttempt(a extraction.Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, a)
}

// Attempts は記録した呼び出しを順に返します
func (o *RecordingObserver) Attempts() []extraction.Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]extraction.Attempt(nil), o.attempts...)
}

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jinford/cv-extract/internal/core/extraction"
)

// RateLimiter はモデル呼び出しのレートと並列数を制限する。
// 1分ごとに補充するトークンバケットと、同時実行数のセマフォを組み合わせる。
type RateLimiter struct {
	mu sync.Mutex

	// maxRequestsPerMinute は1分あたりの最大リクエスト数
	maxRequestsPerMinute int

	// tokens はトークンバケット
	tokens int

	// lastRefill は最後にトークンを補充した時刻
	lastRefill time.Time

	// waitQueue はトークン待ちのリクエスト数
	waitQueue int

	// semaphore は並列実行を制御するセマフォ
	semaphore chan struct{}

	// pollInterval はトークン切れの際の再確認間隔
	pollInterval time.Duration
}

// NewRateLimiter は新しいRateLimiterを作成する。
// maxConcurrent が 0 以下の場合は maxRequestsPerMinute と同じ並列数を許す。
func NewRateLimiter(maxRequestsPerMinute, maxConcurrent int) *RateLimiter {
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = 60
	}
	if maxConcurrent <= 0 {
		maxConcurrent = maxRequestsPerMinute
	}
	return &RateLimiter{
		maxRequestsPerMinute: maxRequestsPerMinute,
		tokens:               maxRequestsPerMinute,
		lastRefill:           time.Now(),
		semaphore:            make(chan struct{}, maxConcurrent),
		pollInterval:         time.Second,
	}
}

// Wait はレート制限に従って待機し、実行権限を取得する。
// 成功した場合は必ず Release を呼ぶこと。
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case rl.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for {
		rl.refillTokens()
		if rl.tokens > 0 {
			rl.tokens--
			return nil
		}

		rl.waitQueue++
		rl.mu.Unlock()

		select {
		case <-time.After(rl.pollInterval):
		case <-ctx.Done():
			rl.mu.Lock()
			rl.waitQueue--
			<-rl.semaphore
			return ctx.Err()
		}

		rl.mu.Lock()
		rl.waitQueue--
	}
}

// Release は実行権限を解放する
func (rl *RateLimiter) Release() {
	<-rl.semaphore
}

// refillTokens は経過した分だけトークンを補充する。ロックを保持して呼ぶ。
func (rl *RateLimiter) refillTokens() {
	elapsed := time.Since(rl.lastRefill)
	if elapsed < time.Minute {
		return
	}

	minutes := int(elapsed.Minutes())
	rl.tokens = min(rl.tokens+minutes*rl.maxRequestsPerMinute, rl.maxRequestsPerMinute)
	rl.lastRefill = rl.lastRefill.Add(time.Duration(minutes) * time.Minute)
}

// GetStatus は現在の状態を返す
func (rl *RateLimiter) GetStatus() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillTokens()

	return RateLimiterStatus{
		MaxRequestsPerMinute: rl.maxRequestsPerMinute,
		MaxConcurrent:        cap(rl.semaphore),
		AvailableTokens:      rl.tokens,
		WaitingRequests:      rl.waitQueue,
		ActiveRequests:       len(rl.semaphore),
	}
}

// RateLimiterStatus はレート制限の状態
type RateLimiterStatus struct {
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
	MaxConcurrent        int `json:"max_concurrent"`
	AvailableTokens      int `json:"available_tokens"`
	WaitingRequests      int `json:"waiting_requests"`
	ActiveRequests       int `json:"active_requests"`
}

func (s RateLimiterStatus) String() string {
	return fmt.Sprintf(
		"RateLimiter: max=%d/min, concurrency=%d, available=%d, waiting=%d, active=%d",
		s.MaxRequestsPerMinute,
		s.MaxConcurrent,
		s.AvailableTokens,
		s.WaitingRequests,
		s.ActiveRequests,
	)
}

// ThrottledClient はレート制限付きの extraction.Client。
// すべてのジョブで1つを共有する。
type ThrottledClient struct {
	client      extraction.Client
	rateLimiter *RateLimiter
}

// NewThrottledClient はレート制限付きのクライアントを作成する
func NewThrottledClient(client extraction.Client, maxRequestsPerMinute, maxConcurrent int) *ThrottledClient {
	return &ThrottledClient{
		client:      client,
		rateLimiter: NewRateLimiter(maxRequestsPerMinute, maxConcurrent),
	}
}

// Complete はレート制限に従ってモデルを呼び出す。待機中のキャンセルはそのまま返す。
func (tc *ThrottledClient) Complete(ctx context.Context, req extraction.CompletionRequest) (extraction.CompletionResponse, error) {
	if err := tc.rateLimiter.Wait(ctx); err != nil {
		return extraction.CompletionResponse{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	defer tc.rateLimiter.Release()

	return tc.client.Complete(ctx, req)
}

// Status はレート制限の状態を返す
func (tc *ThrottledClient) Status() RateLimiterStatus {
	return tc.rateLimiter.GetStatus()
}

var _ extraction.Client = (*ThrottledClient)(nil)

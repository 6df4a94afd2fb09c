package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jinford/cv-extract/internal/core/extraction"
	extractiontest "github.com/jinford/cv-extract/internal/core/extraction/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	tests := []struct {
		name           string
		rpm            int
		concurrent     int
		wantRPM        int
		wantConcurrent int
	}{
		{name: "明示的な並列数", rpm: 10, concurrent: 2, wantRPM: 10, wantConcurrent: 2},
		{name: "並列数の省略", rpm: 10, concurrent: 0, wantRPM: 10, wantConcurrent: 10},
		{name: "RPM の省略", rpm: 0, concurrent: 3, wantRPM: 60, wantConcurrent: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.rpm, tt.concurrent)

			status := rl.GetStatus()
			assert.Equal(t, tt.wantRPM, status.MaxRequestsPerMinute)
			assert.Equal(t, tt.wantRPM, status.AvailableTokens)
			assert.Equal(t, tt.wantConcurrent, status.MaxConcurrent)
		})
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(10, 0)

	err := rl.Wait(context.Background())
	require.NoError(t, err)
	defer rl.Release()

	status := rl.GetStatus()
	assert.Equal(t, 9, status.AvailableTokens)
	assert.Equal(t, 1, status.ActiveRequests)
}

func TestRateLimiter_RateLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(2, 0)
	rl.pollInterval = 10 * time.Millisecond

	for range 2 {
		require.NoError(t, rl.Wait(context.Background()))
		rl.Release()
	}

	// 3回目はトークンの補充を待つ
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, rl.GetStatus().ActiveRequests, "semaphore is released on cancellation")
	assert.Equal(t, 0, rl.GetStatus().WaitingRequests)
}

func TestRateLimiter_ConcurrencyLimit(t *testing.T) {
	rl := NewRateLimiter(100, 1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rl.Wait(ctx)

	assert.Equal(t, context.Canceled, err)
	rl.Release()
	assert.Equal(t, 99, rl.GetStatus().AvailableTokens, "no token is consumed while waiting for a slot")
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl := NewRateLimiter(10, 0)
	for range 10 {
		require.NoError(t, rl.Wait(context.Background()))
		rl.Release()
	}
	assert.Equal(t, 0, rl.GetStatus().AvailableTokens)

	rl.mu.Lock()
	rl.lastRefill = time.Now().Add(-61 * time.Second)
	rl.mu.Unlock()

	assert.Equal(t, 10, rl.GetStatus().AvailableTokens)
}

func TestRateLimiterStatus_String(t *testing.T) {
	status := RateLimiterStatus{
		MaxRequestsPerMinute: 10,
		MaxConcurrent:        4,
		AvailableTokens:      5,
		WaitingRequests:      2,
		ActiveRequests:       3,
	}

	str := status.String()
	assert.Contains(t, str, "max=10/min")
	assert.Contains(t, str, "concurrency=4")
	assert.Contains(t, str, "available=5")
	assert.Contains(t, str, "waiting=2")
	assert.Contains(t, str, "active=3")
}

func TestThrottledClient_Complete(t *testing.T) {
	// Setup
	var active, peak atomic.Int32
	mock := &extractiontest.MockClient{
		CompleteFunc: func(ctx context.Context, req extraction.CompletionRequest) (extraction.CompletionResponse, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return extraction.CompletionResponse{Content: "{}", Model: req.Model}, nil
		},
	}
	client := NewThrottledClient(mock, 100, 2)

	// Execute
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Complete(context.Background(), extraction.CompletionRequest{Model: "m"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Assert
	assert.LessOrEqual(t, peak.Load(), int32(2))
	status := client.Status()
	assert.Equal(t, 92, status.AvailableTokens)
	assert.Equal(t, 0, status.ActiveRequests)
}

func TestThrottledClient_CanceledWhileWaiting(t *testing.T) {
	client := NewThrottledClient(extractiontest.NewScriptedClient(), 1, 1)
	require.NoError(t, client.rateLimiter.Wait(context.Background()))
	defer client.rateLimiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, extraction.CompletionRequest{Model: "m"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, extraction.FailureTimeout, extraction.Classify(err))
}

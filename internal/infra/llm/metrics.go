package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jinford/cv-extract/internal/core/extraction"
)

// リクエスト種別
const (
	RequestTypeExtraction   = "extraction"
	RequestTypeContinuation = "continuation"
)

// Metrics はモデル呼び出しの使用状況を集計する extraction.AttemptObserver
type Metrics struct {
	mu sync.RWMutex

	// 呼び出し回数
	totalRequests      int
	successfulRequests int
	failedRequests     int
	requestsByType     map[string]int
	requestsByModel    map[string]int

	// トークン使用量
	usage        extraction.Usage
	usageByModel map[string]extraction.Usage

	// レイテンシ
	totalLatency   time.Duration
	latencyByModel map[string][]time.Duration

	// 失敗
	failuresByKind  map[string]int
	failuresByModel map[string]int

	startTime       time.Time
	lastRequestTime time.Time
	now             func() time.Time
}

// NewMetrics は新しいMetricsを作成する
func NewMetrics() *Metrics {
	m := &Metrics{now: time.Now}
	m.reset()
	return m
}

func (m *Metrics) reset() {
	m.totalRequests = 0
	m.successfulRequests = 0
	m.failedRequests = 0
	m.requestsByType = make(map[string]int)
	m.requestsByModel = make(map[string]int)
	m.usage = extraction.Usage{}
	m.usageByModel = make(map[string]extraction.Usage)
	m.totalLatency = 0
	m.latencyByModel = make(map[string][]time.Duration)
	m.failuresByKind = make(map[string]int)
	m.failuresByModel = make(map[string]int)
	m.startTime = m.now()
	m.lastRequestTime = time.Time{}
}

// ObserveAttempt は1回のモデル呼び出しを記録する
func (m *Metrics) ObserveAttempt(a extraction.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqType := RequestTypeExtraction
	if a.Sequence > 0 {
		reqType = RequestTypeContinuation
	}

	m.totalRequests++
	m.requestsByType[reqType]++
	m.requestsByModel[a.Model]++
	m.lastRequestTime = m.now()

	if a.Success() {
		m.successfulRequests++
		m.usage = m.usage.Add(a.Usage)
		m.usageByModel[a.Model] = m.usageByModel[a.Model].Add(a.Usage)
		m.totalLatency += a.Latency
	} else {
		m.failedRequests++
		m.failuresByKind[string(a.Kind)]++
		m.failuresByModel[a.Model]++
	}

	m.latencyByModel[a.Model] = append(m.latencyByModel[a.Model], a.Latency)
}

// MetricsSnapshot はメトリクスのスナップショット
type MetricsSnapshot struct {
	CapturedAt      time.Time     `json:"captured_at"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
	LastRequestTime time.Time     `json:"last_request_time"`

	TotalRequests      int            `json:"total_requests"`
	SuccessfulRequests int            `json:"successful_requests"`
	FailedRequests     int            `json:"failed_requests"`
	SuccessRate        float64        `json:"success_rate"`
	RequestsByType     map[string]int `json:"requests_by_type"`
	RequestsByModel    map[string]int `json:"requests_by_model"`

	Usage        extraction.Usage            `json:"usage"`
	UsageByModel map[string]extraction.Usage `json:"usage_by_model"`

	// AverageLatency は成功した呼び出しの平均
	AverageLatency time.Duration          `json:"average_latency"`
	LatencyByModel map[string]LatencyStat `json:"latency_by_model"`

	FailuresByKind  map[string]int `json:"failures_by_kind"`
	FailuresByModel map[string]int `json:"failures_by_model"`
}

// LatencyStat はレイテンシの統計情報
type LatencyStat struct {
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	snapshot := MetricsSnapshot{
		CapturedAt:         now,
		StartTime:          m.startTime,
		ElapsedTime:        now.Sub(m.startTime),
		LastRequestTime:    m.lastRequestTime,
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		RequestsByType:     maps.Clone(m.requestsByType),
		RequestsByModel:    maps.Clone(m.requestsByModel),
		Usage:              m.usage,
		UsageByModel:       maps.Clone(m.usageByModel),
		FailuresByKind:     maps.Clone(m.failuresByKind),
		FailuresByModel:    maps.Clone(m.failuresByModel),
		LatencyByModel:     make(map[string]LatencyStat, len(m.latencyByModel)),
	}

	if m.totalRequests > 0 {
		snapshot.SuccessRate = float64(m.successfulRequests) / float64(m.totalRequests) * 100.0
	}
	if m.successfulRequests > 0 {
		snapshot.AverageLatency = m.totalLatency / time.Duration(m.successfulRequests)
	}
	for model, latencies := range m.latencyByModel {
		snapshot.LatencyByModel[model] = calculateLatencyStat(latencies)
	}

	return snapshot
}

// ExportJSON はメトリクスをJSON形式でエクスポートする
func (m *Metrics) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(m.Snapshot(), "", "  ")
}

// Reset はメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// PrintSummary は簡潔なサマリーを w に書き出す
func (m *Metrics) PrintSummary(w io.Writer) {
	s := m.Snapshot()

	fmt.Fprintln(w, "\n=== LLM Usage Summary ===")
	fmt.Fprintf(w, "Period: %s to %s (elapsed: %s)\n",
		s.StartTime.Format("2006-01-02 15:04:05"),
		s.CapturedAt.Format("2006-01-02 15:04:05"),
		s.ElapsedTime.Round(time.Second))
	fmt.Fprintf(w, "\nModel calls:\n")
	fmt.Fprintf(w, "  Total: %d\n", s.TotalRequests)
	fmt.Fprintf(w, "  Successful: %d (%.2f%%)\n", s.SuccessfulRequests, s.SuccessRate)
	fmt.Fprintf(w, "  Failed: %d\n", s.FailedRequests)
	fmt.Fprintf(w, "  Continuations: %d\n", s.RequestsByType[RequestTypeContinuation])
	for _, kind := range slices.Sorted(maps.Keys(s.FailuresByKind)) {
		fmt.Fprintf(w, "    %s: %d\n", kind, s.FailuresByKind[kind])
	}

	fmt.Fprintf(w, "\nTokens:\n")
	fmt.Fprintf(w, "  Total: %d\n", s.Usage.TotalTokens)
	fmt.Fprintf(w, "  Prompt: %d\n", s.Usage.PromptTokens)
	fmt.Fprintf(w, "  Completion: %d\n", s.Usage.CompletionTokens)

	if s.AverageLatency > 0 {
		fmt.Fprintf(w, "\nLatency:\n")
		fmt.Fprintf(w, "  Average: %s\n", s.AverageLatency.Round(time.Millisecond))
	}
	fmt.Fprintln(w, "=========================")
}

func calculateLatencyStat(latencies []time.Duration) LatencyStat {
	if len(latencies) == 0 {
		return LatencyStat{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	stat := LatencyStat{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	stat.Average = sum / time.Duration(len(sorted))

	stat.P50 = sorted[len(sorted)*50/100]
	if len(sorted) > 1 {
		stat.P95 = sorted[len(sorted)*95/100]
		stat.P99 = sorted[len(sorted)*99/100]
	} else {
		stat.P95 = stat.Max
		stat.P99 = stat.Max
	}
	return stat
}

var _ extraction.AttemptObserver = (*Metrics)(nil)

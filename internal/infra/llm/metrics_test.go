package llm

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveAttempt(t *testing.T) {
	// Setup
	m := NewMetrics()
	usage := extraction.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}

	// Execute
	m.ObserveAttempt(extraction.Attempt{Model: "a", Latency: 100 * time.Millisecond, Kind: extraction.FailureTimeout})
	m.ObserveAttempt(extraction.Attempt{Model: "b", Latency: 200 * time.Millisecond, Usage: usage})
	m.ObserveAttempt(extraction.Attempt{Model: "b", Sequence: 1, Latency: 400 * time.Millisecond, Usage: usage})

	// Assert
	s := m.Snapshot()
	assert.Equal(t, 3, s.TotalRequests)
	assert.Equal(t, 2, s.SuccessfulRequests)
	assert.Equal(t, 1, s.FailedRequests)
	assert.InDelta(t, 66.67, s.SuccessRate, 0.01)
	assert.Equal(t, map[string]int{RequestTypeExtraction: 2, RequestTypeContinuation: 1}, s.RequestsByType)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, s.RequestsByModel)
	assert.Equal(t, map[string]int{"timeout": 1}, s.FailuresByKind)
	assert.Equal(t, usage.Add(usage), s.Usage)
	assert.Equal(t, usage.Add(usage), s.UsageByModel["b"])
	assert.Equal(t, 300*time.Millisecond, s.AverageLatency)
	assert.Equal(t, 200*time.Millisecond, s.LatencyByModel["b"].Min)
	assert.Equal(t, 400*time.Millisecond, s.LatencyByModel["b"].Max)
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.ObserveAttempt(extraction.Attempt{Model: "a"})

	s := m.Snapshot()
	s.RequestsByModel["a"] = 42

	assert.Equal(t, 1, m.Snapshot().RequestsByModel["a"])
}

func TestMetrics_ResetAndExport(t *testing.T) {
	m := NewMetrics()
	m.ObserveAttempt(extraction.Attempt{Model: "a", Kind: extraction.FailureQuota})

	m.Reset()
	raw, err := m.ExportJSON()

	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 0, decoded["total_requests"])
	assert.Empty(t, decoded["failures_by_kind"])
}

func TestMetrics_PrintSummary(t *testing.T) {
	m := NewMetrics()
	m.ObserveAttempt(extraction.Attempt{Model: "a", Kind: extraction.FailureAuth})
	m.ObserveAttempt(extraction.Attempt{Model: "b", Sequence: 1, Usage: extraction.Usage{TotalTokens: 10}})

	var buf bytes.Buffer
	m.PrintSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "Total: 2")
	assert.Contains(t, out, "Continuations: 1")
	assert.Contains(t, out, "auth: 1")
}

func TestCalculateLatencyStat(t *testing.T) {
	tests := []struct {
		name      string
		latencies []time.Duration
		want      LatencyStat
	}{
		{name: "空", latencies: nil, want: LatencyStat{}},
		{
			name:      "1件",
			latencies: []time.Duration{5},
			want:      LatencyStat{Min: 5, Max: 5, Average: 5, P50: 5, P95: 5, P99: 5},
		},
		{
			name:      "未ソート",
			latencies: []time.Duration{30, 10, 20, 40},
			want:      LatencyStat{Min: 10, Max: 40, Average: 25, P50: 30, P95: 40, P99: 40},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateLatencyStat(tt.latencies))
		})
	}
}

package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/repair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []ErrorRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []ErrorRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r ErrorRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestErrorLog_RecordDiagnostic(t *testing.T) {
	// Setup
	dir := t.TempDir()
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	log, err := NewErrorLog(dir, WithErrorLogClock(func() time.Time { return day }))
	require.NoError(t, err)
	defer log.Close()

	jobID := uuid.New()
	raw := strings.Repeat("x", repair.MaxDiagnosticChars+500)

	// Execute
	err = log.RecordDiagnostic(extraction.Diagnostic{
		JobID:      jobID,
		ChunkIndex: 2,
		Model:      "openai/gpt-4o",
		Stage:      "repair",
		Error:      "structural repair failed: no JSON object found",
		Raw:        raw,
	})
	require.NoError(t, err)
	err = log.RecordDiagnostic(extraction.Diagnostic{JobID: jobID, Stage: "invoke", Error: "all 4 models failed"})
	require.NoError(t, err)

	// Assert
	records := readRecords(t, filepath.Join(dir, "llm_errors_2026-03-14.jsonl"))
	require.Len(t, records, 2)
	assert.Equal(t, jobID, records[0].JobID)
	assert.Equal(t, 2, records[0].ChunkIndex)
	assert.Equal(t, "repair", records[0].Stage)
	assert.True(t, strings.HasSuffix(records[0].Response, "...(truncated)"))
	assert.Len(t, []rune(records[0].Response), repair.MaxDiagnosticChars+len("...(truncated)"))
	assert.Equal(t, "invoke", records[1].Stage)
	assert.Empty(t, records[1].Response)
}

func TestErrorLog_RotatesByDate(t *testing.T) {
	// Setup
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	log, err := NewErrorLog(dir, WithErrorLogClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer log.Close()

	// Execute
	require.NoError(t, log.RecordDiagnostic(extraction.Diagnostic{Stage: "invoke", Error: "first"}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, log.RecordDiagnostic(extraction.Diagnostic{Stage: "invoke", Error: "second"}))

	// Assert
	assert.Len(t, readRecords(t, filepath.Join(dir, "llm_errors_2026-03-14.jsonl")), 1)
	assert.Len(t, readRecords(t, filepath.Join(dir, "llm_errors_2026-03-15.jsonl")), 1)
}

func TestErrorLog_Disabled(t *testing.T) {
	log, err := NewErrorLog("")
	require.NoError(t, err)

	assert.False(t, log.Enabled())
	assert.NoError(t, log.RecordDiagnostic(extraction.Diagnostic{Stage: "repair"}))
	assert.NoError(t, log.Close())
}

package chunk_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jinford/cv-extract/internal/core/extraction/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cvText は1行あたり概ね40文字の履歴書風テキストを生成します
func cvText(lines int) string {
	var b strings.Builder
	for i := range lines {
		fmt.Fprintf(&b, "%03d Software Engineer at Company %03d\n", i, i)
	}
	return b.String()
}

func TestPlan_SingleChunkPassthrough(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
	}{
		{name: "短いテキスト", text: "Maria Santos\nEngineer", max: 100},
		{name: "上限ちょうど", text: strings.Repeat("a", 100), max: 100},
		{name: "マルチバイト", text: strings.Repeat("あ", 100), max: 100},
		{name: "scenario sized", text: strings.Repeat("x", 15000), max: 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := chunk.Plan(tt.text, tt.max, 10)

			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, tt.text, chunks[0].Text)
			assert.Equal(t, 0, chunks[0].Start)
			assert.Equal(t, len([]rune(tt.text)), chunks[0].End)
			assert.Equal(t, 0, chunks[0].Overlap)
		})
	}
}

func TestPlan_NoMidLineSplits(t *testing.T) {
	// Setup
	text := cvText(200)
	runes := []rune(text)

	// Execute
	chunks, err := chunk.Plan(text, 500, 60)

	// Assert
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, c.Len(), 500, "chunk %d", i)
		assert.Equal(t, '\n', runes[c.End-1], "chunk %d must end on a line break", i)
		if i > 0 {
			assert.Equal(t, '\n', runes[c.Start-1], "chunk %d must start on a line start", i)
		}
	}
}

func TestPlan_CoversTextWithOverlap(t *testing.T) {
	// Setup
	text := cvText(300)
	runes := []rune(text)

	// Execute
	chunks, err := chunk.Plan(text, 1000, 100)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, i, cur.Index)
		assert.Greater(t, cur.Start, prev.Start, "chunks must make progress")
		assert.Less(t, cur.Start, prev.End, "adjacent chunks must overlap")
		assert.Equal(t, prev.End-cur.Start, cur.Overlap)
		assert.LessOrEqual(t, cur.Overlap, 200)
		assert.Equal(t, string(runes[cur.Start:cur.End]), cur.Text)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	text := cvText(500) + strings.Repeat("long line without breaks ", 200)

	first, err := chunk.Plan(text, 800, 120)
	require.NoError(t, err)
	second, err := chunk.Plan(text, 800, 120)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPlan_HardSplitWithoutLineBreaks(t *testing.T) {
	// Setup
	text := strings.Repeat("x", 250)

	// Execute
	chunks, err := chunk.Plan(text, 100, 0)

	// Assert
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 100, 200}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start})
	assert.Equal(t, 250, chunks[2].End)
}

func TestPlan_LineBreakTooFarBackIsIgnored(t *testing.T) {
	// Setup: 唯一の改行が max/2 より手前にある
	text := "short line\n" + strings.Repeat("y", 300)

	// Execute
	chunks, err := chunk.Plan(text, 100, 0)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 100, chunks[0].End)
}

func TestPlan_InvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		overlap int
	}{
		{name: "zero max", max: 0, overlap: 0},
		{name: "negative max", max: -1, overlap: 0},
		{name: "negative overlap", max: 100, overlap: -1},
		{name: "overlap at half", max: 100, overlap: 50},
		{name: "overlap above max", max: 100, overlap: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunk.Plan("text", tt.max, tt.overlap)
			assert.ErrorIs(t, err, chunk.ErrInvalidPlan)
		})
	}
}

func TestPlan_RuneOffsets(t *testing.T) {
	// Setup
	line := strings.Repeat("経", 29) + "\n"
	text := strings.Repeat(line, 10)

	// Execute
	chunks, err := chunk.Plan(text, 100, 20)

	// Assert
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, c.Len(), len([]rune(c.Text)))
		assert.True(t, strings.HasSuffix(c.Text, "\n"))
	}
}

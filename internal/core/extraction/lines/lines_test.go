package lines_test

import (
	"testing"

	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	// Setup
	text := "MARIA SANTOS\n\n  maria@example.com  \n--\nWORK EXPERIENCE\n" +
		"• Built the billing system\n1. Led migrations\nLocation: Manila\nJan 2019 - Present\n" +
		"Responsible for   the payments platform end to end"

	// Execute
	got := lines.Split(text)

	// Assert
	require.Len(t, got, 8)
	assert.Equal(t, lines.Line{Number: 1, Text: "MARIA SANTOS", Type: lines.TypeHeader}, got[0])
	assert.Equal(t, lines.Line{Number: 3, Text: "maria@example.com", Type: lines.TypeContactInfo}, got[1])
	assert.Equal(t, 5, got[2].Number, "lines without alphanumerics are skipped but numbering is kept")
	assert.Equal(t, lines.TypeListItem, got[3].Type)
	assert.Equal(t, lines.TypeListItem, got[4].Type)
	assert.Equal(t, lines.TypeKeyValue, got[5].Type)
	assert.Equal(t, lines.TypeDateInfo, got[6].Type)
	assert.Equal(t, lines.Line{Number: 10, Text: "Responsible for the payments platform end to end", Type: lines.TypeContent}, got[7])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want lines.Type
	}{
		{line: "EDUCATION", want: lines.TypeHeader},
		{line: "- Go, SQL", want: lines.TypeListItem},
		{line: "Email: maria@example.com", want: lines.TypeKeyValue},
		{line: "+63 917 123 4567", want: lines.TypeContactInfo},
		{line: "Graduated March 2015", want: lines.TypeDateInfo},
		{line: "Graduated in 2015", want: lines.TypeContent},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, lines.Classify(tt.line))
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, lines.Split(""))
	assert.Empty(t, lines.Split("\n\n--\n"))
}

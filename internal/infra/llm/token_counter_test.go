package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounter_CountTokens(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "空文字列", text: "", want: 0},
		{name: "英語", text: "hello world", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tc.CountTokens(tt.text))
		})
	}
}

func TestTokenCounter_NilSafe(t *testing.T) {
	var tc *TokenCounter

	assert.Equal(t, 0, tc.CountTokens("hello"))
}

// Package chunk は長い文書を抽出単位に分割し、モデルごとの応答トークン数を見積もる。
package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlan は分割パラメータが不正な場合に返されます
	ErrInvalidPlan = errors.New("invalid chunk plan")
)

// Chunk は元テキストの連続した一部分。オフセットはルーン単位。
type Chunk struct {
	Index   int
	Text    string
	Start   int
	End     int
	Overlap int // 直前のチャンクと共有するルーン数
}

// Len はチャンクのルーン数を返します
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Plan は text を maxChars 以下のチャンクに分割します。
// 境界は目標位置以前の直近の改行に合わせ、行の途中では切りません。
// 次のチャンクは overlap だけ手前から始め、その位置も行頭に合わせます。
// 同じ入力には常に同じ結果を返します。
func Plan(text string, maxChars, overlap int) ([]Chunk, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chunk chars must be positive (got %d)", ErrInvalidPlan, maxChars)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative (got %d)", ErrInvalidPlan, overlap)
	}
	if overlap > 0 && 2*overlap >= maxChars {
		return nil, fmt.Errorf("%w: overlap %d must be less than half of max chunk chars %d", ErrInvalidPlan, overlap, maxChars)
	}

	runes := []rune(text)
	n := len(runes)
	if n <= maxChars {
		return []Chunk{{Index: 0, Text: text, Start: 0, End: n}}, nil
	}

	var chunks []Chunk
	start, prevEnd := 0, 0
	for {
		end := boundary(runes, start, maxChars)
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
			Overlap: max(prevEnd-start, 0),
		})
		if end >= n {
			return chunks, nil
		}
		prevEnd = end
		start = nextStart(runes, start, end, overlap)
	}
}

// boundary はチャンクの終端を返す。[start+max/2, start+max] の範囲で最も後ろの改行の直後に合わせ、
// 改行がなければ start+max で切る。
func boundary(runes []rune, start, maxChars int) int {
	target := start + maxChars
	if target >= len(runes) {
		return len(runes)
	}
	floor := start + maxChars/2
	for i := target; i > floor; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return target
}

// nextStart は次のチャンクの開始位置を返す。end-overlap に最も近い行頭を
// [end-2*overlap, end) の範囲で探し、なければ end-overlap をそのまま使う。
func nextStart(runes []rune, start, end, overlap int) int {
	if overlap == 0 {
		return end
	}
	want := end - overlap
	lo := max(end-2*overlap, start+1)
	for d := 0; want-d >= lo || want+d < end; d++ {
		if p := want - d; p >= lo && isLineStart(runes, p) {
			return p
		}
		if p := want + d; p < end && isLineStart(runes, p) {
			return p
		}
	}
	return max(want, start+1)
}

func isLineStart(runes []rune, p int) bool {
	return p == 0 || runes[p-1] == '\n'
}

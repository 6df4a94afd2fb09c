// Package lines は抽出したテキストを検索用の行に分割し、種別を付ける。
package lines

import (
	"regexp"
	"strings"
	"unicode"
)

// Type は行の種別
type Type string

const (
	TypeHeader      Type = "header"
	TypeListItem    Type = "list_item"
	TypeKeyValue    Type = "key_value"
	TypeContactInfo Type = "contact_info"
	TypeDateInfo    Type = "date_info"
	TypeContent     Type = "content"
)

// MinLineLength は保存対象とする行の最小文字数
const MinLineLength = 3

// Line は1行分のテキスト。Number は元テキストでの1始まりの行番号。
type Line struct {
	Number int
	Text   string
	Type   Type
}

var (
	headerPattern   = regexp.MustCompile(`^[A-Z][A-Z\s]+$`)
	numberedPattern = regexp.MustCompile(`^\d+\.`)
	bulletPattern   = regexp.MustCompile(`^[•\-*]\s`)
	keyValuePattern = regexp.MustCompile(`^\w+:\s`)
	phonePattern    = regexp.MustCompile(`\+?\d[\d\s().-]{6,}\d`)
	yearPattern     = regexp.MustCompile(`\d{4}`)
	monthPattern    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)`)
)

// Split はテキストを行に分割し、短い行や英数字を含まない行を除いて分類します
func Split(text string) []Line {
	if text == "" {
		return nil
	}
	var out []Line
	for i, raw := range strings.Split(text, "\n") {
		cleaned := Clean(raw)
		if !valid(cleaned) {
			continue
		}
		out = append(out, Line{Number: i + 1, Text: cleaned, Type: Classify(cleaned)})
	}
	return out
}

// Clean は連続する空白を1つにまとめ、制御文字を取り除きます
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func valid(s string) bool {
	if len([]rune(s)) < MinLineLength {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// Classify は行の種別を判定します
func Classify(s string) Type {
	switch {
	case headerPattern.MatchString(s):
		return TypeHeader
	case numberedPattern.MatchString(s), bulletPattern.MatchString(s):
		return TypeListItem
	case keyValuePattern.MatchString(s):
		return TypeKeyValue
	case len([]rune(s)) < 50 && (strings.Contains(s, "@") || phonePattern.MatchString(s)):
		return TypeContactInfo
	case yearPattern.MatchString(s) && monthPattern.MatchString(s):
		return TypeDateInfo
	default:
		return TypeContent
	}
}

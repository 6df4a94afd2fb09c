package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Text はスカラー値を文字列として保持する。
// LLM は数値や真偽値を返すことがあるため、デコード時はそれらも文字列として受け入れる。null は空文字になる。
type Text string

// UnmarshalJSON は文字列・数値・真偽値・null を受け入れる
func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{', '[':
		return fmt.Errorf("record: expected scalar value, got %c", trimmed[0])
	default:
		*t = Text(trimmed)
	}
	return nil
}

// String は文字列表現を返す
func (t Text) String() string {
	return string(t)
}

// TextList は文字列リスト。単一の文字列が来た場合は要素1つのリストとして扱う。
type TextList []string

// UnmarshalJSON は配列・単一スカラー・null を受け入れる
func (l *TextList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	if trimmed[0] != '[' {
		var single Text
		if err := single.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*l = TextList{string(single)}
		return nil
	}

	var items []Text
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	out := make(TextList, 0, len(items))
	for _, item := range items {
		out = append(out, string(item))
	}
	*l = out
	return nil
}

// Flag は true / false / 未指定 の三値を表す
type Flag int8

const (
	FlagUnset Flag = iota
	FlagTrue
	FlagFalse
)

// MarshalJSON は true/false を出力する。未指定は omitempty で省略される想定。
func (f Flag) MarshalJSON() ([]byte, error) {
	switch f {
	case FlagTrue:
		return []byte("true"), nil
	case FlagFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON は真偽値と "yes"/"no" などの文字列を受け入れる
func (f *Flag) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "true", "yes", "y", "1":
		*f = FlagTrue
	case "false", "no", "n", "0":
		*f = FlagFalse
	default:
		*f = FlagUnset
	}
	return nil
}

func normText(t Text) Text {
	return Text(strings.TrimSpace(string(t)))
}

func normList(l TextList) TextList {
	var out TextList
	for _, s := range l {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fold は比較用に大文字小文字と空白の揺れを吸収する
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// foldDate は日付比較用の正規化。進行中を表す表記は "present" に揃える。
func foldDate(t Text) string {
	s := fold(string(t))
	switch s {
	case "present", "current", "now", "ongoing", "to date", "till date", "to present":
		return "present"
	}
	return s
}

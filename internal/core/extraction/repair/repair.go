// Package repair は LLM が返した壊れた・途切れた JSON テキストから
// 構造化レコードを復元する。すべての関数は副作用を持たない。
package repair

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinford/cv-extract/internal/core/extraction/record"
)

// Strategy は復元に成功した手法
type Strategy string

const (
	// StrategyDirect は無加工でのパース
	StrategyDirect Strategy = "direct"
	// StrategyBalanced は括弧の釣り合った最大部分文字列の抽出
	StrategyBalanced Strategy = "balanced"
	// StrategyHeuristic は構文の補修（閉じ括弧の補完など）
	StrategyHeuristic Strategy = "heuristic"
	// StrategyConcatenation は継続応答の連結
	StrategyConcatenation Strategy = "concatenation"
)

const (
	// MaxDiagnosticChars は診断用に保持する生テキストの最大文字数
	MaxDiagnosticChars = 2000

	// maxBalancedStarts は部分文字列抽出で試す '{' の最大数
	maxBalancedStarts = 64

	// 継続応答が前回の末尾を繰り返したとみなす重なりの範囲
	minOverlap = 12
	maxOverlap = 4096
)

var (
	// ErrNoStructure はテキストに '{' が1つもない場合のエラー
	ErrNoStructure = errors.New("repair: no structure found")
)

// Result は復元結果
type Result struct {
	Record   *record.Record
	Strategy Strategy
	// Text は実際にパースできたテキスト
	Text string
}

// RepairError はすべての手法が失敗したことを表す。Raw は診断用に切り詰めた生テキスト。
type RepairError struct {
	Raw string
	Err error
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("structural repair failed: %v", e.Err)
}

func (e *RepairError) Unwrap() error {
	return e.Err
}

type attempt func(text string) (*record.Record, string, error)

// Repair は直接パース → 部分抽出 → 構文補修 の順に試し、最初に成功した結果を返す
func Repair(raw string) (Result, error) {
	return run(raw, []namedAttempt{
		{StrategyDirect, direct},
		{StrategyBalanced, balanced},
		{StrategyHeuristic, heuristic},
	})
}

// RepairWithContinuation は継続応答がある場合の復元。
// 途切れた原文への構文補修は末尾を捨てるため、連結による復元を先に試す。
func RepairWithContinuation(original string, continuations ...string) (Result, error) {
	if len(continuations) == 0 {
		return Repair(original)
	}
	concatenate := func(text string) (*record.Record, string, error) {
		combined := Splice(text, continuations...)
		var errs []error
		for _, fn := range []attempt{direct, balanced, heuristic} {
			rec, used, err := fn(combined)
			if err == nil {
				return rec, used, nil
			}
			errs = append(errs, err)
		}
		return nil, "", errors.Join(errs...)
	}
	return run(original, []namedAttempt{
		{StrategyDirect, direct},
		{StrategyBalanced, balanced},
		{StrategyConcatenation, concatenate},
		{StrategyHeuristic, heuristic},
	})
}

type namedAttempt struct {
	strategy Strategy
	fn       attempt
}

func run(raw string, attempts []namedAttempt) (Result, error) {
	var errs []error
	for _, a := range attempts {
		rec, used, err := a.fn(raw)
		if err == nil {
			return Result{Record: rec, Strategy: a.strategy, Text: used}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", a.strategy, err))
	}
	return Result{}, &RepairError{
		Raw: Truncate(raw, MaxDiagnosticChars),
		Err: errors.Join(errs...),
	}
}

// Parse は無加工でパースする。完全な応答かどうかの判定に使う。
func Parse(raw string) (*record.Record, error) {
	rec, _, err := direct(raw)
	return rec, err
}

func direct(raw string) (*record.Record, string, error) {
	text := strings.TrimSpace(raw)
	rec, err := record.Parse([]byte(text))
	return rec, text, err
}

func balanced(raw string) (*record.Record, string, error) {
	type span struct{ start, end int }
	var spans []span
	tries := 0
	for i := 0; i < len(raw) && tries < maxBalancedStarts; i++ {
		if raw[i] != '{' {
			continue
		}
		tries++
		if sc := scanPrefix(raw[i:]); sc.complete > 0 {
			spans = append(spans, span{i, i + sc.complete})
		}
	}
	if len(spans) == 0 {
		return nil, "", ErrNoStructure
	}

	sort.SliceStable(spans, func(a, b int) bool {
		return spans[a].end-spans[a].start > spans[b].end-spans[b].start
	})

	var lastErr error
	for _, sp := range spans {
		text := raw[sp.start:sp.end]
		rec, err := record.Parse([]byte(text))
		if err == nil {
			return rec, text, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func heuristic(raw string) (*record.Record, string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, "", ErrNoStructure
	}
	text := closeStructure(stripTrailingCommas(quoteBareKeys(raw[start:])))
	rec, err := record.Parse([]byte(text))
	return rec, text, err
}

// closeStructure は有効なプレフィックスまで切り詰め、未完の文字列と括弧を閉じる
func closeStructure(t string) string {
	sc := scanPrefix(t)
	if sc.complete > 0 {
		return t[:sc.complete]
	}
	if sc.inString && !sc.inKey {
		body := t[:sc.valid]
		if sc.escStart >= 0 {
			body = t[:sc.escStart]
		}
		return body + `"` + closers(sc.stack)
	}
	return strings.TrimRightFunc(t[:sc.safe], unicode.IsSpace) + closers(sc.stack)
}

// quoteBareKeys は引用符のないキー（name: のような形）を引用符で囲む
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString, escape := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		b.WriteByte(c)
		switch c {
		case '"':
			inString = true
		case '{', ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isIdentByte(s[k], k == j) {
				k++
			}
			m := k
			for m < len(s) && isSpace(s[m]) {
				m++
			}
			if k > j && m < len(s) && s[m] == ':' {
				b.WriteString(s[i+1 : j])
				b.WriteByte('"')
				b.WriteString(s[j:k])
				b.WriteByte('"')
				i = k - 1
			}
		}
	}
	return b.String()
}

// stripTrailingCommas は閉じ括弧の直前にあるカンマを取り除く
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escape := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// StructuralPrefix は最初の '{' から始まる、JSON として正しい最長のプレフィックスを返す。
// 文字列の途中で終わっていなければ末尾の空白も落とす。
func StructuralPrefix(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	t := raw[start:]
	sc := scanPrefix(t)
	if sc.complete > 0 {
		return t[:sc.complete]
	}
	prefix := t[:sc.valid]
	if !sc.inString {
		prefix = strings.TrimRightFunc(prefix, unicode.IsSpace)
	}
	return prefix
}

// Splice は原文を有効なプレフィックスで切り、継続応答を順に連結する。
// 継続応答が前回の末尾を繰り返している場合は重複部分を除く。
func Splice(original string, continuations ...string) string {
	combined := StructuralPrefix(original)
	for i, c := range continuations {
		if i > 0 {
			combined = StructuralPrefix(combined)
		}
		c = StripFences(c)
		combined += dropOverlap(combined, c)
	}
	return combined
}

func dropOverlap(prefix, cont string) string {
	limit := min(len(prefix), len(cont), maxOverlap)
	for k := limit; k >= minOverlap; k-- {
		if strings.HasSuffix(prefix, cont[:k]) {
			return cont[k:]
		}
	}
	return cont
}

// StripFences は ```json ... ``` で囲まれたテキストから囲みを取り除く。囲みがなければそのまま返す。
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimRightFunc(t, unicode.IsSpace)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimRightFunc(t, unicode.IsSpace)
}

// Truncate は maxLen 文字を超える文字列を切り詰める
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "...(truncated)"
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && (c >= '0' && c <= '9')
}

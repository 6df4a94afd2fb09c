package repair

import "regexp"

// 走査中に次に期待するトークン
type expectation int

const (
	expValue        expectation = iota // 値
	expFirstValue                      // '[' の直後: 値か ']'
	expFirstKey                        // '{' の直後: キーか '}'
	expKey                             // オブジェクト内の ',' の直後
	expColon                           // キーの直後
	expCommaOrClose                    // 値の直後
	expDone                            // トップレベルの値が閉じた
)

// prefixScan は JSON テキストを先頭から走査した結果
type prefixScan struct {
	// valid は構文的に正しい最長プレフィックスのバイト長
	valid int
	// complete はトップレベル値が閉じた位置。閉じていなければ -1
	complete int
	// safe は開いている括弧を閉じれば完結した値になる最後の位置
	safe int
	// stack は valid 時点で開いている括弧
	stack []byte
	// inString は valid 時点で文字列の途中かどうか
	inString bool
	// inKey は途中の文字列がキーかどうか
	inKey bool
	// escStart は未完のエスケープシーケンスの開始位置。なければ -1
	escStart int
}

var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// scanPrefix は s の先頭から JSON として正しい範囲を調べる。
// 途中で構文エラーに当たった場合はその直前までを有効範囲とする。
func scanPrefix(s string) prefixScan {
	sc := prefixScan{complete: -1, escStart: -1}
	state := expValue

	valueDone := func(pos int) {
		sc.safe = pos
		if len(sc.stack) == 0 {
			sc.complete = pos
			state = expDone
			return
		}
		state = expCommaOrClose
	}

	escape, hexLeft := false, 0

	i := 0
	for ; i < len(s); i++ {
		c := s[i]

		if sc.inString {
			switch {
			case hexLeft > 0:
				if !isHex(c) {
					sc.valid = i
					return sc
				}
				hexLeft--
				if hexLeft == 0 {
					sc.escStart = -1
				}
			case escape:
				escape = false
				switch c {
				case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
					sc.escStart = -1
				case 'u':
					hexLeft = 4
				default:
					sc.valid = i
					return sc
				}
			case c == '\\':
				escape = true
				sc.escStart = i
			case c == '"':
				sc.inString = false
				if sc.inKey {
					sc.inKey = false
					state = expColon
				} else {
					valueDone(i + 1)
				}
			case c < 0x20:
				sc.valid = i
				return sc
			}
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}

		switch state {
		case expValue, expFirstValue:
			switch {
			case c == ']' && state == expFirstValue:
				sc.stack = sc.stack[:len(sc.stack)-1]
				valueDone(i + 1)
			case c == '{':
				sc.stack = append(sc.stack, '{')
				sc.safe = i + 1
				state = expFirstKey
			case c == '[':
				sc.stack = append(sc.stack, '[')
				sc.safe = i + 1
				state = expFirstValue
			case c == '"':
				sc.inString = true
			case c == '-' || (c >= '0' && c <= '9'):
				j := i
				for j < len(s) && isNumberByte(s[j]) {
					j++
				}
				if numberPattern.MatchString(s[i:j]) {
					valueDone(j)
					i = j - 1
					continue
				}
				sc.valid = i
				if j == len(s) {
					// 数値の途中で途切れている
					sc.valid = len(s)
				}
				return sc
			case c == 't' || c == 'f' || c == 'n':
				lit := literalFor(c)
				end := i + len(lit)
				if end <= len(s) && s[i:end] == lit {
					valueDone(end)
					i = end - 1
					continue
				}
				if end > len(s) && lit[:len(s)-i] == s[i:] {
					sc.valid = len(s)
					return sc
				}
				sc.valid = i
				return sc
			default:
				sc.valid = i
				return sc
			}
		case expFirstKey, expKey:
			switch {
			case c == '"':
				sc.inString = true
				sc.inKey = true
			case c == '}' && state == expFirstKey:
				sc.stack = sc.stack[:len(sc.stack)-1]
				valueDone(i + 1)
			default:
				sc.valid = i
				return sc
			}
		case expColon:
			if c != ':' {
				sc.valid = i
				return sc
			}
			state = expValue
		case expCommaOrClose:
			top := sc.stack[len(sc.stack)-1]
			switch {
			case c == ',' && top == '{':
				state = expKey
			case c == ',' && top == '[':
				state = expValue
			case (c == '}' && top == '{') || (c == ']' && top == '['):
				sc.stack = sc.stack[:len(sc.stack)-1]
				valueDone(i + 1)
			default:
				sc.valid = i
				return sc
			}
		case expDone:
			sc.valid = i
			return sc
		}
	}

	sc.valid = len(s)
	return sc
}

// closers は開いている括弧を閉じる文字列を返す
func closers(stack []byte) string {
	out := make([]byte, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return string(out)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func literalFor(c byte) string {
	switch c {
	case 't':
		return "true"
	case 'f':
		return "false"
	default:
		return "null"
	}
}

// IsIncomplete は最初の '{' から数えて括弧が閉じきっていない、または文字列が閉じていない場合に true を返す。
// 構文の誤りには寛容で、末尾カンマのような崩れは途切れとはみなさない。
func IsIncomplete(raw string) bool {
	start := -1
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}

	depth := 0
	inString, escape := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
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
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return false
			}
		}
	}
	return depth > 0 || inString
}

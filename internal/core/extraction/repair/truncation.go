package repair

import (
	"regexp"
	"strings"
)

// DefaultMarkers は途切れた応答に含まれているべきキー
var DefaultMarkers = []string{"personal_information", "first_name", "last_name"}

// DefaultThreshold は継続に値すると判断するために必要なマーカー数
const DefaultThreshold = 2

// Detector は途切れた応答が継続に値する構造を持つかを判定する。
// パーサではなくヒューリスティックで、閾値とマーカーは対象スキーマに合わせて調整する。
type Detector struct {
	patterns  []*regexp.Regexp
	threshold int
}

// NewDetector は JSON キーとして現れるマーカーを数える Detector を作成する
func NewDetector(markers []string, threshold int) *Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	patterns := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		patterns = append(patterns, regexp.MustCompile(`"`+regexp.QuoteMeta(m)+`"\s*:`))
	}
	return &Detector{patterns: patterns, threshold: min(threshold, len(patterns))}
}

// HasSalvageableStructure は '{' を含み、かつ閾値以上のマーカーがキーとして現れる場合に true を返す
func (d *Detector) HasSalvageableStructure(raw string) bool {
	if !strings.Contains(raw, "{") {
		return false
	}
	return d.MarkerCount(raw) >= d.threshold
}

// MarkerCount はキーとして現れたマーカーの数を返す
func (d *Detector) MarkerCount(raw string) int {
	found := 0
	for _, p := range d.patterns {
		if p.MatchString(raw) {
			found++
		}
	}
	return found
}

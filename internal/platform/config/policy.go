package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jinford/cv-extract/internal/core/extraction"
	"gopkg.in/yaml.v3"
)

// Policy はデフォルトの抽出ポリシーに環境変数とポリシーファイルを重ねて返します。
// 優先順位は ポリシーファイル > 環境変数 > デフォルト。
func (c *Config) Policy() (extraction.Policy, error) {
	p := extraction.DefaultPolicy()

	if len(c.LLM.Models) > 0 {
		p = p.WithModels(c.LLM.Models)
	}
	p.Temperature = c.LLM.Temperature
	if c.LLM.CallTimeout > 0 {
		p.CallTimeout = c.LLM.CallTimeout
	}

	e := c.Extraction
	overrideInt(&p.MaxChunkChars, e.MaxChunkChars)
	overrideInt(&p.OverlapChars, e.OverlapChars)
	overrideInt(&p.MaxChunks, e.MaxChunks)
	overrideInt(&p.ContinuationTailChars, e.ContinuationTailChars)
	overrideInt(&p.ContinuationMaxTokens, e.ContinuationMaxTokens)
	overrideInt(&p.MaxContinuations, e.MaxContinuations)
	overrideInt(&p.Truncation.Threshold, e.TruncationThreshold)

	if e.PolicyFile != "" {
		var err error
		p, err = LoadPolicyFile(e.PolicyFile, p)
		if err != nil {
			return extraction.Policy{}, err
		}
	}

	if err := p.Validate(); err != nil {
		return extraction.Policy{}, fmt.Errorf("invalid extraction policy: %w", err)
	}
	return p, nil
}

// LoadPolicyFile は YAML のポリシーファイルを base に重ねて返します
func LoadPolicyFile(path string, base extraction.Policy) (extraction.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extraction.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	p, err := DecodePolicy(bytes.NewReader(data), base)
	if err != nil {
		return extraction.Policy{}, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return p, nil
}

// DecodePolicy は YAML を base に重ねて返します。
// 記述のない項目は base の値を保ち、budget.models は base のモデル表に追加・上書きされます。
func DecodePolicy(r io.Reader, base extraction.Policy) (extraction.Policy, error) {
	p := base.Clone()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return extraction.Policy{}, err
	}
	return p, nil
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrNotObject はトップレベルがオブジェクトでない場合のエラー
	ErrNotObject = errors.New("record: top-level value is not an object")

	// ErrNoSections は既知のセクションを1つも含まない場合のエラー
	ErrNoSections = errors.New("record: no known section found")

	// ErrSchemaMismatch はセクションの形が宣言と一致しない場合のエラー
	ErrSchemaMismatch = errors.New("record: json does not match schema")
)

// BuildJSONSchema はレコード形状を表す JSON Schema を返す。
// LLM の出力揺れを許容するため、スカラーは文字列・数値・真偽値・null のいずれも受け入れ、
// 未知のキーは無視する。検証するのはセクションの形（オブジェクトかリストか）のみ。
func BuildJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"personal_information": objectProp(map[string]any{
				"first_name":       scalarProp(),
				"middle_name":      scalarProp(),
				"last_name":        scalarProp(),
				"emails":           textListProp(),
				"birth_date":       scalarProp(),
				"gender":           scalarProp(),
				"civil_status":     scalarProp(),
				"alias":            textListProp(),
				"phones":           listProp(objectProp(fields("type", "number"))),
				"address":          objectProp(fields("street", "barangay", "city", "state", "postal_code", "country")),
				"desired_location": objectProp(fields("city", "state", "country")),
				"work_preference":  objectProp(fields("open_to_work_from_home", "open_to_onsite")),
				"social_urls":      listProp(objectProp(fields("platform", "url"))),
			}),
			"professional_summary": scalarProp(),
			"work_experience": listProp(objectProp(merge(
				fields("job_title", "company_name", "location", "start_date", "end_date"),
				map[string]any{"responsibilities": textListProp()},
			))),
			"it_system_used": listProp(objectProp(fields("abbreviation", "name_of_system"))),
			"education": listProp(objectProp(fields(
				"degree", "institution", "location", "start_date", "end_date", "gpa", "honors",
			))),
			"skills": objectProp(map[string]any{
				"technical_skills":   textListProp(),
				"soft_skills":        textListProp(),
				"computer_languages": listProp(objectProp(fields("language", "proficiency"))),
			}),
			"certifications": listProp(objectProp(fields(
				"name", "issuing_organization", "issue_date", "expiration_date", "credential_id",
			))),
			"projects": listProp(objectProp(merge(
				fields("title", "description", "start_date", "end_date", "project_url"),
				map[string]any{"technologies_used": textListProp()},
			))),
			"awards_and_honors": listProp(objectProp(fields("title", "issuer", "date_received", "description"))),
			"volunteer_experience": listProp(objectProp(fields(
				"role", "organization", "location", "start_date", "end_date", "description",
			))),
			"interests":              textListProp(),
			"references":             listProp(objectProp(fields("name", "relationship", "email", "phone"))),
			"additional_information": scalarProp(),
		},
	}
}

func scalarProp() map[string]any {
	return map[string]any{"type": []string{"string", "number", "boolean", "null"}}
}

func textListProp() map[string]any {
	return map[string]any{
		"type":  []string{"array", "string", "null"},
		"items": scalarProp(),
	}
}

func objectProp(props map[string]any) map[string]any {
	return map[string]any{
		"type":       []string{"object", "null"},
		"properties": props,
	}
}

func listProp(items map[string]any) map[string]any {
	return map[string]any{
		"type":  []string{"array", "null"},
		"items": items,
	}
}

func fields(names ...string) map[string]any {
	props := make(map[string]any, len(names))
	for _, n := range names {
		props[n] = scalarProp()
	}
	return props
}

func merge(a, b map[string]any) map[string]any {
	for k, v := range b {
		a[k] = v
	}
	return a
}

// Validator はコンパイル済みスキーマでレコード JSON を検証・デコードする
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator はレコードスキーマをコンパイルする
func NewValidator() (*Validator, error) {
	b, err := json.Marshal(BuildJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

var defaultValidator = sync.OnceValues(NewValidator)

// Parse は既定の Validator で JSON テキストをレコードに変換する
func Parse(data []byte) (*Record, error) {
	v, err := defaultValidator()
	if err != nil {
		return nil, err
	}
	return v.Parse(data)
}

// Parse は JSON をスキーマ検証してから Record にデコードし、正規化して返す。
// 既知のセクションを1つも持たないオブジェクトはレコードとみなさない。
func (v *Validator) Parse(data []byte) (*Record, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	known := false
	for k := range obj {
		if IsSection(k) {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrNoSections
	}

	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec.Normalize()
	return &rec, nil
}

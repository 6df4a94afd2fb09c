package extraction

import (
	"fmt"
	"strings"

	"github.com/jinford/cv-extract/internal/core/extraction/repair"
)

// Prompt はモデルに送るプロンプト一式
type Prompt struct {
	System string
	User   string
	Format ResponseFormat
}

// Text は見積もり用にシステムプロンプトと本文を連結して返します
func (p Prompt) Text() string {
	return p.System + "\n" + p.User
}

const extractionSystemPrompt = "You are a CV parsing assistant. You convert CV documents into structured JSON. " +
	"You answer with a single JSON object and nothing else."

const continuationSystemPrompt = "You are a CV parsing assistant. Continue the JSON response exactly where it was cut off. " +
	"Do not repeat content, just continue the structure."

const recordTemplate = `{
  "personal_information": {
    "first_name": "string",
    "middle_name": "string",
    "last_name": "string",
    "emails": ["string"],
    "birth_date": "YYYY-MM-DD",
    "gender": "string",
    "civil_status": "string",
    "alias": ["string"],
    "phones": [{"type": "string", "number": "string"}],
    "address": {"street": "string", "barangay": "string", "city": "string", "state": "string", "postal_code": "string", "country": "string"},
    "desired_location": {"city": "string", "state": "string", "country": "string"},
    "work_preference": {"open_to_work_from_home": boolean, "open_to_onsite": boolean},
    "social_urls": [{"platform": "string", "url": "string"}]
  },
  "professional_summary": "string",
  "work_experience": [
    {"job_title": "string", "company_name": "string", "location": "string", "start_date": "YYYY-MM", "end_date": "YYYY-MM or Present", "responsibilities": ["string"]}
  ],
  "it_system_used": [{"abbreviation": "string", "name_of_system": "string"}],
  "education": [
    {"degree": "string", "institution": "string", "location": "string", "start_date": "YYYY-MM", "end_date": "YYYY-MM", "gpa": "string (optional)", "honors": "string (optional)"}
  ],
  "skills": {
    "technical_skills": ["string"],
    "soft_skills": ["string"],
    "computer_languages": [{"language": "string", "proficiency": "string"}]
  },
  "certifications": [
    {"name": "string", "issuing_organization": "string", "issue_date": "YYYY-MM", "expiration_date": "YYYY-MM (optional)", "credential_id": "string (optional)"}
  ],
  "projects": [
    {"title": "string", "description": "string", "technologies_used": ["string"], "start_date": "YYYY-MM", "end_date": "YYYY-MM or Present", "project_url": "string (optional)"}
  ],
  "awards_and_honors": [{"title": "string", "issuer": "string", "date_received": "YYYY-MM", "description": "string"}],
  "volunteer_experience": [
    {"role": "string", "organization": "string", "location": "string", "start_date": "YYYY-MM", "end_date": "YYYY-MM or Present", "description": "string"}
  ],
  "interests": ["string"],
  "references": [{"name": "string", "relationship": "string", "email": "string", "phone": "string"}],
  "additional_information": "string (optional, for any extra details not fitting the above structure)"
}`

const extractionRules = `CRITICAL REQUIREMENTS:
1. The output MUST follow this EXACT JSON structure. Do not change field names or structure.
2. REQUIRED fields: "first_name" and "last_name" in the personal_information section.
3. If a field is not available, use null or an empty string.
4. Use arrays for multiple items (skills, experiences, ...).
5. Dates use YYYY-MM for months and YYYY-MM-DD for specific dates. "end_date" may be "Present".
6. Use true/false for boolean values.
7. All object keys MUST be quoted with double quotes.
8. Be concise. Prefer the most important information if space is limited.
9. Work experience is in reverse chronological order.
10. Your response MUST be ONLY the JSON object: no markdown, no explanations, no additional text.`

// longDocumentChars を超える文書には網羅的に抽出するよう指示を加える
const longDocumentChars = 20000

// BuildExtractionPrompt はチャンクの抽出プロンプトを作成します。index は0始まり。
func BuildExtractionPrompt(fileName, text string, index, total int) Prompt {
	var b strings.Builder
	b.WriteString("Please analyze the following CV document and extract detailed information into a structured JSON format.\n")
	if total > 1 {
		fmt.Fprintf(&b, "This is part %d of %d of the document. Extract only the information that appears in this part; "+
			"omit sections that do not appear in it.\n", index+1, total)
	} else if len([]rune(text)) > longDocumentChars {
		b.WriteString("This is a long CV document. Capture ALL sections and details present while keeping accuracy.\n")
	}
	fmt.Fprintf(&b, "\nDocument: %s\n\nCV Content:\n%s\n\n", fileName, text)
	b.WriteString("IMPORTANT: You MUST output the CV data in EXACTLY this JSON format.\n\n")
	b.WriteString(recordTemplate)
	b.WriteString("\n\n")
	b.WriteString(extractionRules)

	return Prompt{
		System: extractionSystemPrompt,
		User:   b.String(),
		Format: ResponseFormatJSON,
	}
}

// BuildContinuationPrompt は途切れた応答の続きを求めるプロンプトを作成します。
// 応答の構造的に正しい部分の末尾 tailChars 文字をそのまま引用します。
func BuildContinuationPrompt(truncated string, tailChars int) Prompt {
	tail := []rune(repair.StructuralPrefix(truncated))
	if len(tail) > tailChars {
		tail = tail[len(tail)-tailChars:]
	}

	var b strings.Builder
	b.WriteString("Your previous response was truncated. Continue it from exactly where it stopped.\n\n")
	b.WriteString("The response follows this JSON shape:\n")
	b.WriteString(recordTemplate)
	b.WriteString("\n\nThe previous response ended with:\n<<<\n")
	b.WriteString(string(tail))
	b.WriteString("\n>>>\n\n")
	b.WriteString(`IMPORTANT:
1. Resume exactly after the last character shown above. Output only the remaining text.
2. Do NOT repeat any content that was already emitted.
3. Do NOT open a new root object or array.
4. Close every open string, array and object so the combined text is valid JSON, ending with the final }.
5. Output JSON text only: no markdown, no explanations.

Continue the JSON response:`)

	return Prompt{
		System: continuationSystemPrompt,
		User:   b.String(),
		Format: ResponseFormatText,
	}
}

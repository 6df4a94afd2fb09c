package testing

import (
	"fmt"
	"strings"
)

// CompleteResponse はそのままパースできる応答
const CompleteResponse = `{
  "personal_information": {"first_name": "Maria", "last_name": "Santos", "emails": ["maria@example.com"]},
  "professional_summary": "Backend engineer with eight years of experience.",
  "work_experience": [
    {"job_title": "Senior Engineer", "company_name": "Acme", "start_date": "2019-01", "end_date": "Present",
     "responsibilities": ["Built the billing system"]}
  ],
  "skills": {"technical_skills": ["Go", "PostgreSQL"]}
}`

// TruncatedResponse は personal_information と first_name を含み、リストの途中で途切れた応答
const TruncatedResponse = `{"personal_information": {"first_name": "Maria", "emails": ["maria@example.com"]}, ` +
	`"work_experience": [{"job_title": "Senior Engineer", "company_name": "Acme", "start_date": "2019-01", ` +
	`"end_date": "Present", "responsibilities": ["Built the billing sys`

// ContinuationText は TruncatedResponse の続き
const ContinuationText = `tem", "Led the migration"]}], "education": [{"degree": "BSc Computer Science", "institution": "State University"}]}`

// RefusalResponse は構造を含まない応答
const RefusalResponse = "I'm sorry, but I can't help with extracting personal information from this document."

// CVText は lines 行の履歴書風テキストを生成します
func CVText(lines int) string {
	var b strings.Builder
	b.WriteString("MARIA SANTOS\nmaria@example.com\n\nWORK EXPERIENCE\n")
	for i := range lines {
		fmt.Fprintf(&b, "- Delivered project %04d for the payments platform team\n", i)
	}
	return b.String()
}

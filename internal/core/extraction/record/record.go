// Package record は抽出対象の構造化レコード（履歴書レコード）の型と、
// チャンク単位の結果を1件にまとめるマージ規則を定義する。
package record

import (
	"encoding/json"
	"strings"
)

// Section はレコードのトップレベルセクション名
type Section string

const (
	SectionPersonalInformation   Section = "personal_information"
	SectionProfessionalSummary   Section = "professional_summary"
	SectionWorkExperience        Section = "work_experience"
	SectionITSystemUsed          Section = "it_system_used"
	SectionEducation             Section = "education"
	SectionSkills                Section = "skills"
	SectionCertifications        Section = "certifications"
	SectionProjects              Section = "projects"
	SectionAwardsAndHonors       Section = "awards_and_honors"
	SectionVolunteerExperience   Section = "volunteer_experience"
	SectionInterests             Section = "interests"
	SectionReferences            Section = "references"
	SectionAdditionalInformation Section = "additional_information"
)

// Sections は宣言済みセクションの一覧（出力順）
var Sections = []Section{
	SectionPersonalInformation,
	SectionProfessionalSummary,
	SectionWorkExperience,
	SectionITSystemUsed,
	SectionEducation,
	SectionSkills,
	SectionCertifications,
	SectionProjects,
	SectionAwardsAndHonors,
	SectionVolunteerExperience,
	SectionInterests,
	SectionReferences,
	SectionAdditionalInformation,
}

// IsSection は名前が宣言済みセクションかどうかを返す
func IsSection(name string) bool {
	for _, s := range Sections {
		if string(s) == name {
			return true
		}
	}
	return false
}

// Record は1文書から抽出された構造化レコード。各セクションは独立して省略可能。
type Record struct {
	PersonalInformation   PersonalInformation `json:"personal_information,omitzero"`
	ProfessionalSummary   Text                `json:"professional_summary,omitempty"`
	WorkExperience        []WorkExperience    `json:"work_experience,omitempty"`
	ITSystemUsed          []ITSystem          `json:"it_system_used,omitempty"`
	Education             []Education         `json:"education,omitempty"`
	Skills                Skills              `json:"skills,omitzero"`
	Certifications        []Certification     `json:"certifications,omitempty"`
	Projects              []Project           `json:"projects,omitempty"`
	AwardsAndHonors       []Award             `json:"awards_and_honors,omitempty"`
	VolunteerExperience   []Volunteer         `json:"volunteer_experience,omitempty"`
	Interests             TextList            `json:"interests,omitempty"`
	References            []Reference         `json:"references,omitempty"`
	AdditionalInformation Text                `json:"additional_information,omitempty"`
}

// PersonalInformation は本人情報ブロック
type PersonalInformation struct {
	FirstName       Text           `json:"first_name,omitempty"`
	MiddleName      Text           `json:"middle_name,omitempty"`
	LastName        Text           `json:"last_name,omitempty"`
	Emails          TextList       `json:"emails,omitempty"`
	BirthDate       Text           `json:"birth_date,omitempty"`
	Gender          Text           `json:"gender,omitempty"`
	CivilStatus     Text           `json:"civil_status,omitempty"`
	Alias           TextList       `json:"alias,omitempty"`
	Phones          []Phone        `json:"phones,omitempty"`
	Address         Address        `json:"address,omitzero"`
	DesiredLocation Location       `json:"desired_location,omitzero"`
	WorkPreference  WorkPreference `json:"work_preference,omitzero"`
	SocialURLs      []SocialURL    `json:"social_urls,omitempty"`
}

type Phone struct {
	Type   Text `json:"type,omitempty"`
	Number Text `json:"number,omitempty"`
}

type Address struct {
	Street     Text `json:"street,omitempty"`
	Barangay   Text `json:"barangay,omitempty"`
	City       Text `json:"city,omitempty"`
	State      Text `json:"state,omitempty"`
	PostalCode Text `json:"postal_code,omitempty"`
	Country    Text `json:"country,omitempty"`
}

type Location struct {
	City    Text `json:"city,omitempty"`
	State   Text `json:"state,omitempty"`
	Country Text `json:"country,omitempty"`
}

type WorkPreference struct {
	OpenToWorkFromHome Flag `json:"open_to_work_from_home,omitempty"`
	OpenToOnsite       Flag `json:"open_to_onsite,omitempty"`
}

type SocialURL struct {
	Platform Text `json:"platform,omitempty"`
	URL      Text `json:"url,omitempty"`
}

type WorkExperience struct {
	JobTitle         Text     `json:"job_title,omitempty"`
	CompanyName      Text     `json:"company_name,omitempty"`
	Location         Text     `json:"location,omitempty"`
	StartDate        Text     `json:"start_date,omitempty"`
	EndDate          Text     `json:"end_date,omitempty"`
	Responsibilities TextList `json:"responsibilities,omitempty"`
}

type ITSystem struct {
	Abbreviation Text `json:"abbreviation,omitempty"`
	NameOfSystem Text `json:"name_of_system,omitempty"`
}

type Education struct {
	Degree      Text `json:"degree,omitempty"`
	Institution Text `json:"institution,omitempty"`
	Location    Text `json:"location,omitempty"`
	StartDate   Text `json:"start_date,omitempty"`
	EndDate     Text `json:"end_date,omitempty"`
	GPA         Text `json:"gpa,omitempty"`
	Honors      Text `json:"honors,omitempty"`
}

// Skills は複数のリストを持つ複合セクション
type Skills struct {
	TechnicalSkills   TextList        `json:"technical_skills,omitempty"`
	SoftSkills        TextList        `json:"soft_skills,omitempty"`
	ComputerLanguages []LanguageSkill `json:"computer_languages,omitempty"`
}

type LanguageSkill struct {
	Language    Text `json:"language,omitempty"`
	Proficiency Text `json:"proficiency,omitempty"`
}

type Certification struct {
	Name                Text `json:"name,omitempty"`
	IssuingOrganization Text `json:"issuing_organization,omitempty"`
	IssueDate           Text `json:"issue_date,omitempty"`
	ExpirationDate      Text `json:"expiration_date,omitempty"`
	CredentialID        Text `json:"credential_id,omitempty"`
}

type Project struct {
	Title            Text     `json:"title,omitempty"`
	Description      Text     `json:"description,omitempty"`
	TechnologiesUsed TextList `json:"technologies_used,omitempty"`
	StartDate        Text     `json:"start_date,omitempty"`
	EndDate          Text     `json:"end_date,omitempty"`
	ProjectURL       Text     `json:"project_url,omitempty"`
}

type Award struct {
	Title        Text `json:"title,omitempty"`
	Issuer       Text `json:"issuer,omitempty"`
	DateReceived Text `json:"date_received,omitempty"`
	Description  Text `json:"description,omitempty"`
}

type Volunteer struct {
	Role         Text `json:"role,omitempty"`
	Organization Text `json:"organization,omitempty"`
	Location     Text `json:"location,omitempty"`
	StartDate    Text `json:"start_date,omitempty"`
	EndDate      Text `json:"end_date,omitempty"`
	Description  Text `json:"description,omitempty"`
}

type Reference struct {
	Name         Text `json:"name,omitempty"`
	Relationship Text `json:"relationship,omitempty"`
	Email        Text `json:"email,omitempty"`
	Phone        Text `json:"phone,omitempty"`
}

// IsEmpty はどのセクションにも値がないかを返す
func (r *Record) IsEmpty() bool {
	if r == nil {
		return true
	}
	n := *r
	n.Normalize()
	b, err := json.Marshal(n)
	return err == nil && string(b) == "{}"
}

// Warnings は必須とみなす項目の欠落を返す。抽出自体は失敗させない。
func (r *Record) Warnings() []string {
	var warnings []string
	if r.PersonalInformation.FirstName == "" {
		warnings = append(warnings, "personal_information.first_name is missing")
	}
	if r.PersonalInformation.LastName == "" {
		warnings = append(warnings, "personal_information.last_name is missing")
	}
	return warnings
}

// FullName は表示用の氏名を返す
func (r *Record) FullName() string {
	p := r.PersonalInformation
	parts := make([]string, 0, 3)
	for _, s := range []Text{p.FirstName, p.MiddleName, p.LastName} {
		if s != "" {
			parts = append(parts, string(s))
		}
	}
	return strings.Join(parts, " ")
}

package record

import (
	"encoding/json"
	"regexp"
	"strings"
)

// keyed はマージ時に重複判定できるリスト要素
type keyed[T any] interface {
	key() string
	absorb(dup T) T
}

// Merge はチャンク順に並んだ結果を1件のレコードにまとめる。nil は失敗チャンクとして読み飛ばす。
//
// スカラー項目は先に値を持っていたチャンクが勝つ（順序依存）。
// リスト項目はチャンク順に連結したのち、要素型ごとの等価規則で重複を1件にまとめる。
// どの順序で渡しても残る要素の集合は変わらない。
func Merge(records ...*Record) *Record {
	merged := &Record{}
	for _, r := range records {
		if r == nil {
			continue
		}
		src := *r
		src.Normalize()

		merged.PersonalInformation = mergePersonal(merged.PersonalInformation, src.PersonalInformation)
		merged.ProfessionalSummary = firstText(merged.ProfessionalSummary, src.ProfessionalSummary)
		merged.AdditionalInformation = firstText(merged.AdditionalInformation, src.AdditionalInformation)

		merged.WorkExperience = append(merged.WorkExperience, src.WorkExperience...)
		merged.ITSystemUsed = append(merged.ITSystemUsed, src.ITSystemUsed...)
		merged.Education = append(merged.Education, src.Education...)
		merged.Certifications = append(merged.Certifications, src.Certifications...)
		merged.Projects = append(merged.Projects, src.Projects...)
		merged.AwardsAndHonors = append(merged.AwardsAndHonors, src.AwardsAndHonors...)
		merged.VolunteerExperience = append(merged.VolunteerExperience, src.VolunteerExperience...)
		merged.References = append(merged.References, src.References...)
		merged.Interests = append(merged.Interests, src.Interests...)

		merged.Skills.TechnicalSkills = append(merged.Skills.TechnicalSkills, src.Skills.TechnicalSkills...)
		merged.Skills.SoftSkills = append(merged.Skills.SoftSkills, src.Skills.SoftSkills...)
		merged.Skills.ComputerLanguages = append(merged.Skills.ComputerLanguages, src.Skills.ComputerLanguages...)
	}

	merged.WorkExperience = dedupe(merged.WorkExperience)
	merged.ITSystemUsed = dedupe(merged.ITSystemUsed)
	merged.Education = dedupe(merged.Education)
	merged.Certifications = dedupe(merged.Certifications)
	merged.Projects = dedupe(merged.Projects)
	merged.AwardsAndHonors = dedupe(merged.AwardsAndHonors)
	merged.VolunteerExperience = dedupe(merged.VolunteerExperience)
	merged.References = dedupe(merged.References)
	merged.Interests = unionText(merged.Interests)
	merged.Skills.TechnicalSkills = unionText(merged.Skills.TechnicalSkills)
	merged.Skills.SoftSkills = unionText(merged.Skills.SoftSkills)
	merged.Skills.ComputerLanguages = dedupe(merged.Skills.ComputerLanguages)

	return merged
}

// dedupe は最初の出現位置を保ったまま重複要素をまとめる
func dedupe[T keyed[T]](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	index := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := item.key()
		if i, ok := index[k]; ok {
			out[i] = out[i].absorb(item)
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out
}

// unionText は正規化した文字列で重複を除く（最初の表記を残す）
func unionText(items TextList) TextList {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	var out TextList
	for _, s := range items {
		k := fold(s)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func firstText(current, candidate Text) Text {
	if current != "" {
		return current
	}
	return candidate
}

func mergePersonal(a, b PersonalInformation) PersonalInformation {
	out := PersonalInformation{
		FirstName:   firstText(a.FirstName, b.FirstName),
		MiddleName:  firstText(a.MiddleName, b.MiddleName),
		LastName:    firstText(a.LastName, b.LastName),
		Emails:      unionText(append(append(TextList{}, a.Emails...), b.Emails...)),
		BirthDate:   firstText(a.BirthDate, b.BirthDate),
		Gender:      firstText(a.Gender, b.Gender),
		CivilStatus: firstText(a.CivilStatus, b.CivilStatus),
		Alias:       unionText(append(append(TextList{}, a.Alias...), b.Alias...)),
		Phones:      dedupe(append(append([]Phone{}, a.Phones...), b.Phones...)),
		SocialURLs:  dedupe(append(append([]SocialURL{}, a.SocialURLs...), b.SocialURLs...)),
	}

	// 住所などのまとまりは項目単位で混ぜず、最初に現れたものをそのまま採用する
	out.Address = a.Address
	if out.Address.empty() {
		out.Address = b.Address
	}
	out.DesiredLocation = a.DesiredLocation
	if out.DesiredLocation.empty() {
		out.DesiredLocation = b.DesiredLocation
	}
	out.WorkPreference = a.WorkPreference
	if out.WorkPreference.empty() {
		out.WorkPreference = b.WorkPreference
	}
	return out
}

// joinKey は比較用キーを組み立てる。すべての項目が空なら要素全体で比較する。
func joinKey(whole any, parts ...string) string {
	allEmpty := true
	for _, p := range parts {
		if p != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		b, _ := json.Marshal(whole)
		return "raw:" + string(b)
	}
	return strings.Join(parts, "\x1f")
}

func fill(current, candidate Text) Text {
	if current == "" {
		return candidate
	}
	return current
}

func (w WorkExperience) key() string {
	return joinKey(w, fold(string(w.JobTitle)), fold(string(w.CompanyName)), foldDate(w.StartDate), foldDate(w.EndDate))
}

func (w WorkExperience) absorb(dup WorkExperience) WorkExperience {
	w.Location = fill(w.Location, dup.Location)
	w.Responsibilities = unionText(append(append(TextList{}, w.Responsibilities...), dup.Responsibilities...))
	return w
}

func (s ITSystem) key() string {
	return joinKey(s, fold(string(s.Abbreviation)), fold(string(s.NameOfSystem)))
}

func (s ITSystem) absorb(ITSystem) ITSystem { return s }

func (e Education) key() string {
	return joinKey(e, fold(string(e.Degree)), fold(string(e.Institution)), foldDate(e.StartDate), foldDate(e.EndDate))
}

func (e Education) absorb(dup Education) Education {
	e.Location = fill(e.Location, dup.Location)
	e.GPA = fill(e.GPA, dup.GPA)
	e.Honors = fill(e.Honors, dup.Honors)
	return e
}

func (c Certification) key() string {
	return joinKey(c, fold(string(c.Name)), fold(string(c.IssuingOrganization)), foldDate(c.IssueDate))
}

func (c Certification) absorb(dup Certification) Certification {
	c.ExpirationDate = fill(c.ExpirationDate, dup.ExpirationDate)
	c.CredentialID = fill(c.CredentialID, dup.CredentialID)
	return c
}

func (p Project) key() string {
	return joinKey(p, fold(string(p.Title)), foldDate(p.StartDate))
}

func (p Project) absorb(dup Project) Project {
	p.Description = fill(p.Description, dup.Description)
	p.EndDate = fill(p.EndDate, dup.EndDate)
	p.ProjectURL = fill(p.ProjectURL, dup.ProjectURL)
	p.TechnologiesUsed = unionText(append(append(TextList{}, p.TechnologiesUsed...), dup.TechnologiesUsed...))
	return p
}

func (a Award) key() string {
	return joinKey(a, fold(string(a.Title)), fold(string(a.Issuer)), foldDate(a.DateReceived))
}

func (a Award) absorb(dup Award) Award {
	a.Description = fill(a.Description, dup.Description)
	return a
}

func (v Volunteer) key() string {
	return joinKey(v, fold(string(v.Role)), fold(string(v.Organization)), foldDate(v.StartDate), foldDate(v.EndDate))
}

func (v Volunteer) absorb(dup Volunteer) Volunteer {
	v.Location = fill(v.Location, dup.Location)
	v.Description = fill(v.Description, dup.Description)
	return v
}

func (r Reference) key() string {
	return joinKey(r, fold(string(r.Name)), fold(string(r.Email)), digits(string(r.Phone)))
}

func (r Reference) absorb(dup Reference) Reference {
	r.Relationship = fill(r.Relationship, dup.Relationship)
	return r
}

func (l LanguageSkill) key() string {
	return fold(string(l.Language))
}

func (l LanguageSkill) absorb(dup LanguageSkill) LanguageSkill {
	l.Proficiency = fill(l.Proficiency, dup.Proficiency)
	return l
}

func (p Phone) key() string {
	return digits(string(p.Number))
}

func (p Phone) absorb(dup Phone) Phone {
	p.Type = fill(p.Type, dup.Type)
	return p
}

func (s SocialURL) key() string {
	u := fold(string(s.URL))
	u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimSuffix(u, "/")
}

func (s SocialURL) absorb(dup SocialURL) SocialURL {
	s.Platform = fill(s.Platform, dup.Platform)
	return s
}

var nonDigit = regexp.MustCompile(`\D`)

func digits(s string) string {
	d := nonDigit.ReplaceAllString(s, "")
	if d == "" {
		return fold(s)
	}
	return d
}

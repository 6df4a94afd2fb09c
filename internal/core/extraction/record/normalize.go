package record

// entry はリストセクションの要素が満たすべき振る舞い
type entry[T any] interface {
	normalized() T
	empty() bool
}

// compact は各要素を正規化し、空になった要素を取り除く。結果が空なら nil を返す。
func compact[T entry[T]](items []T) []T {
	var out []T
	for _, item := range items {
		n := item.normalized()
		if !n.empty() {
			out = append(out, n)
		}
	}
	return out
}

// Normalize は文字列の前後空白を除去し、空要素・空リストを取り除く。
// 修復結果とその再シリアライズ結果を同一視できるように、デコード直後に必ず適用する。
func (r *Record) Normalize() {
	r.PersonalInformation = r.PersonalInformation.normalized()
	r.ProfessionalSummary = normText(r.ProfessionalSummary)
	r.WorkExperience = compact(r.WorkExperience)
	r.ITSystemUsed = compact(r.ITSystemUsed)
	r.Education = compact(r.Education)
	r.Skills = r.Skills.normalized()
	r.Certifications = compact(r.Certifications)
	r.Projects = compact(r.Projects)
	r.AwardsAndHonors = compact(r.AwardsAndHonors)
	r.VolunteerExperience = compact(r.VolunteerExperience)
	r.Interests = normList(r.Interests)
	r.References = compact(r.References)
	r.AdditionalInformation = normText(r.AdditionalInformation)
}

func (p PersonalInformation) normalized() PersonalInformation {
	return PersonalInformation{
		FirstName:       normText(p.FirstName),
		MiddleName:      normText(p.MiddleName),
		LastName:        normText(p.LastName),
		Emails:          normList(p.Emails),
		BirthDate:       normText(p.BirthDate),
		Gender:          normText(p.Gender),
		CivilStatus:     normText(p.CivilStatus),
		Alias:           normList(p.Alias),
		Phones:          compact(p.Phones),
		Address:         p.Address.normalized(),
		DesiredLocation: p.DesiredLocation.normalized(),
		WorkPreference:  p.WorkPreference,
		SocialURLs:      compact(p.SocialURLs),
	}
}

func (p Phone) normalized() Phone {
	return Phone{Type: normText(p.Type), Number: normText(p.Number)}
}

func (p Phone) empty() bool { return p.Number == "" }

func (a Address) normalized() Address {
	return Address{
		Street:     normText(a.Street),
		Barangay:   normText(a.Barangay),
		City:       normText(a.City),
		State:      normText(a.State),
		PostalCode: normText(a.PostalCode),
		Country:    normText(a.Country),
	}
}

func (a Address) empty() bool { return a == Address{} }

func (l Location) normalized() Location {
	return Location{City: normText(l.City), State: normText(l.State), Country: normText(l.Country)}
}

func (l Location) empty() bool { return l == Location{} }

func (w WorkPreference) empty() bool { return w == WorkPreference{} }

func (s SocialURL) normalized() SocialURL {
	return SocialURL{Platform: normText(s.Platform), URL: normText(s.URL)}
}

func (s SocialURL) empty() bool { return s.URL == "" }

func (w WorkExperience) normalized() WorkExperience {
	return WorkExperience{
		JobTitle:         normText(w.JobTitle),
		CompanyName:      normText(w.CompanyName),
		Location:         normText(w.Location),
		StartDate:        normText(w.StartDate),
		EndDate:          normText(w.EndDate),
		Responsibilities: normList(w.Responsibilities),
	}
}

func (w WorkExperience) empty() bool {
	return w.JobTitle == "" && w.CompanyName == "" && w.Location == "" &&
		w.StartDate == "" && w.EndDate == "" && len(w.Responsibilities) == 0
}

func (s ITSystem) normalized() ITSystem {
	return ITSystem{Abbreviation: normText(s.Abbreviation), NameOfSystem: normText(s.NameOfSystem)}
}

func (s ITSystem) empty() bool { return s == ITSystem{} }

func (e Education) normalized() Education {
	return Education{
		Degree:      normText(e.Degree),
		Institution: normText(e.Institution),
		Location:    normText(e.Location),
		StartDate:   normText(e.StartDate),
		EndDate:     normText(e.EndDate),
		GPA:         normText(e.GPA),
		Honors:      normText(e.Honors),
	}
}

func (e Education) empty() bool { return e == Education{} }

func (s Skills) normalized() Skills {
	return Skills{
		TechnicalSkills:   normList(s.TechnicalSkills),
		SoftSkills:        normList(s.SoftSkills),
		ComputerLanguages: compact(s.ComputerLanguages),
	}
}

func (l LanguageSkill) normalized() LanguageSkill {
	return LanguageSkill{Language: normText(l.Language), Proficiency: normText(l.Proficiency)}
}

func (l LanguageSkill) empty() bool { return l.Language == "" }

func (c Certification) normalized() Certification {
	return Certification{
		Name:                normText(c.Name),
		IssuingOrganization: normText(c.IssuingOrganization),
		IssueDate:           normText(c.IssueDate),
		ExpirationDate:      normText(c.ExpirationDate),
		CredentialID:        normText(c.CredentialID),
	}
}

func (c Certification) empty() bool { return c == Certification{} }

func (p Project) normalized() Project {
	return Project{
		Title:            normText(p.Title),
		Description:      normText(p.Description),
		TechnologiesUsed: normList(p.TechnologiesUsed),
		StartDate:        normText(p.StartDate),
		EndDate:          normText(p.EndDate),
		ProjectURL:       normText(p.ProjectURL),
	}
}

func (p Project) empty() bool {
	return p.Title == "" && p.Description == "" && len(p.TechnologiesUsed) == 0 &&
		p.StartDate == "" && p.EndDate == "" && p.ProjectURL == ""
}

func (a Award) normalized() Award {
	return Award{
		Title:        normText(a.Title),
		Issuer:       normText(a.Issuer),
		DateReceived: normText(a.DateReceived),
		Description:  normText(a.Description),
	}
}

func (a Award) empty() bool { return a == Award{} }

func (v Volunteer) normalized() Volunteer {
	return Volunteer{
		Role:         normText(v.Role),
		Organization: normText(v.Organization),
		Location:     normText(v.Location),
		StartDate:    normText(v.StartDate),
		EndDate:      normText(v.EndDate),
		Description:  normText(v.Description),
	}
}

func (v Volunteer) empty() bool { return v == Volunteer{} }

func (r Reference) normalized() Reference {
	return Reference{
		Name:         normText(r.Name),
		Relationship: normText(r.Relationship),
		Email:        normText(r.Email),
		Phone:        normText(r.Phone),
	}
}

func (r Reference) empty() bool { return r == Reference{} }

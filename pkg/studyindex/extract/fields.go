package extract

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/cognicore/studyindex/pkg/studyindex/curation"
	"github.com/cognicore/studyindex/pkg/studyindex/docread"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/sections"
)

// Delineate reads "key: value" paragraphs. A paragraph without the
// separator, or whose value starts with a clock time, continues the
// previous value.
func Delineate(paras []docread.Paragraph, sep string) []Pair {
	var out []Pair
	for _, p := range paras {
		key, value, found := strings.Cut(p.Text, sep)
		if found && !startsWithTime(value) {
			out = append(out, Pair{Key: key, Value: strings.TrimSpace(value)})
			continue
		}
		text := strings.TrimSpace(p.Text)
		if len(out) == 0 || text == "" {
			continue
		}
		last := &out[len(out)-1]
		if last.Value == "" {
			last.Value = text
		} else {
			last.Value += ", " + text
		}
	}
	return out
}

// startsWithTime spots the minutes of "9:30 AM" left over after splitting
// on the colon.
func startsWithTime(s string) bool {
	for _, marker := range []string{"AM", "PM"} {
		if i := strings.Index(s, marker); i > -1 && i < 5 {
			return true
		}
	}
	return false
}

func sectionParas(doc *docread.Document, s sections.Section) []docread.Paragraph {
	end := min(s.End, len(doc.Paragraphs))
	start := min(max(s.Start, 0), end)
	return doc.Paragraphs[start:end]
}

// mainBody is the document text up to the terms and conditions, or the
// first appendix.
func mainBody(doc *docread.Document, ix *sections.Index) string {
	stop := doc.Len()
	if s, ok := ix.FindFunc(func(k string) bool {
		return strings.Contains(k, "terms") && strings.Contains(k, "conditions")
	}); ok {
		stop = s.Start
	} else if s, ok := ix.Find("appendix"); ok {
		stop = s.Start
	}
	return doc.Text(0, stop)
}

func (e *Extractor) abbreviations(_ context.Context, c *Candidate, doc *docread.Document, ix *sections.Index) error {
	if s, ok := ix.Find("abbreviation"); ok {
		c.Abbreviations = Delineate(sectionParas(doc, s), ":")
	}
	return nil
}

func (e *Extractor) animalDetails(ctx context.Context, c *Candidate, doc *docread.Document, ix *sections.Index) error {
	s, ok := ix.Find("animal description")
	if !ok {
		s, ok = ix.Find("animal")
	}
	if !ok {
		c.warn(MissingSection, "animal description")
		return nil
	}

	var rat, mouse bool
	males, females := true, false
	for _, kv := range Delineate(sectionParas(doc, s), ":") {
		key := strings.ToLower(kv.Key)
		value := strings.ToLower(kv.Value)

		if strings.Contains(key, "species") {
			rat = rat || strings.Contains(value, "rat")
			mouse = mouse || strings.Contains(value, "mouse") || strings.Contains(value, "mice")
			switch {
			case rat && mouse:
				c.Species = ptr(records.RatAndMouse)
			case rat:
				c.Species = ptr(records.Rat)
			case mouse:
				c.Species = ptr(records.Mouse)
			}
		}

		if strings.Contains(key, "strain") {
			species := ""
			if c.Species != nil {
				species = *c.Species
			}
			matches, err := e.catalog.MatchStrain(ctx, kv.Value, species)
			if err := catalogErr(c, "strain", err); err != nil {
				return err
			}
			if len(matches) > 0 {
				c.Strains = matches
			} else if kv.Value != "" {
				c.Strains = []string{kv.Value}
				c.add(curation.KindStrain, kv.Value)
			}
		}

		if strings.Contains(key, "sex") {
			if strings.Contains(value, "female") {
				females = true
				males = strings.Contains(value, "and") || strings.Contains(value, "&")
			}
			switch {
			case males && females:
				c.Sex = ptr(records.Both)
			case males:
				c.Sex = ptr(records.Males)
			case females:
				c.Sex = ptr(records.Females)
			}
		}
	}
	return nil
}

func (e *Extractor) compounds(ctx context.Context, c *Candidate, doc *docread.Document, ix *sections.Index) error {
	matches, err := e.catalog.MatchCompounds(ctx, mainBody(doc, ix))
	if err := catalogErr(c, "compounds", err); err != nil {
		return err
	}
	c.Compounds = matches
	return nil
}

func (e *Extractor) methods(ctx context.Context, c *Candidate, doc *docread.Document, ix *sections.Index) error {
	matches, err := e.catalog.MatchMethods(ctx, mainBody(doc, ix))
	if err := catalogErr(c, "methods", err); err != nil {
		return err
	}
	c.Methods = unique(append(c.Methods, matches...))
	sort.Strings(c.Methods)
	return nil
}

// titlePage returns the non-blank title page lines before any
// confidentiality notice.
func titlePage(doc *docread.Document, ix *sections.Index) []string {
	var lines []string
	for _, p := range sectionParas(doc, ix.TitlePage()) {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if strings.Contains(strings.ToLower(text), "confidentiality") {
			break
		}
		lines = append(lines, text)
	}
	return lines
}

// companyLine finds the client named on the title page.
func companyLine(lines []string) (string, bool) {
	for _, l := range lines {
		if _, after, ok := strings.Cut(l, "Prepared for"); ok {
			return strings.TrimSpace(strings.TrimLeft(after, ": ")), true
		}
	}
	for _, l := range lines {
		if i := strings.LastIndex(l, "Sponsor"); i >= 0 {
			after := l[i+len("Sponsor"):]
			if j := strings.LastIndex(after, ":"); j >= 0 {
				after = after[j+1:]
			}
			return strings.TrimSpace(after), true
		}
	}
	return "", false
}

func (e *Extractor) documentDetails(ctx context.Context, c *Candidate, doc *docread.Document, ix *sections.Index) error {
	lines := titlePage(doc, ix)

	company, found := companyLine(lines)
	subject := company
	if !found {
		subject = strings.Join(lines, " ")
	}
	match, ok, err := e.catalog.MatchClientName(ctx, subject)
	if err := catalogErr(c, "client", err); err != nil {
		return err
	}
	switch {
	case ok:
		if c.Client != nil && *c.Client != match {
			c.warn(ClientMismatch, "filename client %q, document client %q; using document", *c.Client, match)
		}
		c.Client = &match
	case found && company != "":
		c.add(curation.KindClient, company)
		if c.Client == nil {
			c.Client = &company
		}
	}

	if len(doc.Header) > 0 {
		desc, _, _ := strings.Cut(doc.Header[0], "\t")
		if desc = strings.TrimSpace(desc); desc != "" {
			c.Description = &desc
		}
	}

	var dates []string
	for _, l := range lines {
		if strings.Contains(l, "Date") {
			parts := strings.Split(l, ":")
			dates = append(dates, strings.TrimSpace(parts[len(parts)-1]))
		}
	}
	if len(dates) > 0 {
		c.IssueDate = c.parseDate(dates[0])
		if c.StudyDate == nil && c.IssueDate != nil {
			c.StudyDate = c.IssueDate
		}
	}
	if len(dates) > 1 {
		c.LatestReissue = c.parseDate(dates[1])
	}

	if t := docTypeIn([]string{strings.ToLower(c.Filepath)}); t != "" {
		c.DocType = t
	} else if t := docTypeIn(lines); t != "" {
		c.DocType = t
	}
	return nil
}

func (c *Candidate) parseDate(s string) *time.Time {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		c.warn(DateParse, "%q: %v", s, err)
		return nil
	}
	return &t
}

// docTypeIn looks for the literal type names, report first.
func docTypeIn(lines []string) records.DocType {
	for _, probe := range []struct {
		word string
		t    records.DocType
	}{
		{"report", records.Report},
		{"proposal", records.Proposal},
		{"change order", records.ChangeOrder},
	} {
		for _, l := range lines {
			if strings.Contains(strings.ToLower(l), probe.word) {
				return probe.t
			}
		}
	}
	return ""
}

func (e *Extractor) personnel(ctx context.Context, c *Candidate, doc *docread.Document, ix *sections.Index) error {
	people := make(map[string]string)
	for _, role := range Roles {
		s, ok := ix.Find(role)
		if !ok {
			continue
		}
		text := doc.Text(s.Start, s.End)
		matches, err := e.catalog.MatchEmployee(ctx, text)
		if err := catalogErr(c, "employee", err); err != nil {
			return err
		}
		if len(matches) > 0 {
			people[role] = matches[0]
			continue
		}
		found := e.persons.FindPersons(text)
		if len(found) > 0 {
			people[role] = found[0]
			for _, name := range found {
				c.add(curation.KindPeople, name)
			}
		}
	}
	if len(people) > 0 {
		c.People = people
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

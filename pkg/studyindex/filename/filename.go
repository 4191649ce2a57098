// Package filename extracts study identity from document file names such as
// "PFZ_07_14MAR24_FST_R2.docx".
package filename

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
)

var (
	studyPattern  = regexp.MustCompile(`[^{(_\s.]{2,6}_\d{2,3}_\d{1,2}[A-Za-z]*\d{2,4}`)
	revisionAhead = regexp.MustCompile(`^[A-Za-z]*R\d`)
	methodWord    = regexp.MustCompile(`^[A-Za-z]+(?:-[A-Za-z]+)*`)
	trailingSep   = regexp.MustCompile(`[_\s.]+`)
	versionNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
	changeOrder   = regexp.MustCompile(`(?:^|[^A-Za-z])CO(?:[^A-Za-z]|$)`)
	digitRun      = regexp.MustCompile(`\d+`)
	letterRun     = regexp.MustCompile(`[A-Za-z]+`)
)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March, "MARCH": time.March,
	"APR": time.April, "APL": time.April, "ARP": time.April, "APRIL": time.April,
	"MAY": time.May, "JUN": time.June, "JUNE": time.June, "JUL": time.July, "JULY": time.July,
	"AUG": time.August, "SEP": time.September, "SEPT": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// DirKeyword maps a directory path fragment to a document type.
type DirKeyword struct {
	Keyword string
	Type    records.DocType
}

// DefaultKeywords are the share folders proposals and reports live in.
func DefaultKeywords() []DirKeyword {
	return []DirKeyword{
		{Keyword: "bizdev", Type: records.Proposal},
		{Keyword: "o-drive", Type: records.Report},
	}
}

// Parsed holds what a file name says about its study. Empty strings and nil
// pointers are unknown.
type Parsed struct {
	Matched     bool
	StudyID     string
	ClientCode  string
	StudyNumber *int
	DateToken   string
	StudyDate   *time.Time
	MethodCode  string
	Version     float64
	ChangeOrder bool
	DocType     records.DocType
}

// Parser parses file names.
type Parser struct {
	keywords []DirKeyword
	now      func() time.Time
}

// New returns a parser using keywords for directory-based typing. Nil
// keywords selects DefaultKeywords.
func New(keywords []DirKeyword) *Parser {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	return &Parser{keywords: keywords, now: time.Now}
}

// WithClock returns a copy of the parser that resolves two-digit years
// against now.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	cp := *p
	cp.now = now
	return &cp
}

// Parse inspects name (without extension) and the directory holding it.
func (p *Parser) Parse(name, dir string) Parsed {
	var out Parsed
	loc := studyPattern.FindStringIndex(name)
	if loc == nil {
		out.DocType = p.dirType(dir)
		return out
	}

	out.Matched = true
	out.StudyID = strings.ToUpper(name[loc[0]:loc[1]])
	parts := strings.Split(out.StudyID, "_")
	out.ClientCode = parts[0]
	if n, err := strconv.Atoi(parts[1]); err == nil {
		out.StudyNumber = &n
	}
	out.DateToken = parts[2]
	if d, err := ParseDate(out.DateToken, p.now()); err == nil {
		out.StudyDate = &d
	}

	rest := name[loc[1]:]
	out.MethodCode = methodCode(rest)
	out.ChangeOrder, out.Version = parseTrailing(rest)

	if out.ChangeOrder {
		out.DocType = records.ChangeOrder
	} else {
		out.DocType = p.dirType(dir)
	}
	return out
}

func (p *Parser) dirType(dir string) records.DocType {
	lower := strings.ToLower(dir)
	for _, kw := range p.keywords {
		if kw.Keyword != "" && strings.Contains(lower, strings.ToLower(kw.Keyword)) {
			return kw.Type
		}
	}
	return ""
}

// methodCode returns the first letters-and-hyphens word in s that does not
// begin a revision marker like "R2".
func methodCode(s string) string {
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) {
			continue
		}
		if revisionAhead.MatchString(s[i:]) {
			continue
		}
		if m := methodWord.FindString(s[i:]); m != "" {
			return m
		}
	}
	return ""
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// parseTrailing reads the version and change order flag from the text
// after the date token. Only the segment after the first separator run is
// considered.
func parseTrailing(rest string) (bool, float64) {
	segs := trailingSep.Split(rest, 2)
	if len(segs) < 2 {
		return false, 0
	}
	seg := segs[1]
	var version float64
	if strings.Contains(seg, "R") {
		if num := versionNumber.FindString(seg); num != "" {
			version, _ = strconv.ParseFloat(num, 64)
		}
	}
	return changeOrder.MatchString(seg), version
}

// ParseDate parses a filename date token like "14MAR24". Two-digit years
// up to now's two-digit year are 20xx, later ones 19xx. Tokens the month
// table cannot read are handed to dateparse.
func ParseDate(token string, now time.Time) (time.Time, error) {
	d, err := parseMonthToken(token, now)
	if err == nil {
		return d, nil
	}
	if t, perr := dateparse.ParseIn(token, time.UTC); perr == nil {
		return t, nil
	}
	return time.Time{}, err
}

func parseMonthToken(token string, now time.Time) (time.Time, error) {
	nums := digitRun.FindAllString(token, -1)
	words := letterRun.FindAllString(token, -1)
	if len(nums) == 0 || len(words) == 0 {
		return time.Time{}, fmt.Errorf("date token %q: %w", token, internalerr.ErrInvalidInput)
	}
	month, ok := months[strings.ToUpper(words[0])]
	if !ok {
		return time.Time{}, fmt.Errorf("date token %q: unknown month %q: %w", token, words[0], internalerr.ErrInvalidInput)
	}
	day, _ := strconv.Atoi(nums[0])
	yearText := nums[len(nums)-1]
	year, _ := strconv.Atoi(yearText)
	if len(yearText) == 2 {
		if year <= now.Year()%100 {
			year += 2000
		} else {
			year += 1900
		}
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date token %q: day out of range: %w", token, internalerr.ErrInvalidInput)
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, fmt.Errorf("date token %q: no such day: %w", token, internalerr.ErrInvalidInput)
	}
	return d, nil
}

// FormatDate renders a date as a filename token, e.g. 14MAR24. September
// is written SEPT.
func FormatDate(t time.Time) string {
	mon := strings.ToUpper(t.Month().String()[:3])
	if t.Month() == time.September {
		mon = "SEPT"
	}
	return fmt.Sprintf("%02d%s%02d", t.Day(), mon, t.Year()%100)
}

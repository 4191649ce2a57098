// Package sections locates the logical sections of a study document, either
// from its table of contents or, failing that, by scanning for the headings
// study documents are expected to carry.
package sections

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/studyindex/pkg/studyindex/docread"
	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

// TitlePage is the key of the section running from the first paragraph to
// the first indexed section.
const TitlePage = "title page"

var (
	// ErrNoTOC is returned when the document has no table of contents.
	ErrNoTOC = fmt.Errorf("table of contents: %w", internalerr.ErrNotFound)
	// ErrNoHeadings is returned when no section heading could be located.
	ErrNoHeadings = fmt.Errorf("section headings: %w", internalerr.ErrNotFound)
)

var tocEntryLine = regexp.MustCompile(`\t+\d`)

// Strategy names how an Index was built.
type Strategy string

const (
	StrategyTOC      Strategy = "toc"
	StrategyHeadings Strategy = "headings"
)

// Section is a half-open paragraph interval [Start, End). A section's
// interval covers its nested subsections.
type Section struct {
	Key   string
	Start int
	End   int
	Depth int
}

// Expected is a section title the heading scan looks for.
type Expected struct {
	Title string
	Depth int
}

// DefaultExpected lists the sections of the house proposal and report
// templates.
func DefaultExpected() []Expected {
	return []Expected{
		{"title page", 1},
		{"table of contents", 1},
		{"introduction and background", 1},
		{"background", 2},
		{"abbreviations used in this proposal", 2},
		{"study deliverables", 1},
		{"experimental procedures", 1},
		{"animal description", 2},
		{"housing and feeding", 2},
		{"design", 2},
		{"general operational terms", 2},
		{"methods", 2},
		{"data analysis", 2},
		{"terms and conditions", 1},
		{"pricing", 2},
		{"terms", 2},
		{"appendix 1", 1},
		{"appendix 2", 1},
		{"project manager", 2},
		{"project coordinator", 2},
		{"client management specialist", 2},
		{"appendix 3", 1},
		{"executive summary", 2},
		{"melior discovery overview", 2},
		{"facility", 2},
		{"security, monitoring, and backup capability", 2},
	}
}

// Index maps section keys (lower-cased titles) to paragraph intervals, in
// document order.
type Index struct {
	Strategy Strategy
	sections []Section
	pos      map[string]int
}

// Sections returns the indexed sections in document order, title page
// first.
func (ix *Index) Sections() []Section {
	out := make([]Section, len(ix.sections))
	copy(out, ix.sections)
	return out
}

// Get returns the section with exactly this key.
func (ix *Index) Get(key string) (Section, bool) {
	i, ok := ix.pos[strings.ToLower(key)]
	if !ok {
		return Section{}, false
	}
	return ix.sections[i], true
}

// Find returns the first section whose key contains substr, ignoring case.
func (ix *Index) Find(substr string) (Section, bool) {
	substr = strings.ToLower(substr)
	return ix.FindFunc(func(key string) bool { return strings.Contains(key, substr) })
}

// FindFunc returns the first section whose key satisfies match.
func (ix *Index) FindFunc(match func(key string) bool) (Section, bool) {
	for _, s := range ix.sections {
		if match(s.Key) {
			return s, true
		}
	}
	return Section{}, false
}

// TitlePage returns the title page section.
func (ix *Index) TitlePage() Section {
	s, _ := ix.Get(TitlePage)
	return s
}

func (ix *Index) put(s Section) {
	if i, ok := ix.pos[s.Key]; ok {
		ix.sections[i] = s
		return
	}
	ix.pos[s.Key] = len(ix.sections)
	ix.sections = append(ix.sections, s)
}

type entry struct {
	key   string
	start int
	depth int
}

// build turns located headings into intervals. A section ends at the next
// heading of equal or shallower depth. A key seen twice keeps its first
// position and takes the later interval.
func build(strategy Strategy, entries []entry, n int) *Index {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].start < entries[j].start })
	ix := &Index{Strategy: strategy, pos: make(map[string]int)}
	ix.put(Section{Key: TitlePage, Start: 0, End: entries[0].start, Depth: 1})
	for i, e := range entries {
		end := n
		for _, next := range entries[i+1:] {
			if next.depth <= e.depth {
				end = next.start
				break
			}
		}
		ix.put(Section{Key: e.key, Start: e.start, End: end, Depth: e.depth})
	}
	return ix
}

// Indexer builds section indexes.
type Indexer struct {
	// TOCTitle is searched for, case-insensitively, to find the table of
	// contents.
	TOCTitle string
	// LongTOC is the paragraph distance to the first page break beyond
	// which only tab-number lines are read as contents entries.
	LongTOC  int
	Expected []Expected
}

// New returns an Indexer with the house defaults.
func New() *Indexer {
	return &Indexer{
		TOCTitle: "table of contents",
		LongTOC:  40,
		Expected: DefaultExpected(),
	}
}

// Index tries the table of contents first and falls back to the heading
// scan. When both fail the error wraps internalerr.ErrUnstructured.
func (x *Indexer) Index(doc *docread.Document) (*Index, error) {
	ix, tocErr := x.FromTOC(doc)
	if tocErr == nil {
		return ix, nil
	}
	ix, scanErr := x.FromHeadings(doc)
	if scanErr == nil {
		return ix, nil
	}
	return nil, fmt.Errorf("%w: %w", internalerr.ErrUnstructured, errors.Join(tocErr, scanErr))
}

// FromTOC indexes the sections listed in the table of contents whose
// headings can be found in the body. Entries without a matching heading
// are dropped.
func (x *Indexer) FromTOC(doc *docread.Document) (*Index, error) {
	paras := doc.Paragraphs
	title := strings.ToLower(x.TOCTitle)
	tocAt := -1
	for i, p := range paras {
		if strings.Contains(strings.ToLower(p.Text), title) {
			tocAt = i
			break
		}
	}
	if tocAt < 0 {
		return nil, ErrNoTOC
	}

	depths := make(map[string]int)
	for _, line := range x.tocLines(paras, tocAt) {
		if t, depth, ok := parseTOCLine(line); ok {
			if _, seen := depths[t]; !seen {
				depths[t] = depth
			}
		}
	}

	entries := []entry{{key: strings.ToLower(strings.TrimSpace(paras[tocAt].Text)), start: tocAt, depth: 1}}
	for i, p := range paras {
		if i == tocAt || !isHeading(p.Style) {
			continue
		}
		if depth, ok := depths[strings.TrimSpace(p.Text)]; ok {
			entries = append(entries, entry{key: strings.ToLower(strings.TrimSpace(p.Text)), start: i, depth: depth})
		}
	}
	if len(entries) == 1 {
		return nil, ErrNoHeadings
	}
	return build(StrategyTOC, entries, len(paras)), nil
}

// tocLines returns the contents block: from the title to the first page
// break, or every tab-number line after the title when the break is far
// away or missing.
func (x *Indexer) tocLines(paras []docread.Paragraph, tocAt int) []string {
	brk := -1
	for i := tocAt + 1; i < len(paras); i++ {
		if paras[i].PageBreak {
			brk = i
			break
		}
	}
	var lines []string
	if brk < 0 || brk-tocAt > x.LongTOC {
		for _, p := range paras[tocAt:] {
			if tocEntryLine.MatchString(p.Text) {
				lines = append(lines, p.Text)
			}
		}
		return lines
	}
	for _, p := range paras[tocAt : brk+1] {
		lines = append(lines, p.Text)
	}
	return lines
}

// parseTOCLine reads "number<TAB>title<TAB>page" or "title<TAB>page".
func parseTOCLine(line string) (string, int, bool) {
	var parts []string
	for _, part := range strings.Split(line, "\t") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	switch len(parts) {
	case 3:
		return parts[1], outlineDepth(parts[0]), true
	case 2:
		return parts[0], 1, true
	}
	return "", 0, false
}

// outlineDepth counts the numeric components of an outline number such as
// "2.1.3". Unparseable numbers are depth 1.
func outlineDepth(number string) int {
	depth := 0
	for _, c := range strings.Split(number, ".") {
		if _, err := strconv.Atoi(strings.TrimSpace(c)); err == nil {
			depth++
		}
	}
	return max(depth, 1)
}

func isHeading(style string) bool {
	return strings.Contains(strings.ToLower(style), "heading")
}

// FromHeadings scans every paragraph for the expected titles. An exact
// match moves a section to its latest exact occurrence; a paragraph that
// merely contains a title only adds titles not seen yet.
func (x *Indexer) FromHeadings(doc *docread.Document) (*Index, error) {
	var entries []entry
	seen := make(map[string]int)
	for i, p := range doc.Paragraphs {
		text := strings.ToLower(strings.TrimSpace(p.Text))
		if text == "" {
			continue
		}
		for _, e := range x.Expected {
			at, ok := seen[e.Title]
			switch {
			case text == e.Title && ok:
				entries[at].start = i
			case text == e.Title || (!ok && strings.Contains(text, e.Title)):
				seen[e.Title] = len(entries)
				entries = append(entries, entry{key: e.Title, start: i, depth: e.Depth})
			}
		}
	}
	if len(entries) == 0 {
		return nil, ErrNoHeadings
	}
	return build(StrategyHeadings, entries, len(doc.Paragraphs)), nil
}

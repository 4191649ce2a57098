// Package search answers study queries over the index tables.
package search

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// Criteria narrows a search. Zero fields do not filter. Every listed
// method and compound must be linked to a study.
type Criteria struct {
	Methods   []string
	Compounds []string
	Client    string
	Sex       string
	Species   string
	Strain    string
	// FromYear and ToYear bound the study date, inclusive. Studies without
	// a date are excluded once either bound is set.
	FromYear int
	ToYear   int
}

// Match is a found study with the files of its latest proposal and report.
type Match struct {
	Study    records.Study
	Proposal string
	Report   string
}

// Facets lists the values a search can choose from.
type Facets struct {
	Methods   []string `json:"methods"`
	Compounds []string `json:"compounds"`
	Clients   []string `json:"clients"`
	Strains   []string `json:"strains"`
	MinYear   int      `json:"min_year,omitempty"`
	MaxYear   int      `json:"max_year,omitempty"`
}

// SexValues expands a sex criterion: a study of both sexes matches either.
func SexValues(sex string) []string {
	switch sex {
	case records.Males, records.Females:
		return []string{sex, records.Both}
	}
	return []string{sex}
}

// SpeciesValues expands a species criterion: a study of rats and mice
// matches either.
func SpeciesValues(species string) []string {
	switch species {
	case records.Rat, records.Mouse:
		return []string{species, records.RatAndMouse}
	}
	return []string{species}
}

func anyOf(vs []string) tablestore.Match {
	raw := make([]any, len(vs))
	for i, v := range vs {
		raw[i] = v
	}
	return tablestore.In(raw...)
}

// Searcher runs queries against a store holding records.Schemas.
type Searcher struct {
	store *tablestore.Store
}

func New(store *tablestore.Store) *Searcher {
	return &Searcher{store: store}
}

// Search returns the studies matching c ordered by study date, undated
// studies last.
func (s *Searcher) Search(ctx context.Context, c Criteria) ([]Match, error) {
	key := tablestore.Key{}
	if c.Client != "" {
		key["client"] = tablestore.Is(c.Client)
	}
	if c.Sex != "" {
		key["sex"] = anyOf(SexValues(c.Sex))
	}
	if c.Species != "" {
		key["species"] = anyOf(SpeciesValues(c.Species))
	}
	if len(key) == 0 {
		key = nil
	}
	rows, err := s.store.Filter(ctx, records.TableStudies, key)
	if err != nil {
		return nil, err
	}

	var allowed []map[string]bool
	for _, m := range c.Methods {
		ids, err := s.studyIDs(ctx, records.MethodsTable, m)
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, ids)
	}
	for _, cp := range c.Compounds {
		ids, err := s.studyIDs(ctx, records.CompoundsTable, cp)
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, ids)
	}
	if c.Strain != "" {
		ids, err := s.studyIDs(ctx, records.StrainsTable, c.Strain)
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, ids)
	}

	var studies []records.Study
	for _, row := range rows {
		st, err := records.StudyFromRow(row)
		if err != nil {
			return nil, err
		}
		if !inAll(allowed, st.StudyID) || !inYears(st.StudyDate, c.FromYear, c.ToYear) {
			continue
		}
		studies = append(studies, st)
	}
	slices.SortStableFunc(studies, compareDate)

	paths, err := s.documentPaths(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(studies))
	for _, st := range studies {
		m := Match{Study: st}
		if st.ProposalID != nil {
			m.Proposal = paths[*st.ProposalID]
		}
		if st.ReportID != nil {
			m.Report = paths[*st.ReportID]
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Searcher) studyIDs(ctx context.Context, t records.AssociationTable, value string) (map[string]bool, error) {
	rows, err := s.store.Filter(ctx, t.Table, tablestore.KeyOf(t.Field, value))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id, ok := row.Get("study_id").Text(); ok {
			ids[id] = true
		}
	}
	return ids, nil
}

// documentPaths maps document ids to file paths.
func (s *Searcher) documentPaths(ctx context.Context) (map[string]string, error) {
	rows, err := s.store.Rows(ctx, records.TableDocuments)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(rows))
	for _, row := range rows {
		id, ok := row.Get("document_id").Text()
		if !ok {
			continue
		}
		paths[id], _ = row.Get("filepath").Text()
	}
	return paths, nil
}

func inAll(sets []map[string]bool, id string) bool {
	for _, set := range sets {
		if !set[id] {
			return false
		}
	}
	return true
}

func inYears(date *time.Time, from, to int) bool {
	if from == 0 && to == 0 {
		return true
	}
	if date == nil {
		return false
	}
	y := date.Year()
	return (from == 0 || y >= from) && (to == 0 || y <= to)
}

func compareDate(a, b records.Study) int {
	switch {
	case a.StudyDate == nil && b.StudyDate == nil:
		return 0
	case a.StudyDate == nil:
		return 1
	case b.StudyDate == nil:
		return -1
	}
	return a.StudyDate.Compare(*b.StudyDate)
}

// Facets collects the distinct values stored in the index.
func (s *Searcher) Facets(ctx context.Context) (Facets, error) {
	var f Facets
	var err error
	if f.Methods, err = s.distinct(ctx, records.TableStudyMethods, "method"); err != nil {
		return f, err
	}
	if f.Compounds, err = s.distinct(ctx, records.TableStudyCompounds, "compound"); err != nil {
		return f, err
	}
	if f.Strains, err = s.distinct(ctx, records.TableStudyStrains, "strain"); err != nil {
		return f, err
	}
	if f.Clients, err = s.distinct(ctx, records.TableStudies, "client"); err != nil {
		return f, err
	}
	f.MinYear, f.MaxYear, err = s.Years(ctx)
	return f, err
}

// Years returns the earliest and latest study years, or zeros when no
// study is dated.
func (s *Searcher) Years(ctx context.Context) (int, int, error) {
	rows, err := s.store.Rows(ctx, records.TableStudies)
	if err != nil {
		return 0, 0, err
	}
	var lo, hi int
	for _, row := range rows {
		t, ok := row.Get("study_date").Time()
		if !ok {
			continue
		}
		y := t.Year()
		if lo == 0 || y < lo {
			lo = y
		}
		hi = max(hi, y)
	}
	return lo, hi, nil
}

func (s *Searcher) distinct(ctx context.Context, table, field string) ([]string, error) {
	rows, err := s.store.Rows(ctx, table)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, row := range rows {
		v, ok := row.Get(field).Text()
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out, nil
}

package curation

import (
	"context"
	"sort"
	"strings"
)

// Suggestion is a value proposed for addition to a catalog.
type Suggestion struct {
	Kind        Kind
	Value       string
	Occurrences int
	Studies     []string
	Files       []string
}

// Reviewer optionally approves suggestions.
type Reviewer interface {
	Approve(ctx context.Context, s Suggestion) (bool, error)
}

// Thresholds control which values are suggested.
type Thresholds struct {
	MinOccurrences int
}

// Suggester groups a log into catalog suggestions.
type Suggester struct {
	Thresholds Thresholds
	Reviewer   Reviewer
}

// Run groups entries by kind and case-folded value. Groups below the
// occurrence threshold are dropped; the rest are returned most frequent
// first, filtered through the reviewer when one is set.
func (s *Suggester) Run(ctx context.Context, log *Log) ([]Suggestion, error) {
	th := s.thresholdsOrDefault()

	type groupKey struct {
		kind  Kind
		value string
	}
	index := make(map[groupKey]int)
	var groups []Suggestion
	for _, e := range log.entries {
		k := groupKey{e.Kind, strings.ToLower(e.Value)}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Suggestion{Kind: e.Kind, Value: e.Value})
		}
		g := &groups[i]
		g.Occurrences++
		g.Studies = appendUnique(g.Studies, e.StudyID)
		g.Files = appendUnique(g.Files, e.Filepath)
	}

	var suggestions []Suggestion
	for _, g := range groups {
		if g.Occurrences >= th.MinOccurrences {
			suggestions = append(suggestions, g)
		}
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Occurrences > suggestions[j].Occurrences
	})

	if s.Reviewer == nil {
		return suggestions, nil
	}
	var approved []Suggestion
	for _, sugg := range suggestions {
		ok, err := s.Reviewer.Approve(ctx, sugg)
		if err != nil {
			return nil, err
		}
		if ok {
			approved = append(approved, sugg)
		}
	}
	return approved, nil
}

func (s *Suggester) thresholdsOrDefault() Thresholds {
	th := s.Thresholds
	if th.MinOccurrences == 0 {
		th.MinOccurrences = 1
	}
	return th
}

func appendUnique(in []string, v string) []string {
	if v == "" {
		return in
	}
	for _, s := range in {
		if s == v {
			return in
		}
	}
	return append(in, v)
}

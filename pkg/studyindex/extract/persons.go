package extract

import (
	"strings"
	"unicode"
)

// DefaultNameStopwords are capitalized words that appear next to names in
// personnel sections but are not part of them.
var DefaultNameStopwords = []string{
	"project", "manager", "coordinator", "principal", "associate", "client",
	"management", "specialist", "director", "scientist", "senior", "study",
	"dr", "phd", "ph.d", "ms", "mr", "mrs", "email", "phone", "tel", "fax",
	"inc", "llc", "the", "melior", "discovery", "appendix",
}

// NameHeuristic finds runs of two or three capitalized words, the shape of
// most personal names in signature blocks. It stands in for a statistical
// recognizer.
type NameHeuristic struct {
	stopwords map[string]struct{}
}

// NewNameHeuristic builds a heuristic with the given stopwords; nil uses
// DefaultNameStopwords.
func NewNameHeuristic(stopwords []string) *NameHeuristic {
	if stopwords == nil {
		stopwords = DefaultNameStopwords
	}
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &NameHeuristic{stopwords: stops}
}

// FindPersons returns candidate names in order of appearance.
func (h *NameHeuristic) FindPersons(text string) []string {
	var names []string
	var run []string
	flush := func() {
		if len(run) >= 2 && len(run) <= 3 {
			names = append(names, strings.Join(run, " "))
		}
		run = run[:0]
	}

	var current strings.Builder
	endWord := func(boundary bool) {
		if current.Len() > 0 {
			word := strings.TrimRight(current.String(), ".'-")
			current.Reset()
			if h.isNameWord(word) {
				run = append(run, word)
			} else {
				flush()
			}
		}
		if boundary {
			flush()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || r == '\'' || r == '-' || r == '.':
			current.WriteRune(r)
		case r == ' ':
			endWord(false)
		default:
			// Punctuation, digits and line breaks end a name.
			endWord(true)
		}
	}
	endWord(true)
	return unique(names)
}

func (h *NameHeuristic) isNameWord(word string) bool {
	if len(word) < 2 {
		return false
	}
	if _, stop := h.stopwords[strings.ToLower(word)]; stop {
		return false
	}
	runes := []rune(word)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	// All-caps words are acronyms or headings.
	for _, r := range runes[1:] {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/studyindex/pkg/studyindex/extract"
	"github.com/cognicore/studyindex/pkg/studyindex/filename"
	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/sections"
)

// Stoplist represents the name stopword list
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, fmt.Errorf("parse stoplist %s: %w", path, err)
	}

	return &sl, nil
}

// LoadKeywords loads directory keywords from a file
// Format: keyword|document_type
func LoadKeywords(path string) ([]filename.DirKeyword, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	keywords := []filename.DirKeyword{}
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		keyword, typ, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("%s:%d: want keyword|type: %w", path, n+1, internalerr.ErrInvalidConfig)
		}
		t := records.ParseDocType(typ)
		if t == records.Unknown {
			return nil, fmt.Errorf("%s:%d: unknown document type %q: %w", path, n+1, strings.TrimSpace(typ), internalerr.ErrInvalidConfig)
		}
		keywords = append(keywords, filename.DirKeyword{Keyword: strings.ToLower(strings.TrimSpace(keyword)), Type: t})
	}

	return keywords, nil
}

// Components holds the extraction collaborators built from configuration
type Components struct {
	Filenames *filename.Parser
	Sections  *sections.Indexer
	Persons   *extract.NameHeuristic
}

// Components reads the referenced files and returns initialized components
func (c *Config) Components() (*Components, error) {
	comp := &Components{}

	// Directory keywords
	var keywords []filename.DirKeyword
	if c.Extract.KeywordsFile != "" {
		kw, err := LoadKeywords(c.Extract.KeywordsFile)
		if err != nil {
			return nil, fmt.Errorf("load keywords: %w", err)
		}
		keywords = kw
	}
	comp.Filenames = filename.New(keywords)

	// Name stopwords
	var stopwords []string
	if c.Extract.StopwordsFile != "" {
		sl, err := LoadStoplist(c.Extract.StopwordsFile)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		stopwords = append(append(stopwords, extract.DefaultNameStopwords...), sl.Terms...)
	}
	comp.Persons = extract.NewNameHeuristic(stopwords)

	ix := sections.New()
	if c.Extract.TOCTitle != "" {
		ix.TOCTitle = strings.ToLower(c.Extract.TOCTitle)
	}
	if c.Extract.LongTOC > 0 {
		ix.LongTOC = c.Extract.LongTOC
	}
	comp.Sections = ix

	return comp, nil
}

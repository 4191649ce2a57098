// Package extract turns one study document into a candidate study and
// document record, resolving free text against the reference catalog.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/curation"
	"github.com/cognicore/studyindex/pkg/studyindex/docread"
	"github.com/cognicore/studyindex/pkg/studyindex/filename"
	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/sections"
)

// Catalog resolves text to reference values. *catalog.Catalog implements
// it.
type Catalog interface {
	MatchClientCode(ctx context.Context, code string) (string, bool, error)
	MatchClientName(ctx context.Context, text string) (string, bool, error)
	MatchMethodCode(ctx context.Context, code string) ([]string, error)
	MatchMethods(ctx context.Context, text string) ([]string, error)
	MatchCompounds(ctx context.Context, text string) ([]string, error)
	MatchStrain(ctx context.Context, text, species string) ([]string, error)
	MatchEmployee(ctx context.Context, text string) ([]string, error)
}

// Roles are the personnel sections looked up in every document.
var Roles = []string{"project manager", "project coordinator", "principal associate", "client management specialist"}

// WarningKind classifies an extraction warning.
type WarningKind string

const (
	ClientMismatch     WarningKind = "client_mismatch"
	MissingSection     WarningKind = "missing_section"
	Unstructured       WarningKind = "unstructured"
	DateParse          WarningKind = "date_parse"
	CatalogUnavailable WarningKind = "catalog_unavailable"
)

// Warning is a non-fatal extraction problem.
type Warning struct {
	Kind   WarningKind
	Detail string
}

func (w Warning) String() string { return string(w.Kind) + ": " + w.Detail }

// Addition is an extracted value no catalog entry resolved.
type Addition struct {
	Kind  curation.Kind
	Value string
}

// Pair is one "key: value" entry of a delineated section.
type Pair struct {
	Key   string
	Value string
}

// Candidate is everything known about one document after extraction.
// Empty strings, nil pointers and nil slices are unknown.
type Candidate struct {
	Filepath     string
	Directory    string
	DocumentName string
	Ext          string
	LastModified time.Time
	Created      time.Time

	StudyID     string
	StudyNumber *int
	StudyDate   *time.Time
	ClientCode  string
	MethodCode  string
	Version     float64
	DocType     records.DocType

	Client        *string
	Species       *string
	Sex           *string
	Description   *string
	IssueDate     *time.Time
	LatestReissue *time.Time

	Methods   []string
	Compounds []string
	Strains   []string
	// People maps a role to the employee resolved for it.
	People        map[string]string
	Abbreviations []Pair

	// Structure is empty when the document could not be sectioned.
	Structure sections.Strategy
	Additions []Addition
	Warnings  []Warning
}

// Structured reports whether section-based extraction ran.
func (c *Candidate) Structured() bool { return c.Structure != "" }

// Document returns the document row fields known before reconciliation.
// Id and number are assigned by the reconciler.
func (c *Candidate) Document() records.Document {
	docType := c.DocType
	if docType == "" {
		docType = records.Unknown
	}
	return records.Document{
		StudyID:      c.StudyID,
		DocumentName: c.DocumentName,
		DocumentType: docType,
		Ext:          c.Ext,
		Directory:    c.Directory,
		LastModified: c.LastModified,
		Created:      c.Created,
		Filepath:     c.Filepath,
		Version:      c.Version,
	}
}

// Assignments lists the resolved personnel in role order.
func (c *Candidate) Assignments(studyID string) []records.Assignment {
	roles := make([]string, 0, len(c.People))
	for role := range c.People {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	out := make([]records.Assignment, 0, len(roles))
	for _, role := range roles {
		out = append(out, records.Assignment{StudyID: studyID, Employee: c.People[role], Role: role})
	}
	return out
}

func (c *Candidate) warn(kind WarningKind, format string, args ...any) {
	c.Warnings = append(c.Warnings, Warning{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

func (c *Candidate) add(kind curation.Kind, value string) {
	if value = strings.TrimSpace(value); value != "" {
		c.Additions = append(c.Additions, Addition{Kind: kind, Value: value})
	}
}

// PersonFinder recognizes person names in free text.
type PersonFinder interface {
	FindPersons(text string) []string
}

// PersonFinderFunc adapts a function to PersonFinder.
type PersonFinderFunc func(text string) []string

func (f PersonFinderFunc) FindPersons(text string) []string { return f(text) }

// Options configures an Extractor.
type Options struct {
	Catalog   Catalog
	Filenames *filename.Parser
	Sections  *sections.Indexer
	Persons   PersonFinder
	// Read opens documents; docread.Open when nil.
	Read   func(path string) (*docread.Document, error)
	Logger *zap.Logger
}

// Extractor builds candidates from files.
type Extractor struct {
	catalog   Catalog
	filenames *filename.Parser
	sections  *sections.Indexer
	persons   PersonFinder
	read      func(path string) (*docread.Document, error)
	logger    *zap.Logger
}

// New creates an Extractor. Missing optional collaborators get defaults;
// without a person finder unresolved personnel stay empty.
func New(opts Options) *Extractor {
	e := &Extractor{
		catalog:   opts.Catalog,
		filenames: opts.Filenames,
		sections:  opts.Sections,
		persons:   opts.Persons,
		read:      opts.Read,
		logger:    opts.Logger,
	}
	if e.filenames == nil {
		e.filenames = filename.New(nil)
	}
	if e.sections == nil {
		e.sections = sections.New()
	}
	if e.persons == nil {
		e.persons = PersonFinderFunc(func(string) []string { return nil })
	}
	if e.read == nil {
		e.read = docread.Open
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("extract")
	return e
}

// FileMeta is the file system information of a document.
type FileMeta struct {
	Path         string
	LastModified time.Time
	Created      time.Time
}

// Stat reads FileMeta for path. The creation time is not portable and is
// reported as the modification time.
func Stat(path string) (FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMeta{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileMeta{Path: path, LastModified: info.ModTime(), Created: info.ModTime()}, nil
}

// Extract reads and extracts the document at path.
func (e *Extractor) Extract(ctx context.Context, path string) (*Candidate, error) {
	meta, err := Stat(path)
	if err != nil {
		return nil, err
	}
	doc, err := e.read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.ExtractDocument(ctx, meta, doc)
}

// ExtractDocument extracts an already-read document. A document that cannot
// be sectioned still yields its filename facts, with an Unstructured
// warning.
func (e *Extractor) ExtractDocument(ctx context.Context, meta FileMeta, doc *docread.Document) (*Candidate, error) {
	c := &Candidate{
		Filepath:     meta.Path,
		Directory:    filepath.Dir(meta.Path),
		LastModified: meta.LastModified,
		Created:      meta.Created,
	}
	base := filepath.Base(meta.Path)
	c.Ext = filepath.Ext(base)
	c.DocumentName = strings.TrimSuffix(base, c.Ext)

	if err := e.fromFilename(ctx, c); err != nil {
		return nil, err
	}

	ix, err := e.sections.Index(doc)
	if err != nil {
		if !errors.Is(err, internalerr.ErrUnstructured) {
			return nil, err
		}
		c.warn(Unstructured, "%v", err)
		e.log(c)
		return c, nil
	}
	c.Structure = ix.Strategy

	steps := []func(context.Context, *Candidate, *docread.Document, *sections.Index) error{
		e.abbreviations,
		e.animalDetails,
		e.compounds,
		e.documentDetails,
		e.personnel,
		e.methods,
	}
	for _, step := range steps {
		if err := step(ctx, c, doc, ix); err != nil {
			return nil, err
		}
	}
	e.log(c)
	return c, nil
}

func (e *Extractor) log(c *Candidate) {
	for _, w := range c.Warnings {
		e.logger.Warn("extraction warning",
			zap.String("file", c.Filepath),
			zap.String("kind", string(w.Kind)),
			zap.String("detail", w.Detail))
	}
}

// catalogErr downgrades a missing catalog table to a warning.
func catalogErr(c *Candidate, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, internalerr.ErrNotFound) {
		c.warn(CatalogUnavailable, "%s: %v", what, err)
		return nil
	}
	return fmt.Errorf("match %s: %w", what, err)
}

func (e *Extractor) fromFilename(ctx context.Context, c *Candidate) error {
	p := e.filenames.Parse(c.DocumentName, c.Directory)
	c.DocType = p.DocType
	if !p.Matched {
		return nil
	}
	c.StudyID = p.StudyID
	c.StudyNumber = p.StudyNumber
	c.StudyDate = p.StudyDate
	c.ClientCode = p.ClientCode
	c.MethodCode = p.MethodCode
	c.Version = p.Version

	if p.MethodCode != "" {
		methods, err := e.catalog.MatchMethodCode(ctx, p.MethodCode)
		if err := catalogErr(c, "method code", err); err != nil {
			return err
		}
		c.Methods = append(c.Methods, methods...)
	}
	client, ok, err := e.catalog.MatchClientCode(ctx, p.ClientCode)
	if err := catalogErr(c, "client code", err); err != nil {
		return err
	}
	if ok {
		c.Client = &client
	}
	return nil
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

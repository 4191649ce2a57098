// Package catalog resolves free text against the curated reference tables
// (clients, methods, compounds, strains, employees).
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// Reference table names.
const (
	TableStrain    = "strain"
	TableCompounds = "compounds"
	TableMethods   = "methods"
	TableClients   = "clients"
	TableEmployees = "employees"
)

// searchPrefix marks columns holding search expressions.
const searchPrefix = "Search"

// Schemas returns the declared reference table schemas.
func Schemas() map[string]tablestore.Schema {
	search := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s %d", searchPrefix, i+1)
		}
		return out
	}
	cols := func(names ...string) []string { return names }

	return map[string]tablestore.Schema{
		TableStrain:    tablestore.TextSchema(append(cols("species", "strain"), search(3)...)...),
		TableCompounds: tablestore.TextSchema("compound", "Alts"),
		TableMethods:   tablestore.TextSchema(append(cols("method_code", "method"), search(3)...)...),
		TableClients:   tablestore.TextSchema(append(cols("scrape", "alt 1", "alt 2", "client_code", "client"), search(5)...)...),
		TableEmployees: tablestore.TextSchema(append(cols("status", "employee"), search(2)...)...),
	}
}

// Catalog matches text against reference tables held in a store.
type Catalog struct {
	store  *tablestore.Store
	logger *zap.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// New wraps a store opened with Schemas.
func New(store *tablestore.Store, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		store:    store,
		logger:   logger.Named("catalog"),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Store returns the underlying reference store.
func (c *Catalog) Store() *tablestore.Store { return c.store }

// pattern compiles a search expression. A literal " or " becomes regex
// alternation and matching ignores case. Expressions that are not valid
// RE2 are matched literally.
func (c *Catalog) pattern(expr string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.patterns[expr]; ok {
		return re
	}
	src := strings.ReplaceAll(expr, " or ", "|")
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		c.logger.Warn("search expression is not a valid regex, matching literally",
			zap.String("expr", expr), zap.Error(err))
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(src))
	}
	c.patterns[expr] = re
	return re
}

// searchColumns lists the search columns present in row, in name order.
// Tables are opened with ExpandFields so columns past the declared ones
// are included.
func searchColumns(row tablestore.Row) []string {
	var cols []string
	for name := range row {
		if strings.HasPrefix(name, searchPrefix) {
			cols = append(cols, name)
		}
	}
	sort.Strings(cols)
	return cols
}

// hasSearch reports whether row carries at least one search expression.
func hasSearch(row tablestore.Row) bool {
	for _, name := range searchColumns(row) {
		if expr, ok := row.Get(name).Text(); ok && expr != "" {
			return true
		}
	}
	return false
}

// rowMatches requires every non-null search column of row to match text.
// A row with no search expressions matches.
func (c *Catalog) rowMatches(row tablestore.Row, text string) bool {
	for _, name := range searchColumns(row) {
		expr, ok := row.Get(name).Text()
		if !ok || expr == "" {
			continue
		}
		if !c.pattern(expr).MatchString(text) {
			return false
		}
	}
	return true
}

// combinatorial returns the key field of every row whose search
// expressions all match text, in table order without duplicates.
func (c *Catalog) combinatorial(rows []tablestore.Row, key, text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		val, ok := row.Get(key).Text()
		if !ok || seen[val] {
			continue
		}
		if c.rowMatches(row, text) {
			seen[val] = true
			out = append(out, val)
		}
	}
	return out
}

// Combinatorial runs the multi-expression match over a whole table.
func (c *Catalog) Combinatorial(ctx context.Context, table, key, text string) ([]string, error) {
	rows, err := c.store.Rows(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.combinatorial(rows, key, text), nil
}

func textField(row tablestore.Row, name string) string {
	s, _ := row.Get(name).Text()
	return s
}

func sortFold(in []string) []string {
	sort.SliceStable(in, func(i, j int) bool {
		return strings.ToLower(in[i]) < strings.ToLower(in[j])
	})
	return in
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open opens the reference tables on backend and wraps them. Columns the
// backend carries beyond Schemas are kept, so extra search expressions take
// part in matching and curator columns survive a Save.
func Open(ctx context.Context, backend tablestore.Backend, logger *zap.Logger) (*Catalog, error) {
	store, err := tablestore.Open(ctx, backend, Schemas(), tablestore.Options{Logger: logger, ExpandFields: true})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return New(store, logger), nil
}

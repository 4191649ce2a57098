package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// MatchClients returns every client whose search expressions match text.
func (c *Catalog) MatchClients(ctx context.Context, text string) ([]string, error) {
	return c.Combinatorial(ctx, TableClients, "client", text)
}

// MatchClientName resolves text to one client. When several clients match
// the first wins and a warning is logged.
func (c *Catalog) MatchClientName(ctx context.Context, text string) (string, bool, error) {
	matches, err := c.MatchClients(ctx, text)
	if err != nil {
		return "", false, err
	}
	return c.first("client", matches)
}

func (c *Catalog) first(kind string, matches []string) (string, bool, error) {
	switch len(matches) {
	case 0:
		return "", false, nil
	case 1:
		return matches[0], true, nil
	}
	c.logger.Warn("more than one match, using first",
		zap.String("kind", kind), zap.Strings("matches", matches))
	return matches[0], true, nil
}

// MatchClientCode resolves a filename client code to a client name by
// exact case-insensitive comparison with the scrape and alt columns.
func (c *Catalog) MatchClientCode(ctx context.Context, code string) (string, bool, error) {
	if code == "" {
		return "", false, nil
	}
	rows, err := c.store.Rows(ctx, TableClients)
	if err != nil {
		return "", false, err
	}
	var matches []string
	for _, col := range []string{"scrape", "alt 1", "alt 2"} {
		for _, row := range rows {
			if v := textField(row, col); v != "" && strings.EqualFold(v, code) {
				if client := textField(row, "client"); client != "" {
					matches = append(matches, client)
				}
			}
		}
	}
	return c.first("client code", matches)
}

// ClientCode returns the canonical code of a client.
func (c *Catalog) ClientCode(ctx context.Context, client string) (string, bool, error) {
	rows, err := c.store.Filter(ctx, TableClients, tablestore.KeyOf("client", client))
	if err != nil {
		return "", false, err
	}
	var codes []string
	for _, row := range rows {
		if code := textField(row, "client_code"); code != "" {
			codes = append(codes, code)
		}
	}
	return c.first("client code", uniqueInOrder(codes))
}

// MethodCode returns the code of a method.
func (c *Catalog) MethodCode(ctx context.Context, method string) (string, bool, error) {
	rows, err := c.store.Filter(ctx, TableMethods, tablestore.KeyOf("method", method))
	if err != nil {
		return "", false, err
	}
	var codes []string
	for _, row := range rows {
		if code := textField(row, "method_code"); code != "" {
			codes = append(codes, code)
		}
	}
	return c.first("method code", codes)
}

// MatchMethodCode returns the methods registered under code, ignoring case.
func (c *Catalog) MatchMethodCode(ctx context.Context, code string) ([]string, error) {
	rows, err := c.store.Rows(ctx, TableMethods)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		if strings.EqualFold(textField(row, "method_code"), code) {
			out = append(out, textField(row, "method"))
		}
	}
	return uniqueInOrder(out), nil
}

// MatchMethods finds methods mentioned in text. Hyphens are read as spaces.
func (c *Catalog) MatchMethods(ctx context.Context, text string) ([]string, error) {
	return c.Combinatorial(ctx, TableMethods, "method", strings.ReplaceAll(text, "-", " "))
}

// MatchCompounds finds compounds mentioned in text. A row with search
// expressions matches like the other reference tables; otherwise its name
// or alternate name must occur in text.
func (c *Catalog) MatchCompounds(ctx context.Context, text string) ([]string, error) {
	rows, err := c.store.Rows(ctx, TableCompounds)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	var out []string
	for _, row := range rows {
		compound := textField(row, "compound")
		if compound == "" {
			continue
		}
		if hasSearch(row) {
			if c.rowMatches(row, text) {
				out = append(out, compound)
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(compound)) {
			out = append(out, compound)
			continue
		}
		if alt := textField(row, "Alts"); alt != "" && strings.Contains(lower, strings.ToLower(alt)) {
			out = append(out, compound)
		}
	}
	return uniqueSorted(out), nil
}

// MatchStrain matches strain text, restricted to species when given. A
// study on both species considers rat, mouse and combined rows.
func (c *Catalog) MatchStrain(ctx context.Context, text, species string) ([]string, error) {
	var key tablestore.Key
	switch species {
	case "":
	case records.RatAndMouse:
		key = tablestore.Key{"species": tablestore.In(records.Rat, records.Mouse, records.RatAndMouse)}
	default:
		key = tablestore.KeyOf("species", species)
	}
	rows, err := c.store.Filter(ctx, TableStrain, key)
	if err != nil {
		return nil, err
	}
	return c.combinatorial(rows, "strain", text), nil
}

// MatchEmployee finds catalog employees named in text.
func (c *Catalog) MatchEmployee(ctx context.Context, text string) ([]string, error) {
	return c.Combinatorial(ctx, TableEmployees, "employee", text)
}

func uniqueInOrder(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

package catalog

import (
	"context"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// PossibleMethods lists method names that have a code.
func (c *Catalog) PossibleMethods(ctx context.Context) ([]string, error) {
	rows, err := c.store.Rows(ctx, TableMethods)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		if textField(row, "method_code") != "" {
			out = append(out, textField(row, "method"))
		}
	}
	return uniqueSorted(out), nil
}

// PossibleStrains lists known strains.
func (c *Catalog) PossibleStrains(ctx context.Context) ([]string, error) {
	rows, err := c.store.Rows(ctx, TableStrain)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		out = append(out, textField(row, "strain"))
	}
	return uniqueSorted(out), nil
}

// PossibleEmployees lists employees with the given status, e.g. "current".
func (c *Catalog) PossibleEmployees(ctx context.Context, status string) ([]string, error) {
	rows, err := c.store.Filter(ctx, TableEmployees, tablestore.KeyOf("status", status))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		out = append(out, textField(row, "employee"))
	}
	return sortFold(uniqueInOrder(out)), nil
}

// AddClient registers a client under code, using the name as its search
// expression. The change is persisted on Save.
func (c *Catalog) AddClient(ctx context.Context, client, code string, overwrite bool) (tablestore.WriteOutcome, error) {
	return c.store.Write(ctx, TableClients, tablestore.Row{
		"scrape":      tablestore.TextValue(code),
		"client_code": tablestore.TextValue(code),
		"client":      tablestore.TextValue(client),
		"Search 1":    tablestore.TextValue(client),
	}, tablestore.KeyOf("client_code", code, "client", client), overwrite)
}

// AddMethod registers a method under code.
func (c *Catalog) AddMethod(ctx context.Context, method, code string, overwrite bool) (tablestore.WriteOutcome, error) {
	return c.store.Write(ctx, TableMethods, tablestore.Row{
		"method_code": tablestore.TextValue(code),
		"method":      tablestore.TextValue(method),
		"Search 1":    tablestore.TextValue(method),
	}, tablestore.KeyOf("method_code", code, "method", method), overwrite)
}

// Save persists modified reference tables.
func (c *Catalog) Save(ctx context.Context) error {
	return c.store.SaveAll(ctx)
}

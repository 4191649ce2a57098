package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

func openTemp(t *testing.T) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	b, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestWriteReadPreservesOrderAndEmptyCells(t *testing.T) {
	ctx := context.Background()
	b, _ := openTemp(t)

	header := []string{"scrape", "alt 1", "client_code", `odd"name`}
	records := [][]string{
		{"Pfizer", "", "PFZ", "1"},
		{"Merck", "MSD", "MRK", ""},
	}
	require.NoError(t, b.WriteTable(ctx, "clients", header, records))

	gotHeader, gotRecords, err := b.ReadTable(ctx, "clients")
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, records, gotRecords)

	// rewrite replaces the whole table
	require.NoError(t, b.WriteTable(ctx, "clients", []string{"scrape"}, [][]string{{"Lilly"}}))
	gotHeader, gotRecords, err = b.ReadTable(ctx, "clients")
	require.NoError(t, err)
	assert.Equal(t, []string{"scrape"}, gotHeader)
	assert.Equal(t, [][]string{{"Lilly"}}, gotRecords)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := openTemp(t)

	require.NoError(t, b.WriteTable(ctx, "b", []string{"x"}, nil))
	require.NoError(t, b.WriteTable(ctx, "a", []string{"x"}, nil))
	tables, err := b.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tables)

	require.NoError(t, b.DeleteTable(ctx, "a"))
	tables, err = b.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, tables)

	header, records, err := b.ReadTable(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, records)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	b, path := openTemp(t)
	schema := map[string]tablestore.Schema{
		"study_methods": {
			{Name: "study_id", Type: tablestore.Text},
			{Name: "method", Type: tablestore.Text},
		},
	}
	s, err := tablestore.Open(ctx, b, schema, tablestore.Options{})
	require.NoError(t, err)
	for _, m := range []string{"Ames", "Micronucleus"} {
		_, err := s.Write(ctx, "study_methods", tablestore.Row{
			"study_id": tablestore.TextValue("PFZ_01_14MAR24"),
			"method":   tablestore.TextValue(m),
		}, nil, false)
		require.NoError(t, err)
	}
	require.NoError(t, s.SaveAll(ctx))
	require.NoError(t, b.Close())

	b2, err := Open(ctx, path)
	require.NoError(t, err)
	defer b2.Close()
	s2, err := tablestore.Open(ctx, b2, schema, tablestore.Options{})
	require.NoError(t, err)
	rows, err := s2.Filter(ctx, "study_methods", tablestore.KeyOf("method", "Ames"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

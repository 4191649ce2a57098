package csvdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

func TestWriteReadList(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	header := []string{"filepath", "success"}
	records := [][]string{{`C:\docs\a, "quoted".docx`, "true"}, {"b.docx", ""}}
	require.NoError(t, b.WriteTable(ctx, "scraped_files", header, records))

	tables, err := b.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"scraped_files"}, tables)

	gotHeader, gotRecords, err := b.ReadTable(ctx, "scraped_files")
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, records, gotRecords)

	require.NoError(t, b.DeleteTable(ctx, "scraped_files"))
	require.NoError(t, b.DeleteTable(ctx, "scraped_files"))
	tables, err = b.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestReadMissingTableIsEmpty(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	header, records, err := b.ReadTable(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, records)
}

func TestReadsBOMAndShortRows(t *testing.T) {
	dir := t.TempDir()
	content := "\ufeffclient,client_code,Search 1\nPfizer,PFZ\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clients.csv"), []byte(content), 0o644))

	b, err := New(dir)
	require.NoError(t, err)
	header, records, err := b.ReadTable(context.Background(), "clients")
	require.NoError(t, err)
	assert.Equal(t, []string{"client", "client_code", "Search 1"}, header)
	assert.Equal(t, [][]string{{"Pfizer", "PFZ", ""}}, records)
}

func TestStoreOverCSVDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	schema := map[string]tablestore.Schema{
		"documents": {
			{Name: "filepath", Type: tablestore.Text},
			{Name: "last_modified", Type: tablestore.Timestamp},
			{Name: "version", Type: tablestore.Float},
		},
	}

	b, err := New(dir)
	require.NoError(t, err)
	s, err := tablestore.Open(ctx, b, schema, tablestore.Options{})
	require.NoError(t, err)

	mod := time.Date(2023, 12, 5, 10, 0, 0, 1, time.UTC)
	_, err = s.Write(ctx, "documents", tablestore.Row{
		"filepath":      tablestore.TextValue("x.docx"),
		"last_modified": tablestore.TimeValue(mod),
		"version":       tablestore.FloatValue(2),
	}, tablestore.KeyOf("filepath", "x.docx"), false)
	require.NoError(t, err)
	require.NoError(t, s.SaveAll(ctx))
	require.FileExists(t, filepath.Join(dir, "documents.csv"))

	b2, err := New(dir)
	require.NoError(t, err)
	s2, err := tablestore.Open(ctx, b2, schema, tablestore.Options{})
	require.NoError(t, err)
	rows, err := s2.Rows(ctx, "documents")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got, _ := rows[0]["last_modified"].Time()
	assert.True(t, got.Equal(mod))
	v, _ := rows[0]["version"].Float()
	assert.Equal(t, 2.0, v)
}

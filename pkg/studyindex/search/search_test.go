package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/memtable"
)

func str(s string) *string { return &s }

func date(y int, m time.Month) *time.Time {
	t := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func seeded(t *testing.T) *Searcher {
	t.Helper()
	ctx := context.Background()
	s, err := tablestore.Open(ctx, memtable.New(), records.Schemas(), tablestore.Options{})
	require.NoError(t, err)

	studies := []records.Study{
		{StudyID: "PFZ_01_01MAR22", StudyDate: date(2022, 3), Client: str("Pfizer"), Species: str(records.Rat), Sex: str(records.Males),
			ProposalID: str("PFZ_01_01MAR22_P00"), ReportID: str("PFZ_01_01MAR22_R00")},
		{StudyID: "MRK_02_01JAN21", StudyDate: date(2021, 1), Client: str("merck"), Species: str(records.RatAndMouse), Sex: str(records.Both),
			ProposalID: str("MRK_02_01JAN21_P00")},
		{StudyID: "MRK_03_01JUN23", StudyDate: date(2023, 6), Client: str("merck"), Species: str(records.Mouse), Sex: str(records.Females)},
		{StudyID: "UNKNOWN_00_01JAN20", Client: str("Acme")},
	}
	for _, st := range studies {
		_, err := s.Write(ctx, records.TableStudies, st.Row(), nil, false)
		require.NoError(t, err)
	}
	link := func(at records.AssociationTable, id, v string) {
		_, err := s.Write(ctx, at.Table, records.Association{StudyID: id, Value: v}.Row(at), nil, false)
		require.NoError(t, err)
	}
	link(records.MethodsTable, "PFZ_01_01MAR22", "Forced swim test")
	link(records.MethodsTable, "PFZ_01_01MAR22", "Open field")
	link(records.MethodsTable, "MRK_02_01JAN21", "Forced swim test")
	link(records.CompoundsTable, "MRK_02_01JAN21", "Diazepam")
	link(records.StrainsTable, "MRK_03_01JUN23", "C57BL/6")

	for id, path := range map[string]string{
		"PFZ_01_01MAR22_P00": "/docs/pfz/proposal.docx",
		"PFZ_01_01MAR22_R00": "/docs/pfz/report.docx",
		"MRK_02_01JAN21_P00": "/docs/mrk/proposal.docx",
	} {
		_, err := s.Write(ctx, records.TableDocuments, records.Document{DocumentID: id, Filepath: path}.Row(), nil, false)
		require.NoError(t, err)
	}
	return New(s)
}

func ids(ms []Match) []string {
	out := []string{}
	for _, m := range ms {
		out = append(out, m.Study.StudyID)
	}
	return out
}

func TestSearch(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		c    Criteria
		want []string
	}{
		{"everything by date", Criteria{}, []string{"MRK_02_01JAN21", "PFZ_01_01MAR22", "MRK_03_01JUN23", "UNKNOWN_00_01JAN20"}},
		{"method", Criteria{Methods: []string{"Forced swim test"}}, []string{"MRK_02_01JAN21", "PFZ_01_01MAR22"}},
		{"all methods required", Criteria{Methods: []string{"Forced swim test", "Open field"}}, []string{"PFZ_01_01MAR22"}},
		{"compound", Criteria{Compounds: []string{"Diazepam"}}, []string{"MRK_02_01JAN21"}},
		{"client", Criteria{Client: "merck"}, []string{"MRK_02_01JAN21", "MRK_03_01JUN23"}},
		{"males include both", Criteria{Sex: records.Males}, []string{"MRK_02_01JAN21", "PFZ_01_01MAR22"}},
		{"both is exact", Criteria{Sex: records.Both}, []string{"MRK_02_01JAN21"}},
		{"mouse includes rat and mouse", Criteria{Species: records.Mouse}, []string{"MRK_02_01JAN21", "MRK_03_01JUN23"}},
		{"strain", Criteria{Strain: "C57BL/6"}, []string{"MRK_03_01JUN23"}},
		{"year range", Criteria{FromYear: 2022, ToYear: 2023}, []string{"PFZ_01_01MAR22", "MRK_03_01JUN23"}},
		{"open upper bound", Criteria{FromYear: 2023}, []string{"MRK_03_01JUN23"}},
		{"no match", Criteria{Client: "Pfizer", Species: records.Mouse}, []string{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Search(ctx, tc.c)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestSearchJoinsDocumentPaths(t *testing.T) {
	got, err := seeded(t).Search(context.Background(), Criteria{Species: records.Rat})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/docs/mrk/proposal.docx", got[0].Proposal)
	assert.Empty(t, got[0].Report)
	assert.Equal(t, "/docs/pfz/proposal.docx", got[1].Proposal)
	assert.Equal(t, "/docs/pfz/report.docx", got[1].Report)
}

func TestFacets(t *testing.T) {
	f, err := seeded(t).Facets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Forced swim test", "Open field"}, f.Methods)
	assert.Equal(t, []string{"Diazepam"}, f.Compounds)
	assert.Equal(t, []string{"Acme", "merck", "Pfizer"}, f.Clients)
	assert.Equal(t, []string{"C57BL/6"}, f.Strains)
	assert.Equal(t, 2021, f.MinYear)
	assert.Equal(t, 2023, f.MaxYear)
}

func TestExpansions(t *testing.T) {
	assert.Equal(t, []string{"females", "both"}, SexValues(records.Females))
	assert.Equal(t, []string{"rat", "rat and mouse"}, SpeciesValues(records.Rat))
	assert.Equal(t, []string{"rat and mouse"}, SpeciesValues(records.RatAndMouse))
}

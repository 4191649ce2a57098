package reconcile

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/extract"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/sections"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/memtable"
)

type clientCodes map[string]string

func (c clientCodes) ClientCode(_ context.Context, client string) (string, bool, error) {
	code, ok := c[client]
	return code, ok, nil
}

func newStore(t *testing.T, b *memtable.Backend) *tablestore.Store {
	t.Helper()
	s, err := tablestore.Open(context.Background(), b, records.Schemas(), tablestore.Options{})
	require.NoError(t, err)
	return s
}

func day(d int) time.Time { return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC) }

func candidate(path string, t records.DocType, mtime time.Time, methods ...string) *extract.Candidate {
	number := 7
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	client := "Pfizer NJ"
	return &extract.Candidate{
		Filepath:     path,
		Directory:    "/data",
		DocumentName: path,
		Ext:          ".docx",
		LastModified: mtime,
		Created:      mtime,
		StudyID:      "PFZ_07_14MAR24",
		StudyNumber:  &number,
		StudyDate:    &date,
		DocType:      t,
		Client:       &client,
		Methods:      methods,
		People:       map[string]string{"project manager": "Jane Doe"},
		Structure:    sections.StrategyHeadings,
	}
}

func values(t *testing.T, s *tablestore.Store, at records.AssociationTable) []string {
	t.Helper()
	rows, err := s.Filter(context.Background(), at.Table, tablestore.KeyOf("study_id", "PFZ_07_14MAR24"))
	require.NoError(t, err)
	var out []string
	for _, row := range rows {
		v, _ := row.Get(at.Field).Text()
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func TestApplyCreatesStudy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	c := candidate("/data/PFZ_07_14MAR24_FST.docx", records.Proposal, day(15), "Forced swim test")
	issued := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	c.IssueDate = &issued
	c.Compounds = []string{"Diazepam"}

	res, err := r.Apply(ctx, c, Options{})
	require.NoError(t, err)
	assert.Equal(t, DocumentInserted, res.Document)
	assert.Equal(t, StudyCreated, res.Study)
	assert.Equal(t, "PFZ_07_14MAR24_P00", res.DocumentID)
	assert.Equal(t, []string{"Forced swim test"}, res.Added[records.TableStudyMethods])

	rows, err := s.Filter(ctx, records.TableStudies, tablestore.KeyOf("study_id", "PFZ_07_14MAR24"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	study, err := records.StudyFromRow(rows[0])
	require.NoError(t, err)
	require.NotNil(t, study.ProposalID)
	assert.Equal(t, "PFZ_07_14MAR24_P00", *study.ProposalID)
	require.NotNil(t, study.ProposalIssueDate)
	assert.True(t, study.ProposalIssueDate.Equal(issued))
	assert.Nil(t, study.ReportID)
	assert.Equal(t, "Pfizer NJ", *study.Client)

	assert.Equal(t, []string{"Diazepam"}, values(t, s, records.CompoundsTable))
	emp, err := s.Filter(ctx, records.TableStudyEmployees, tablestore.KeyOf("role", "project manager"))
	require.NoError(t, err)
	require.Len(t, emp, 1)
	name, _ := emp[0].Get("employee").Text()
	assert.Equal(t, "Jane Doe", name)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	_, err := r.Apply(ctx, candidate("/data/a.docx", records.Report, day(1), "A", "B"), Options{})
	require.NoError(t, err)
	res, err := r.Apply(ctx, candidate("/data/a.docx", records.Report, day(1), "A", "B"), Options{})
	require.NoError(t, err)
	assert.Equal(t, DocumentUnchanged, res.Document)
	assert.Equal(t, StudySkipped, res.Study)
	assert.Equal(t, "PFZ_07_14MAR24_R00", res.DocumentID)

	docs, err := s.Rows(ctx, records.TableDocuments)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, []string{"A", "B"}, values(t, s, records.MethodsTable))

	// A rescrape rewrites the document but keeps its id and number.
	res, err = r.Apply(ctx, candidate("/data/a.docx", records.Report, day(1), "A", "B"), Options{Rescrape: true})
	require.NoError(t, err)
	assert.Equal(t, DocumentUpdated, res.Document)
	assert.Equal(t, StudyUpdated, res.Study)
	assert.Equal(t, "PFZ_07_14MAR24_R00", res.DocumentID)
	assert.Empty(t, res.Changes)
	assert.Empty(t, res.Added)
}

func TestReconcileLists(t *testing.T) {
	for _, tc := range []struct {
		name      string
		deleteOld bool
		want      []string
		removed   []string
	}{
		{name: "keep old", deleteOld: false, want: []string{"A", "B", "C"}},
		{name: "delete old", deleteOld: true, want: []string{"B", "C"}, removed: []string{"A"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, memtable.New())
			r := New(s, nil, nil)

			_, err := r.Apply(ctx, candidate("/data/v1.docx", records.Report, day(1), "A", "B"), Options{})
			require.NoError(t, err)
			res, err := r.Apply(ctx, candidate("/data/v2.docx", records.Report, day(2), "B", "C"),
				Options{DeleteOld: tc.deleteOld})
			require.NoError(t, err)

			assert.Equal(t, "PFZ_07_14MAR24_R01", res.DocumentID)
			assert.Equal(t, StudyUpdated, res.Study)
			assert.Equal(t, []string{"C"}, res.Added[records.TableStudyMethods])
			assert.Equal(t, tc.removed, res.Removed[records.TableStudyMethods])
			assert.Equal(t, tc.want, values(t, s, records.MethodsTable))
		})
	}
}

func TestUnstructuredNeverDeletes(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	_, err := r.Apply(ctx, candidate("/data/v1.docx", records.Report, day(1), "A", "B"), Options{})
	require.NoError(t, err)
	c := candidate("/data/v2.docx", records.Report, day(2))
	c.Structure = ""
	_, err = r.Apply(ctx, c, Options{DeleteOld: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, values(t, s, records.MethodsTable))
}

func TestVersionBeatsModificationTime(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	v1 := candidate("/data/R1.docx", records.Report, day(5), "A")
	v1.Version = 1
	_, err := r.Apply(ctx, v1, Options{})
	require.NoError(t, err)

	v2 := candidate("/data/R2.docx", records.Report, day(2), "B")
	v2.Version = 2
	latest, err := r.IsLatest(ctx, v2)
	require.NoError(t, err)
	assert.True(t, latest)

	// An unversioned copy falls back to the modification time.
	copyOf := candidate("/data/copy.docx", records.Report, day(3), "C")
	latest, err = r.IsLatest(ctx, copyOf)
	require.NoError(t, err)
	assert.False(t, latest)

	res, err := r.Apply(ctx, copyOf, Options{})
	require.NoError(t, err)
	assert.Equal(t, DocumentInserted, res.Document)
	assert.Equal(t, StudyUnchanged, res.Study)
	assert.Equal(t, []string{"A"}, values(t, s, records.MethodsTable))
}

func TestDocumentNumbering(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	ids := []string{}
	for i, tc := range []struct {
		path string
		t    records.DocType
	}{
		{"/d/p1.docx", records.Proposal},
		{"/d/p2.docx", records.Proposal},
		{"/d/co.docx", records.ChangeOrder},
		{"/d/r1.docx", records.Report},
	} {
		res, err := r.Apply(ctx, candidate(tc.path, tc.t, day(i+1)), Options{})
		require.NoError(t, err)
		ids = append(ids, res.DocumentID)
	}
	assert.Equal(t, []string{
		"PFZ_07_14MAR24_P00", "PFZ_07_14MAR24_P01", "PFZ_07_14MAR24_C00", "PFZ_07_14MAR24_R00",
	}, ids)

	n, err := r.NextDocumentNumber(ctx, "PFZ_07_14MAR24", records.Proposal)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestChangeOrderSkipsStudy(t *testing.T) {
	s := newStore(t, memtable.New())
	res, err := New(s, nil, nil).Apply(context.Background(),
		candidate("/d/co.docx", records.ChangeOrder, day(1), "A"), Options{})
	require.NoError(t, err)
	assert.Equal(t, StudySkipped, res.Study)
	studies, err := s.Rows(context.Background(), records.TableStudies)
	require.NoError(t, err)
	assert.Empty(t, studies)
}

func TestEmployeeReplacedPerRole(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	_, err := r.Apply(ctx, candidate("/d/r1.docx", records.Report, day(1)), Options{})
	require.NoError(t, err)
	c := candidate("/d/r2.docx", records.Report, day(2))
	c.People = map[string]string{"project manager": "Sam Poe"}
	_, err = r.Apply(ctx, c, Options{})
	require.NoError(t, err)

	rows, err := s.Rows(ctx, records.TableStudyEmployees)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	a, err := records.AssignmentFromRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, "Sam Poe", a.Employee)
}

func TestInferStudyID(t *testing.T) {
	ctx := context.Background()
	b := memtable.New()
	b.Seed(records.TableStudies, []string{"study_id", "study_number"}, [][]string{
		{"MRK_03_01JAN24", "3"},
		{"MRK_04_05FEB24_NOR", "4"},
		{"PFZ_09_05FEB24", "9"},
	})
	s := newStore(t, b)
	r := New(s, clientCodes{"Merck": "MRK"}, nil).
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })

	merck := "Merck"
	at := func(d time.Time) *extract.Candidate {
		return &extract.Candidate{Client: &merck, StudyDate: &d}
	}

	id, n, _, err := r.InferStudyID(ctx, at(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, "MRK_04_05FEB24_NOR", id)
	assert.Equal(t, 4, n)

	id, n, _, err = r.InferStudyID(ctx, at(time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, "MRK_05_10SEPT24", id)
	assert.Equal(t, 5, n)

	other := "Globex"
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id, n, _, err = r.InferStudyID(ctx, &extract.Candidate{Client: &other, Created: created})
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN_00_01MAR24", id)
	assert.Equal(t, 0, n)
}

func TestApplyInfersMissingStudyID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, clientCodes{"Merck": "MRK"}, nil)

	merck := "Merck"
	issued := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	c := &extract.Candidate{
		Filepath:     "/d/untitled.docx",
		LastModified: day(1),
		Created:      day(1),
		Client:       &merck,
		StudyDate:    &issued,
		DocType:      records.Proposal,
		Structure:    sections.StrategyTOC,
	}
	res, err := r.Apply(ctx, c, Options{})
	require.NoError(t, err)
	assert.Equal(t, "MRK_00_02APR24", res.StudyID)
	assert.Equal(t, "MRK_00_02APR24_P00", res.DocumentID)
	require.NotNil(t, c.StudyNumber)
	assert.Equal(t, 0, *c.StudyNumber)
}

func TestFailedStudyWriteRollsBackDocument(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memtable.New())
	r := New(s, nil, nil)

	_, err := r.Apply(ctx, candidate("/data/a.docx", records.Report, day(1), "A"), Options{})
	require.NoError(t, err)
	// A second row under the same study id makes every study update fail.
	_, err = s.Write(ctx, records.TableStudies, tablestore.Row{
		"study_id": tablestore.TextValue("PFZ_07_14MAR24"),
	}, nil, false)
	require.NoError(t, err)

	docFor := func(path string) []tablestore.Row {
		rows, err := s.Filter(ctx, records.TableDocuments, tablestore.KeyOf("filepath", path))
		require.NoError(t, err)
		return rows
	}

	// Update of a stored row is reverted.
	_, err = r.Apply(ctx, candidate("/data/a.docx", records.Report, day(5), "A"), Options{})
	require.ErrorIs(t, err, tablestore.ErrMultipleRows)
	rows := docFor("/data/a.docx")
	require.Len(t, rows, 1)
	stored, err := records.DocumentFromRow(rows[0])
	require.NoError(t, err)
	assert.True(t, stored.LastModified.Equal(day(1)))

	// A newly inserted row is removed.
	_, err = r.Apply(ctx, candidate("/data/b.docx", records.Proposal, day(2), "B"), Options{})
	require.ErrorIs(t, err, tablestore.ErrMultipleRows)
	assert.Empty(t, docFor("/data/b.docx"))

	// Once the study table is sound the same file is picked up again.
	_, err = s.Delete(ctx, records.TableStudies, tablestore.KeyOf("study_id", "PFZ_07_14MAR24"))
	require.NoError(t, err)
	res, err := r.Apply(ctx, candidate("/data/b.docx", records.Proposal, day(2), "B"), Options{})
	require.NoError(t, err)
	assert.Equal(t, DocumentInserted, res.Document)
	assert.Equal(t, StudyCreated, res.Study)
	assert.Equal(t, "PFZ_07_14MAR24_P00", res.DocumentID)
}

// Package reconcile merges one extracted document into the study index:
// document numbering, study creation, latest-document updates and
// association reconciliation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/extract"
	"github.com/cognicore/studyindex/pkg/studyindex/filename"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// UnknownClient is the client code of inferred study ids whose client is
// not in the catalog.
const UnknownClient = "UNKNOWN"

// Clients maps a client name to its catalog code.
type Clients interface {
	ClientCode(ctx context.Context, client string) (string, bool, error)
}

// DocOutcome is what happened to the documents row.
type DocOutcome string

const (
	DocumentInserted  DocOutcome = "inserted"
	DocumentUpdated   DocOutcome = "updated"
	DocumentUnchanged DocOutcome = "unchanged"
)

// StudyOutcome is what happened to the studies row.
type StudyOutcome string

const (
	StudyCreated StudyOutcome = "created"
	StudyUpdated StudyOutcome = "updated"
	// StudyUnchanged means a later document of the same type is stored.
	StudyUnchanged StudyOutcome = "unchanged"
	// StudySkipped means the document was already ingested or is neither a
	// proposal nor a report.
	StudySkipped StudyOutcome = "skipped"
)

// Options controls one reconciliation.
type Options struct {
	// Rescrape updates stored documents even when the file is unchanged.
	Rescrape bool
	// DeleteOld removes stored associations the document no longer yields.
	DeleteOld bool
}

// Result describes the writes made for one document.
type Result struct {
	StudyID    string
	DocumentID string
	Document   DocOutcome
	Study      StudyOutcome
	// Changes holds the updated study fields.
	Changes map[string]tablestore.Change
	// Added and Removed hold association values by table.
	Added   map[string][]string
	Removed map[string][]string
}

func (r *Result) added(table, value string) {
	if r.Added == nil {
		r.Added = make(map[string][]string)
	}
	r.Added[table] = append(r.Added[table], value)
}

// Reconciler writes candidates into a store holding records.Schemas.
type Reconciler struct {
	store   *tablestore.Store
	clients Clients
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Reconciler. clients may be nil, in which case inferred
// study ids use UnknownClient.
func New(store *tablestore.Store, clients Clients, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, clients: clients, logger: logger.Named("reconcile"), now: time.Now}
}

// WithClock returns a copy that resolves two-digit years against now.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	cp := *r
	cp.now = now
	return &cp
}

// DocumentID formats a document id such as PFZ_07_14MAR24_P01.
func DocumentID(studyID string, t records.DocType, number int) string {
	return fmt.Sprintf("%s_%s%02d", studyID, t.Letter(), number)
}

// Apply reconciles one candidate. A candidate without a study id gets an
// inferred one first.
func (r *Reconciler) Apply(ctx context.Context, c *extract.Candidate, opts Options) (Result, error) {
	if c.StudyID == "" {
		id, number, date, err := r.InferStudyID(ctx, c)
		if err != nil {
			return Result{}, err
		}
		c.StudyID = id
		c.StudyNumber = &number
		if c.StudyDate == nil {
			c.StudyDate = &date
		}
	}
	res := Result{StudyID: c.StudyID}

	docID, outcome, undo, err := r.upsertDocument(ctx, c, opts.Rescrape)
	if err != nil {
		return res, err
	}
	res.DocumentID, res.Document = docID, outcome

	if err := r.applyStudy(ctx, c, docID, outcome, opts, &res); err != nil {
		// A failed study write leaves no trace of the document.
		if undo != nil {
			if uerr := undo(ctx); uerr != nil {
				return res, errors.Join(err, fmt.Errorf("roll back document %s: %w", c.Filepath, uerr))
			}
			r.logger.Warn("document write rolled back",
				zap.String("filepath", c.Filepath), zap.Error(err))
		}
		return res, err
	}
	return res, nil
}

func (r *Reconciler) applyStudy(ctx context.Context, c *extract.Candidate, docID string, outcome DocOutcome, opts Options, res *Result) error {
	if outcome == DocumentUnchanged || (c.DocType != records.Proposal && c.DocType != records.Report) {
		res.Study = StudySkipped
		return nil
	}

	existing, err := r.store.Filter(ctx, records.TableStudies, tablestore.KeyOf("study_id", c.StudyID))
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if err := r.createStudy(ctx, c, docID, res); err != nil {
			return err
		}
		res.Study = StudyCreated
		r.logger.Info("study created", zap.String("study_id", c.StudyID), zap.String("document_id", docID))
		return nil
	}

	latest, err := r.IsLatest(ctx, c)
	if err != nil {
		return err
	}
	if !latest {
		res.Study = StudyUnchanged
		return nil
	}
	// A document without sections carries no association facts to retire.
	deleteOld := opts.DeleteOld && c.Structured()
	if err := r.updateStudy(ctx, c, docID, deleteOld, res); err != nil {
		return err
	}
	res.Study = StudyUpdated
	r.logger.Info("study updated",
		zap.String("study_id", c.StudyID),
		zap.String("document_id", docID),
		zap.Int("changed_fields", len(res.Changes)))
	return nil
}

// undoFunc reverts a documents row write.
type undoFunc func(ctx context.Context) error

// upsertDocument writes the documents row keyed by file path. A stored row
// is only rewritten when the file is newer or rescrape is set, and keeps
// its id and number. The returned undo restores the table to its state
// before the call; it is nil when nothing was written.
func (r *Reconciler) upsertDocument(ctx context.Context, c *extract.Candidate, rescrape bool) (string, DocOutcome, undoFunc, error) {
	key := tablestore.KeyOf("filepath", c.Filepath)
	rows, err := r.store.Filter(ctx, records.TableDocuments, key)
	if err != nil {
		return "", "", nil, err
	}
	doc := c.Document()

	switch len(rows) {
	case 0:
		n, err := r.NextDocumentNumber(ctx, doc.StudyID, doc.DocumentType)
		if err != nil {
			return "", "", nil, err
		}
		doc.DocumentNumber = n
		doc.DocumentID = DocumentID(doc.StudyID, doc.DocumentType, n)
		outcome, err := r.store.Write(ctx, records.TableDocuments, doc.Row(), key, false)
		if err != nil {
			return "", "", nil, err
		}
		if outcome != tablestore.Inserted {
			return "", "", nil, fmt.Errorf("write document %s: %s", c.Filepath, outcome)
		}
		undo := func(ctx context.Context) error {
			_, err := r.store.Delete(ctx, records.TableDocuments, key)
			return err
		}
		return doc.DocumentID, DocumentInserted, undo, nil

	case 1:
		stored, err := records.DocumentFromRow(rows[0])
		if err != nil {
			return "", "", nil, err
		}
		if !rescrape && !c.LastModified.After(stored.LastModified) {
			return stored.DocumentID, DocumentUnchanged, nil, nil
		}
		doc.DocumentNumber = stored.DocumentNumber
		doc.DocumentID = stored.DocumentID
		if doc.DocumentID == "" {
			doc.DocumentID = DocumentID(doc.StudyID, doc.DocumentType, doc.DocumentNumber)
		}
		if _, err := r.store.UpdateEntry(ctx, records.TableDocuments, key, doc.Row()); err != nil {
			return "", "", nil, err
		}
		previous := rows[0].Clone()
		undo := func(ctx context.Context) error {
			_, err := r.store.UpdateEntry(ctx, records.TableDocuments, key, previous)
			return err
		}
		return doc.DocumentID, DocumentUpdated, undo, nil
	}
	return "", "", nil, fmt.Errorf("document %s: %w", c.Filepath, tablestore.ErrMultipleRows)
}

// NextDocumentNumber is one more than the highest stored number for the
// study and type, or 0.
func (r *Reconciler) NextDocumentNumber(ctx context.Context, studyID string, t records.DocType) (int, error) {
	rows, err := r.store.Filter(ctx, records.TableDocuments,
		tablestore.KeyOf("study_id", studyID, "document_type", string(t)))
	if err != nil {
		return 0, err
	}
	next := 0
	for _, row := range rows {
		if n, ok := row.Get("document_number").Int(); ok && int(n)+1 > next {
			next = int(n) + 1
		}
	}
	return next, nil
}

// IsLatest compares the candidate with the other stored documents of the
// same study and type: by version when both sides have one, otherwise by
// modification time with ties going to the candidate.
func (r *Reconciler) IsLatest(ctx context.Context, c *extract.Candidate) (bool, error) {
	rows, err := r.store.Filter(ctx, records.TableDocuments,
		tablestore.KeyOf("study_id", c.StudyID, "document_type", string(c.DocType)))
	if err != nil {
		return false, err
	}
	var (
		others     int
		maxVersion float64
		maxMod     time.Time
	)
	for _, row := range rows {
		d, err := records.DocumentFromRow(row)
		if err != nil {
			return false, err
		}
		if d.Filepath == c.Filepath {
			continue
		}
		others++
		maxVersion = max(maxVersion, d.Version)
		if d.LastModified.After(maxMod) {
			maxMod = d.LastModified
		}
	}
	if others == 0 {
		return true, nil
	}
	if c.Version != 0 && maxVersion != 0 {
		if c.Version > maxVersion {
			return true, nil
		}
		if c.Version < maxVersion {
			return false, nil
		}
	}
	return !c.LastModified.Before(maxMod), nil
}

// InferStudyID builds an id for a document whose file name has none. The
// client code comes from the catalog, the date from the study date or the
// file time. An existing study of the same client and day is reused;
// otherwise the client's next sequence number is allocated.
func (r *Reconciler) InferStudyID(ctx context.Context, c *extract.Candidate) (string, int, time.Time, error) {
	code := UnknownClient
	if c.Client != nil && r.clients != nil {
		cc, ok, err := r.clients.ClientCode(ctx, *c.Client)
		if err != nil {
			return "", 0, time.Time{}, err
		}
		if ok {
			code = cc
		}
	}
	date := c.Created
	if c.StudyDate != nil {
		date = *c.StudyDate
	}

	rows, err := r.store.Rows(ctx, records.TableStudies)
	if err != nil {
		return "", 0, time.Time{}, err
	}
	next := 0
	for _, row := range rows {
		id, _ := row.Get("study_id").Text()
		parts := strings.Split(id, "_")
		if len(parts) < 3 || !strings.EqualFold(parts[0], code) {
			continue
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		next = max(next, n+1)
		if d, err := filename.ParseDate(parts[2], r.now()); err == nil && sameDay(d, date) {
			return id, n, d, nil
		}
	}
	return fmt.Sprintf("%s_%02d_%s", code, next, filename.FormatDate(date)), next, date, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// studyRecord maps the candidate onto a study, routing issue dates to the
// proposal or report columns.
func studyRecord(c *extract.Candidate, docID string) records.Study {
	s := records.Study{
		StudyID:     c.StudyID,
		StudyNumber: c.StudyNumber,
		StudyDate:   c.StudyDate,
		Client:      c.Client,
		Species:     c.Species,
		Sex:         c.Sex,
		Description: c.Description,
	}
	switch c.DocType {
	case records.Proposal:
		s.ProposalID = &docID
		s.ProposalIssueDate = c.IssueDate
		s.ProposalLatestReissue = c.LatestReissue
	case records.Report:
		s.ReportID = &docID
		s.ReportIssueDate = c.IssueDate
		s.ReportLatestReissue = c.LatestReissue
	}
	return s
}

func associations(c *extract.Candidate) []struct {
	table  records.AssociationTable
	values []string
} {
	return []struct {
		table  records.AssociationTable
		values []string
	}{
		{records.MethodsTable, c.Methods},
		{records.CompoundsTable, c.Compounds},
		{records.StrainsTable, c.Strains},
	}
}

func (r *Reconciler) createStudy(ctx context.Context, c *extract.Candidate, docID string, res *Result) error {
	study := studyRecord(c, docID)
	if _, err := r.store.Write(ctx, records.TableStudies, study.Row(), tablestore.KeyOf("study_id", c.StudyID), false); err != nil {
		return err
	}
	for _, a := range associations(c) {
		for _, v := range unique(a.values) {
			row := records.Association{StudyID: c.StudyID, Value: v}.Row(a.table)
			outcome, err := r.store.Write(ctx, a.table.Table, row, tablestore.KeyFromRow(row), false)
			if err != nil {
				return err
			}
			if outcome == tablestore.Inserted {
				res.added(a.table.Table, v)
			}
		}
	}
	return r.assignEmployees(ctx, c, res)
}

func (r *Reconciler) updateStudy(ctx context.Context, c *extract.Candidate, docID string, deleteOld bool, res *Result) error {
	study := studyRecord(c, docID)
	changes, err := r.store.UpdateEntry(ctx, records.TableStudies, tablestore.KeyOf("study_id", c.StudyID), study.KnownFields())
	if err != nil {
		return err
	}
	res.Changes = changes
	for _, a := range associations(c) {
		if err := r.reconcileList(ctx, a.table, c.StudyID, a.values, deleteOld, res); err != nil {
			return err
		}
	}
	return r.assignEmployees(ctx, c, res)
}

// reconcileList inserts extracted values missing from the study and, with
// deleteOld, removes stored values no longer extracted.
func (r *Reconciler) reconcileList(ctx context.Context, t records.AssociationTable, studyID string, values []string, deleteOld bool, res *Result) error {
	rows, err := r.store.Filter(ctx, t.Table, tablestore.KeyOf("study_id", studyID))
	if err != nil {
		return err
	}
	stored := make(map[string]bool, len(rows))
	for _, row := range rows {
		a, err := records.AssociationFromRow(t, row)
		if err != nil {
			return err
		}
		stored[a.Value] = true
	}

	wanted := make(map[string]bool, len(values))
	for _, v := range unique(values) {
		wanted[v] = true
		if stored[v] {
			continue
		}
		row := records.Association{StudyID: studyID, Value: v}.Row(t)
		if _, err := r.store.Write(ctx, t.Table, row, nil, false); err != nil {
			return err
		}
		res.added(t.Table, v)
	}

	if !deleteOld {
		return nil
	}
	var stale []any
	for v := range stored {
		if !wanted[v] {
			stale = append(stale, v)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	removed, err := r.store.Delete(ctx, t.Table, tablestore.Key{
		"study_id": tablestore.Is(studyID),
		t.Field:    tablestore.In(stale...),
	})
	if err != nil {
		return err
	}
	if res.Removed == nil {
		res.Removed = make(map[string][]string)
	}
	for _, row := range removed {
		v, _ := row.Get(t.Field).Text()
		res.Removed[t.Table] = append(res.Removed[t.Table], v)
	}
	return nil
}

// assignEmployees keeps one employee per study and role; a different
// employee replaces the stored one.
func (r *Reconciler) assignEmployees(ctx context.Context, c *extract.Candidate, res *Result) error {
	for _, a := range c.Assignments(c.StudyID) {
		key := tablestore.KeyOf("study_id", a.StudyID, "role", a.Role)
		rows, err := r.store.Filter(ctx, records.TableStudyEmployees, key)
		if err != nil {
			return err
		}
		if len(rows) == 1 {
			if current, _ := rows[0].Get("employee").Text(); current == a.Employee {
				continue
			}
		}
		outcome, err := r.store.Write(ctx, records.TableStudyEmployees, a.Row(), key, true)
		if err != nil {
			return err
		}
		switch outcome {
		case tablestore.Inserted, tablestore.Replaced:
			res.added(records.TableStudyEmployees, a.Role+"="+a.Employee)
		case tablestore.Ambiguous:
			r.logger.Warn("several employees stored for one role",
				zap.String("study_id", a.StudyID), zap.String("role", a.Role))
		}
	}
	return nil
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

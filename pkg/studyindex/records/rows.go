package records

import (
	"fmt"
	"time"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

func textOrNull(s string) tablestore.Value {
	if s == "" {
		return tablestore.Null()
	}
	return tablestore.TextValue(s)
}

func timeOrNull(t time.Time) tablestore.Value {
	if t.IsZero() {
		return tablestore.Null()
	}
	return tablestore.TimeValue(t)
}

func optText(p *string) tablestore.Value {
	if p == nil {
		return tablestore.Null()
	}
	return textOrNull(*p)
}

func optTime(p *time.Time) tablestore.Value {
	if p == nil {
		return tablestore.Null()
	}
	return timeOrNull(*p)
}

func optInt(p *int) tablestore.Value {
	if p == nil {
		return tablestore.Null()
	}
	return tablestore.IntValue(int64(*p))
}

// reader pulls typed fields out of a row, remembering the first failure.
type reader struct {
	row tablestore.Row
	err error
}

func (r *reader) cast(name string, t tablestore.FieldType) tablestore.Value {
	v, err := tablestore.Cast(r.row.Get(name), t)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("field %s: %w", name, err)
	}
	return v
}

func (r *reader) text(name string) string {
	s, _ := r.cast(name, tablestore.Text).Text()
	return s
}

func (r *reader) optText(name string) *string {
	s, ok := r.cast(name, tablestore.Text).Text()
	if !ok {
		return nil
	}
	return &s
}

func (r *reader) time(name string) time.Time {
	t, _ := r.cast(name, tablestore.Timestamp).Time()
	return t
}

func (r *reader) optTime(name string) *time.Time {
	t, ok := r.cast(name, tablestore.Timestamp).Time()
	if !ok {
		return nil
	}
	return &t
}

func (r *reader) optInt(name string) *int {
	i, ok := r.cast(name, tablestore.Integer).Int()
	if !ok {
		return nil
	}
	n := int(i)
	return &n
}

func (r *reader) float(name string) float64 {
	f, _ := r.cast(name, tablestore.Float).Float()
	return f
}

func (r *reader) require(name, value string) {
	if value == "" && r.err == nil {
		r.err = fmt.Errorf("field %s is required: %w", name, internalerr.ErrInvalidInput)
	}
}

// Row converts the document to a table row.
func (d Document) Row() tablestore.Row {
	return tablestore.Row{
		"document_id":     textOrNull(d.DocumentID),
		"study_id":        textOrNull(d.StudyID),
		"document_number": tablestore.IntValue(int64(d.DocumentNumber)),
		"document_name":   textOrNull(d.DocumentName),
		"document_type":   textOrNull(string(d.DocumentType)),
		"ext":             textOrNull(d.Ext),
		"directory":       textOrNull(d.Directory),
		"last_modified":   timeOrNull(d.LastModified),
		"created":         timeOrNull(d.Created),
		"filepath":        textOrNull(d.Filepath),
		"version":         tablestore.FloatValue(d.Version),
	}
}

// DocumentFromRow casts a documents row.
func DocumentFromRow(row tablestore.Row) (Document, error) {
	r := reader{row: row}
	n := r.optInt("document_number")
	d := Document{
		DocumentID:   r.text("document_id"),
		StudyID:      r.text("study_id"),
		DocumentName: r.text("document_name"),
		DocumentType: ParseDocType(r.text("document_type")),
		Ext:          r.text("ext"),
		Directory:    r.text("directory"),
		LastModified: r.time("last_modified"),
		Created:      r.time("created"),
		Filepath:     r.text("filepath"),
		Version:      r.float("version"),
	}
	if n != nil {
		d.DocumentNumber = *n
	}
	r.require("filepath", d.Filepath)
	if r.err != nil {
		return Document{}, fmt.Errorf("document row: %w", r.err)
	}
	return d, nil
}

// Row converts the study to a table row; nil fields become Null.
func (s Study) Row() tablestore.Row {
	return tablestore.Row{
		"study_id":                textOrNull(s.StudyID),
		"study_number":            optInt(s.StudyNumber),
		"study_date":              optTime(s.StudyDate),
		"client":                  optText(s.Client),
		"species":                 optText(s.Species),
		"sex":                     optText(s.Sex),
		"description":             optText(s.Description),
		"proposal_id":             optText(s.ProposalID),
		"proposal_issue_date":     optTime(s.ProposalIssueDate),
		"proposal_latest_reissue": optTime(s.ProposalLatestReissue),
		"report_id":               optText(s.ReportID),
		"report_issue_date":       optTime(s.ReportIssueDate),
		"report_latest_reissue":   optTime(s.ReportLatestReissue),
	}
}

// KnownFields is the study row restricted to non-null fields, used for
// updates that must not erase stored values.
func (s Study) KnownFields() tablestore.Row {
	out := tablestore.Row{}
	for k, v := range s.Row() {
		if !v.IsNull() {
			out[k] = v
		}
	}
	return out
}

// StudyFromRow casts a studies row.
func StudyFromRow(row tablestore.Row) (Study, error) {
	r := reader{row: row}
	s := Study{
		StudyID:               r.text("study_id"),
		StudyNumber:           r.optInt("study_number"),
		StudyDate:             r.optTime("study_date"),
		Client:                r.optText("client"),
		Species:               r.optText("species"),
		Sex:                   r.optText("sex"),
		Description:           r.optText("description"),
		ProposalID:            r.optText("proposal_id"),
		ProposalIssueDate:     r.optTime("proposal_issue_date"),
		ProposalLatestReissue: r.optTime("proposal_latest_reissue"),
		ReportID:              r.optText("report_id"),
		ReportIssueDate:       r.optTime("report_issue_date"),
		ReportLatestReissue:   r.optTime("report_latest_reissue"),
	}
	r.require("study_id", s.StudyID)
	if r.err != nil {
		return Study{}, fmt.Errorf("study row: %w", r.err)
	}
	return s, nil
}

// Row converts the association using the table's value column.
func (a Association) Row(t AssociationTable) tablestore.Row {
	return tablestore.Row{
		"study_id": textOrNull(a.StudyID),
		t.Field:    textOrNull(a.Value),
	}
}

// AssociationFromRow casts a row of the given association table.
func AssociationFromRow(t AssociationTable, row tablestore.Row) (Association, error) {
	r := reader{row: row}
	a := Association{StudyID: r.text("study_id"), Value: r.text(t.Field)}
	r.require("study_id", a.StudyID)
	if r.err != nil {
		return Association{}, fmt.Errorf("%s row: %w", t.Table, r.err)
	}
	return a, nil
}

func (a Assignment) Row() tablestore.Row {
	return tablestore.Row{
		"study_id": textOrNull(a.StudyID),
		"employee": textOrNull(a.Employee),
		"role":     textOrNull(a.Role),
	}
}

// AssignmentFromRow casts a study_employees row.
func AssignmentFromRow(row tablestore.Row) (Assignment, error) {
	r := reader{row: row}
	a := Assignment{StudyID: r.text("study_id"), Employee: r.text("employee"), Role: r.text("role")}
	r.require("study_id", a.StudyID)
	if r.err != nil {
		return Assignment{}, fmt.Errorf("study_employees row: %w", r.err)
	}
	return a, nil
}

func (f ScrapedFile) Row() tablestore.Row {
	return tablestore.Row{
		"filepath":     textOrNull(f.Filepath),
		"success":      tablestore.BoolValue(f.Success),
		"run_id":       textOrNull(f.RunID),
		"attempted_at": timeOrNull(f.AttemptedAt),
		"error":        textOrNull(f.Error),
	}
}

// ScrapedFileFromRow casts a scraped_files row.
func ScrapedFileFromRow(row tablestore.Row) (ScrapedFile, error) {
	r := reader{row: row}
	ok, _ := r.cast("success", tablestore.Boolean).Bool()
	f := ScrapedFile{
		Filepath:    r.text("filepath"),
		Success:     ok,
		RunID:       r.text("run_id"),
		AttemptedAt: r.time("attempted_at"),
		Error:       r.text("error"),
	}
	r.require("filepath", f.Filepath)
	if r.err != nil {
		return ScrapedFile{}, fmt.Errorf("scraped_files row: %w", r.err)
	}
	return f, nil
}

// Package records defines the typed rows of the study index and their
// table schemas.
package records

import (
	"strings"
	"time"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// Table names.
const (
	TableDocuments      = "documents"
	TableStudies        = "studies"
	TableStudyEmployees = "study_employees"
	TableStudyMethods   = "study_methods"
	TableStudyCompounds = "study_compounds"
	TableStudyStrains   = "study_strains"
	TableScrapedFiles   = "scraped_files"
)

// DocType is the kind of study document.
type DocType string

const (
	Proposal    DocType = "proposal"
	Report      DocType = "report"
	ChangeOrder DocType = "change_order"
	Unknown     DocType = "unknown"
)

// Letter is the type letter used in document ids.
func (d DocType) Letter() string {
	switch d {
	case Proposal:
		return "P"
	case Report:
		return "R"
	case ChangeOrder:
		return "C"
	}
	return "U"
}

// ParseDocType accepts persisted names and the human spellings found in
// documents ("change order").
func ParseDocType(s string) DocType {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_") {
	case "proposal":
		return Proposal
	case "report":
		return Report
	case "change_order":
		return ChangeOrder
	}
	return Unknown
}

// Species values.
const (
	Rat         = "rat"
	Mouse       = "mouse"
	RatAndMouse = "rat and mouse"
)

// Sex values.
const (
	Males   = "males"
	Females = "females"
	Both    = "both"
)

// Document is one physical file belonging to a study.
type Document struct {
	DocumentID     string
	StudyID        string
	DocumentNumber int
	DocumentName   string
	DocumentType   DocType
	Ext            string
	Directory      string
	LastModified   time.Time
	Created        time.Time
	Filepath       string
	Version        float64
}

// Study is the normalized description of one research engagement.
// Nil fields are unknown.
type Study struct {
	StudyID               string
	StudyNumber           *int
	StudyDate             *time.Time
	Client                *string
	Species               *string
	Sex                   *string
	Description           *string
	ProposalID            *string
	ProposalIssueDate     *time.Time
	ProposalLatestReissue *time.Time
	ReportID              *string
	ReportIssueDate       *time.Time
	ReportLatestReissue   *time.Time
}

// Association links a study to one method, compound or strain.
type Association struct {
	StudyID string
	Value   string
}

// Assignment is an employee holding a role on a study.
type Assignment struct {
	StudyID  string
	Employee string
	Role     string
}

// ScrapedFile records the latest ingestion attempt for a file.
type ScrapedFile struct {
	Filepath    string
	Success     bool
	RunID       string
	AttemptedAt time.Time
	Error       string
}

// AssociationTable names an association table and its value column.
type AssociationTable struct {
	Table string
	Field string
}

var (
	MethodsTable   = AssociationTable{Table: TableStudyMethods, Field: "method"}
	CompoundsTable = AssociationTable{Table: TableStudyCompounds, Field: "compound"}
	StrainsTable   = AssociationTable{Table: TableStudyStrains, Field: "strain"}
)

// Schemas returns the declared schema of every study index table.
func Schemas() map[string]tablestore.Schema {
	text := func(n string) tablestore.Field { return tablestore.Field{Name: n, Type: tablestore.Text} }
	ts := func(n string) tablestore.Field { return tablestore.Field{Name: n, Type: tablestore.Timestamp} }

	return map[string]tablestore.Schema{
		TableDocuments: {
			text("document_id"),
			text("study_id"),
			{Name: "document_number", Type: tablestore.Integer},
			text("document_name"),
			text("document_type"),
			text("ext"),
			text("directory"),
			ts("last_modified"),
			ts("created"),
			text("filepath"),
			{Name: "version", Type: tablestore.Float},
		},
		TableStudies: {
			text("study_id"),
			{Name: "study_number", Type: tablestore.Integer},
			ts("study_date"),
			text("client"),
			text("species"),
			text("sex"),
			text("description"),
			text("proposal_id"),
			ts("proposal_issue_date"),
			ts("proposal_latest_reissue"),
			text("report_id"),
			ts("report_issue_date"),
			ts("report_latest_reissue"),
		},
		TableStudyEmployees: {text("study_id"), text("employee"), text("role")},
		TableStudyMethods:   {text("study_id"), text("method")},
		TableStudyCompounds: {text("study_id"), text("compound")},
		TableStudyStrains:   {text("study_id"), text("strain")},
		TableScrapedFiles: {
			text("filepath"),
			{Name: "success", Type: tablestore.Boolean},
			text("run_id"),
			ts("attempted_at"),
			text("error"),
		},
	}
}

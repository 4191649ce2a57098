package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/catalog"
	"github.com/cognicore/studyindex/pkg/studyindex/config"
	"github.com/cognicore/studyindex/pkg/studyindex/curation"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/memtable"
)

func TestBuildReport(t *testing.T) {
	ctx := context.Background()
	b := memtable.New()
	b.Seed(catalog.TableMethods, []string{"method_code", "method"}, [][]string{{"FST", "Forced swim test"}, {"", "Unlisted"}})
	b.Seed(catalog.TableEmployees, []string{"status", "employee"}, [][]string{{"current", "Jane Doe"}, {"former", "John Roe"}})
	cat, err := catalog.Open(ctx, b, nil)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}

	clog, err := curation.ReadCSV(bytes.NewBufferString("study_id,add_type,add_value,filepath\n" +
		"ACM_01_14MAR24,client,Acme Pharma,/a.docx\n" +
		"ACM_02_15MAR24,client,Acme Pharma,/b.docx\n" +
		"ACM_02_15MAR24,people,Sam Poe,/b.docx\n"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	rep, err := buildReport(ctx, clog, cat, suggester(config.Review{MinOccurrences: 2}, zap.NewNop()))
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if rep.Entries != 3 || len(rep.Suggestions) != 1 || rep.Suggestions[0].Value != "Acme Pharma" {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(rep.Known.Methods) != 1 || rep.Known.Methods[0] != "Forced swim test" {
		t.Errorf("unexpected methods %v", rep.Known.Methods)
	}
	if len(rep.Known.Employees) != 1 || rep.Known.Employees[0] != "Jane Doe" {
		t.Errorf("unexpected employees %v", rep.Known.Employees)
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, rep); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
}

func TestSuggesterUsesReviewerOnlyWhenConfigured(t *testing.T) {
	if s := suggester(config.Review{}, zap.NewNop()); s.Reviewer != nil {
		t.Error("reviewer set without a URL")
	}
	s := suggester(config.Review{URL: "http://localhost:11434/v1/chat/completions", Model: "llama3"}, zap.NewNop())
	if s.Reviewer == nil {
		t.Error("reviewer missing")
	}
}

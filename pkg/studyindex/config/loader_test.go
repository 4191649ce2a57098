package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/studyindex/pkg/studyindex/records"
)

func TestLoadStoplist(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "names.yaml")

	content := `terms:
  - Vivarium
  - Protocol
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sl, err := LoadStoplist(path)
	if err != nil {
		t.Fatalf("Failed to load stoplist: %v", err)
	}
	if len(sl.Terms) != 2 {
		t.Errorf("Expected 2 terms, got %d", len(sl.Terms))
	}
}

func TestLoadKeywords(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "keywords.txt")

	content := `# share folders
BizDev | proposal
o-drive|report

contracts|change order
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	kw, err := LoadKeywords(path)
	if err != nil {
		t.Fatalf("Failed to load keywords: %v", err)
	}
	if len(kw) != 3 {
		t.Fatalf("Expected 3 keywords, got %d", len(kw))
	}
	if kw[0].Keyword != "bizdev" || kw[0].Type != records.Proposal {
		t.Errorf("Unexpected first keyword: %+v", kw[0])
	}
	if kw[2].Type != records.ChangeOrder {
		t.Errorf("Expected change order, got %s", kw[2].Type)
	}
}

func TestLoadKeywordsRejectsBadLines(t *testing.T) {
	tmpDir := t.TempDir()
	for name, content := range map[string]string{
		"nosep.txt":   "bizdev proposal\n",
		"badtype.txt": "bizdev|memo\n",
	} {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadKeywords(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestComponents(t *testing.T) {
	tmpDir := t.TempDir()
	stopPath := filepath.Join(tmpDir, "names.yaml")
	if err := os.WriteFile(stopPath, []byte("terms:\n  - Vivarium\n"), 0644); err != nil {
		t.Fatal(err)
	}
	kwPath := filepath.Join(tmpDir, "keywords.txt")
	if err := os.WriteFile(kwPath, []byte("archive|report\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Extract.StopwordsFile = stopPath
	cfg.Extract.KeywordsFile = kwPath
	cfg.Extract.TOCTitle = "Contents"
	cfg.Extract.LongTOC = 12

	comp, err := cfg.Components()
	if err != nil {
		t.Fatalf("Components: %v", err)
	}
	if comp.Sections.TOCTitle != "contents" || comp.Sections.LongTOC != 12 {
		t.Errorf("Unexpected indexer settings: %q %d", comp.Sections.TOCTitle, comp.Sections.LongTOC)
	}
	if got := comp.Filenames.Parse("notes", "/srv/archive/2024").DocType; got != records.Report {
		t.Errorf("Expected report from keyword, got %s", got)
	}
	if names := comp.Persons.FindPersons("Vivarium Staff"); len(names) != 0 {
		t.Errorf("Expected stopword to break the name, got %v", names)
	}
	if names := comp.Persons.FindPersons("Jane Doe"); len(names) != 1 {
		t.Errorf("Expected default heuristics to still find names, got %v", names)
	}

	cfg.Extract.KeywordsFile = filepath.Join(tmpDir, "missing.txt")
	if _, err := cfg.Components(); err == nil {
		t.Error("Expected error for missing keywords file")
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/internal/app"
	"github.com/cognicore/studyindex/internal/llm"
	"github.com/cognicore/studyindex/internal/logging"
	"github.com/cognicore/studyindex/pkg/studyindex/catalog"
	"github.com/cognicore/studyindex/pkg/studyindex/config"
	"github.com/cognicore/studyindex/pkg/studyindex/curation"
)

type report struct {
	Entries     int              `json:"entries"`
	Suggestions []suggestionJSON `json:"suggestions"`
	Known       knownJSON        `json:"known"`
}

type suggestionJSON struct {
	Kind        string   `json:"kind"`
	Value       string   `json:"value"`
	Occurrences int      `json:"occurrences"`
	Studies     []string `json:"studies"`
}

type knownJSON struct {
	Methods   []string `json:"methods"`
	Strains   []string `json:"strains"`
	Employees []string `json:"current_employees"`
}

func main() {
	var (
		configPath = flag.String("config", "", "Config file (optional)")
		logPath    = flag.String("log", "", "Curation log CSV written by study-ingest (overrides ingest.curation_path)")
		minCount   = flag.Int("min", 0, "Minimum occurrences for a suggestion (overrides review.min_occurrences)")
		llmBase    = flag.String("llm-base", "", "Optional: OpenAI-compatible reviewer URL (overrides review.url)")
		llmModel   = flag.String("llm-model", "", "Optional: reviewer model (overrides review.model)")
		llmAPIKey  = flag.String("llm-api-key", "", "Optional: reviewer API key (overrides review.api_key)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	overrides := map[*string]string{
		&cfg.Ingest.CurationPath: *logPath,
		&cfg.Review.URL:          *llmBase,
		&cfg.Review.Model:        *llmModel,
		&cfg.Review.APIKey:       *llmAPIKey,
	}
	for field, v := range overrides {
		if v != "" {
			*field = v
		}
	}
	if *minCount > 0 {
		cfg.Review.MinOccurrences = *minCount
	}
	if cfg.Ingest.CurationPath == "" {
		log.Fatal("--log or ingest.curation_path required")
	}

	logger, err := logging.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	f, err := os.Open(cfg.Ingest.CurationPath)
	if err != nil {
		log.Fatalf("open curation log: %v", err)
	}
	clog, err := curation.ReadCSV(f)
	f.Close()
	if err != nil {
		log.Fatal(err)
	}

	rep, err := buildReport(ctx, clog, a.Catalog, suggester(cfg.Review, logger))
	if err != nil {
		log.Fatal(err)
	}
	if err := writeReport(os.Stdout, rep); err != nil {
		log.Fatal(err)
	}
}

// suggester returns a Suggester that consults the model when one is
// configured.
func suggester(r config.Review, logger *zap.Logger) *curation.Suggester {
	s := &curation.Suggester{Thresholds: curation.Thresholds{MinOccurrences: r.MinOccurrences}}
	if r.URL != "" && r.Model != "" {
		s.Reviewer = &llm.Reviewer{
			Client: &llm.Client{BaseURL: r.URL, Model: r.Model, APIKey: r.APIKey},
			Logger: logger,
		}
	}
	return s
}

func buildReport(ctx context.Context, clog *curation.Log, cat *catalog.Catalog, s *curation.Suggester) (report, error) {
	rep := report{Entries: clog.Len(), Suggestions: []suggestionJSON{}}

	suggestions, err := s.Run(ctx, clog)
	if err != nil {
		return rep, fmt.Errorf("suggest: %w", err)
	}
	for _, sg := range suggestions {
		rep.Suggestions = append(rep.Suggestions, suggestionJSON{
			Kind:        string(sg.Kind),
			Value:       sg.Value,
			Occurrences: sg.Occurrences,
			Studies:     sg.Studies,
		})
	}

	if rep.Known.Methods, err = cat.PossibleMethods(ctx); err != nil {
		return rep, err
	}
	if rep.Known.Strains, err = cat.PossibleStrains(ctx); err != nil {
		return rep, err
	}
	if rep.Known.Employees, err = cat.PossibleEmployees(ctx, "current"); err != nil {
		return rep, err
	}
	return rep, nil
}

func writeReport(w io.Writer, rep report) error {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

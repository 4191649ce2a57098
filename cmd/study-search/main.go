package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cognicore/studyindex/internal/app"
	"github.com/cognicore/studyindex/internal/logging"
	"github.com/cognicore/studyindex/pkg/studyindex/config"
	"github.com/cognicore/studyindex/pkg/studyindex/search"
)

// listFlag collects a repeatable flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	configPath string
	criteria   search.Criteria
	facets     bool
	jsonOut    bool
}

func parseFlags(args []string) (options, error) {
	var (
		o         options
		methods   listFlag
		compounds listFlag
	)
	fs := flag.NewFlagSet("study-search", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Config file (optional)")
	fs.Var(&methods, "method", "Method the study must use (repeatable)")
	fs.Var(&compounds, "compound", "Compound the study must use (repeatable)")
	fs.StringVar(&o.criteria.Client, "client", "", "Client name")
	fs.StringVar(&o.criteria.Sex, "sex", "", "males, females or both")
	fs.StringVar(&o.criteria.Species, "species", "", "rat, mouse or \"rat and mouse\"")
	fs.StringVar(&o.criteria.Strain, "strain", "", "Strain name")
	fs.IntVar(&o.criteria.FromYear, "from", 0, "Earliest study year")
	fs.IntVar(&o.criteria.ToYear, "to", 0, "Latest study year")
	fs.BoolVar(&o.facets, "facets", false, "List searchable values instead of studies")
	fs.BoolVar(&o.jsonOut, "json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.criteria.Methods = methods
	o.criteria.Compounds = compounds
	if o.criteria.FromYear != 0 && o.criteria.ToYear != 0 && o.criteria.FromYear > o.criteria.ToYear {
		return o, fmt.Errorf("-from %d is after -to %d", o.criteria.FromYear, o.criteria.ToYear)
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
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

	if err := execute(ctx, a.Searcher(), opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func execute(ctx context.Context, s *search.Searcher, opts options, out io.Writer) error {
	if opts.facets {
		f, err := s.Facets(ctx)
		if err != nil {
			return fmt.Errorf("facets: %w", err)
		}
		if opts.jsonOut {
			return writeJSON(out, f)
		}
		printFacets(out, f)
		return nil
	}

	matches, err := s.Search(ctx, opts.criteria)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if opts.jsonOut {
		return writeJSON(out, matches)
	}
	if len(matches) == 0 {
		fmt.Fprintln(out, "No studies found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDY\tDATE\tCLIENT\tSPECIES\tPROPOSAL\tREPORT")
	for _, m := range matches {
		date := ""
		if m.Study.StudyDate != nil {
			date = m.Study.StudyDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Study.StudyID, date, deref(m.Study.Client), deref(m.Study.Species), m.Proposal, m.Report)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d studies\n", len(matches))
	return nil
}

func printFacets(out io.Writer, f search.Facets) {
	fmt.Fprintf(out, "Methods:   %s\n", strings.Join(f.Methods, "; "))
	fmt.Fprintf(out, "Compounds: %s\n", strings.Join(f.Compounds, "; "))
	fmt.Fprintf(out, "Clients:   %s\n", strings.Join(f.Clients, "; "))
	fmt.Fprintf(out, "Strains:   %s\n", strings.Join(f.Strains, "; "))
	if f.MinYear != 0 {
		fmt.Fprintf(out, "Years:     %d-%d\n", f.MinYear, f.MaxYear)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/internal/app"
	"github.com/cognicore/studyindex/internal/logging"
	"github.com/cognicore/studyindex/pkg/studyindex/config"
	"github.com/cognicore/studyindex/pkg/studyindex/ingest"
)

type options struct {
	configPath  string
	dir         string
	rescrape    bool
	deleteOld   bool
	curation    string
	metricsFile string
}

// parseFlags reads the command line. -delete-old follows -rescrape unless
// it is given explicitly.
func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("study-ingest", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Config file (optional; defaults and STUDYINDEX_* env otherwise)")
	fs.StringVar(&o.dir, "dir", "", "Directory of study documents (overrides ingest.dir)")
	fs.BoolVar(&o.rescrape, "rescrape", false, "Re-read files that were already ingested successfully")
	fs.BoolVar(&o.deleteOld, "delete-old", false, "Drop list entries missing from the latest document (default: value of -rescrape)")
	fs.StringVar(&o.curation, "curation", "", "Write the curation log CSV here (overrides ingest.curation_path)")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "Write a Prometheus textfile here (overrides ingest.metrics_file)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "delete-old" {
			explicit = true
		}
	})
	if !explicit {
		o.deleteOld = o.rescrape
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger, os.Stdout); err != nil {
		logger.Fatal("ingest failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger, out io.Writer) error {
	dir := cfg.Ingest.Dir
	if opts.dir != "" {
		dir = opts.dir
	}
	if dir == "" {
		return errors.New("--dir or ingest.dir required")
	}
	curationPath := cfg.Ingest.CurationPath
	if opts.curation != "" {
		curationPath = opts.curation
	}
	metricsFile := cfg.Ingest.MetricsFile
	if opts.metricsFile != "" {
		metricsFile = opts.metricsFile
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	clog, sum, runErr := a.Pipeline().Ingest(ctx, dir, ingest.Options{Rescrape: opts.rescrape, DeleteOld: opts.deleteOld})

	// A cancelled run still saved its progress; report what it did.
	if clog != nil && curationPath != "" {
		if err := writeCuration(curationPath, clog.WriteCSV); err != nil {
			return err
		}
	}
	if metricsFile != "" {
		if err := a.Metrics.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	fmt.Fprintf(out, "run %s: %d scanned, %d ingested, %d skipped, %d failed; studies %d created, %d updated; %d warnings\n",
		sum.RunID, sum.Scanned, sum.Ingested, sum.Skipped, sum.Failed, sum.StudiesCreated, sum.StudiesUpdated, sum.Warnings)
	if clog != nil && clog.Len() > 0 {
		fmt.Fprintf(out, "%d values need curation\n", clog.Len())
	}
	return runErr
}

func writeCuration(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write curation log: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write curation log: %w", err)
	}
	return f.Close()
}

// Package ingest walks a document tree and feeds every new file through
// extraction and reconciliation, recording each attempt in scraped_files.
package ingest

import (
	"context"
	"crypto/rand"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/curation"
	"github.com/cognicore/studyindex/pkg/studyindex/extract"
	"github.com/cognicore/studyindex/pkg/studyindex/reconcile"
	"github.com/cognicore/studyindex/pkg/studyindex/records"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// LockPrefix marks the owner files Word leaves next to open documents.
const LockPrefix = "~$"

// DefaultExtensions are the file types ingested when none are configured.
var DefaultExtensions = []string{".docx"}

// Extractor builds a candidate from a file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Candidate, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (*extract.Candidate, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (*extract.Candidate, error) {
	return f(ctx, path)
}

// Reconciler merges a candidate into the index. *reconcile.Reconciler
// implements it.
type Reconciler interface {
	Apply(ctx context.Context, c *extract.Candidate, opts reconcile.Options) (reconcile.Result, error)
}

// Status is the outcome of one file.
type Status string

const (
	StatusIngested Status = "ingested"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// FileOutcome is reported to the Observer after every file.
type FileOutcome struct {
	RunID    string
	Path     string
	Status   Status
	Duration time.Duration
	Result   reconcile.Result
	Warnings []extract.Warning
	Err      error
}

// Observer receives per-file outcomes, e.g. for metrics.
type Observer interface {
	FileDone(o FileOutcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(o FileOutcome)

func (f ObserverFunc) FileDone(o FileOutcome) { f(o) }

// Options controls one run.
type Options struct {
	Rescrape  bool
	DeleteOld bool
}

// Summary counts what a run did.
type Summary struct {
	RunID          string
	Scanned        int
	Skipped        int
	Ingested       int
	Failed         int
	StudiesCreated int
	StudiesUpdated int
	Warnings       int
}

// Config wires a Pipeline.
type Config struct {
	Store      *tablestore.Store
	Extractor  Extractor
	Reconciler Reconciler
	// Extensions are matched case-insensitively; DefaultExtensions when empty.
	Extensions []string
	Observer   Observer
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Pipeline runs ingestion over a directory tree.
type Pipeline struct {
	store      *tablestore.Store
	extractor  Extractor
	reconciler Reconciler
	extensions map[string]bool
	observer   Observer
	logger     *zap.Logger
	clock      func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		store:      cfg.Store,
		extractor:  cfg.Extractor,
		reconciler: cfg.Reconciler,
		extensions: make(map[string]bool),
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		p.extensions[strings.ToLower(e)] = true
	}
	if p.observer == nil {
		p.observer = ObserverFunc(func(FileOutcome) {})
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("ingest")
	if p.clock == nil {
		p.clock = time.Now
	}
	return p
}

func (p *Pipeline) newRunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(p.clock()), p.entropy).String()
}

// Files lists the eligible documents under dir in lexical order.
func (p *Pipeline) Files(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.Contains(name, LockPrefix) || !p.extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

// succeeded returns the file paths whose last attempt succeeded.
func (p *Pipeline) succeeded(ctx context.Context) (map[string]bool, error) {
	rows, err := p.store.Filter(ctx, records.TableScrapedFiles, tablestore.KeyOf("success", true))
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(rows))
	for _, row := range rows {
		if path, ok := row.Get("filepath").Text(); ok {
			done[path] = true
		}
	}
	return done, nil
}

// Ingest processes every eligible file under dir and saves the store.
// Per-file failures are recorded and do not stop the run; cancellation is
// honored between files, after which the work done so far is saved.
func (p *Pipeline) Ingest(ctx context.Context, dir string, opts Options) (*curation.Log, Summary, error) {
	log := &curation.Log{}
	sum := Summary{RunID: p.newRunID()}

	files, err := p.Files(dir)
	if err != nil {
		return log, sum, err
	}
	done, err := p.succeeded(ctx)
	if err != nil {
		return log, sum, err
	}
	p.logger.Info("ingest started",
		zap.String("run_id", sum.RunID),
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Bool("rescrape", opts.Rescrape))

	var runErr error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("ingest interrupted: %w", err)
			break
		}
		sum.Scanned++
		if done[path] && !opts.Rescrape {
			sum.Skipped++
			p.observer.FileDone(FileOutcome{RunID: sum.RunID, Path: path, Status: StatusSkipped})
			continue
		}

		out := p.processFile(ctx, path, opts, log)
		out.RunID = sum.RunID
		if err := p.record(ctx, out); err != nil {
			return log, sum, err
		}
		switch out.Status {
		case StatusFailed:
			sum.Failed++
		case StatusIngested:
			sum.Ingested++
			sum.Warnings += len(out.Warnings)
			switch out.Result.Study {
			case reconcile.StudyCreated:
				sum.StudiesCreated++
			case reconcile.StudyUpdated:
				sum.StudiesUpdated++
			}
		}
		p.observer.FileDone(out)
	}

	for _, w := range p.store.DrainWarnings() {
		p.logger.Warn("store warning", zap.String("warning", w.String()))
	}
	// Work done before a cancellation is still saved.
	if err := p.store.SaveAll(context.WithoutCancel(ctx)); err != nil {
		return log, sum, fmt.Errorf("save: %w", err)
	}
	p.logger.Info("ingest finished",
		zap.String("run_id", sum.RunID),
		zap.Int("scanned", sum.Scanned),
		zap.Int("skipped", sum.Skipped),
		zap.Int("ingested", sum.Ingested),
		zap.Int("failed", sum.Failed),
		zap.Int("studies_created", sum.StudiesCreated),
		zap.Int("studies_updated", sum.StudiesUpdated))
	return log, sum, runErr
}

// processFile extracts and reconciles one file. A panic in either step is
// turned into a failure of that file.
func (p *Pipeline) processFile(ctx context.Context, path string, opts Options, log *curation.Log) (out FileOutcome) {
	start := p.clock()
	out = FileOutcome{Path: path, Status: StatusIngested}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while ingesting",
				zap.String("file", path),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.Duration = p.clock().Sub(start)
	}()

	c, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return p.fail(out, err)
	}
	res, err := p.reconciler.Apply(ctx, c, reconcile.Options{Rescrape: opts.Rescrape, DeleteOld: opts.DeleteOld})
	if err != nil {
		return p.fail(out, err)
	}
	out.Result = res
	out.Warnings = c.Warnings

	for _, a := range c.Additions {
		log.Add(curation.Entry{StudyID: c.StudyID, Kind: a.Kind, Value: a.Value, Filepath: path})
	}
	p.logger.Debug("file ingested",
		zap.String("file", path),
		zap.String("study_id", res.StudyID),
		zap.String("document_id", res.DocumentID),
		zap.String("document", string(res.Document)),
		zap.String("study", string(res.Study)))
	return out
}

func (p *Pipeline) fail(out FileOutcome, err error) FileOutcome {
	p.logger.Warn("file failed", zap.String("file", out.Path), zap.Error(err))
	out.Status = StatusFailed
	out.Err = err
	return out
}

// record writes the attempt to scraped_files, replacing the previous one.
func (p *Pipeline) record(ctx context.Context, out FileOutcome) error {
	f := records.ScrapedFile{
		Filepath:    out.Path,
		Success:     out.Status == StatusIngested,
		RunID:       out.RunID,
		AttemptedAt: p.clock().UTC(),
	}
	if out.Err != nil {
		f.Error = out.Err.Error()
	}
	if _, err := p.store.Write(ctx, records.TableScrapedFiles, f.Row(), tablestore.KeyOf("filepath", out.Path), true); err != nil {
		return fmt.Errorf("record %s: %w", out.Path, err)
	}
	return nil
}

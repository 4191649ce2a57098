// Package config loads the study index configuration: a YAML file, an
// optional .env file and STUDYINDEX_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

// Storage drivers.
const (
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STUDYINDEX_"

// Storage selects a table backend.
type Storage struct {
	Driver string `yaml:"driver"`
	// Path is the table directory for csv and the database file for sqlite.
	Path      string `yaml:"path"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Ingest configures ingestion runs.
type Ingest struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	// CurationPath receives the curation log as CSV when set.
	CurationPath string `yaml:"curation_path"`
	// MetricsFile receives a Prometheus textfile when set.
	MetricsFile string `yaml:"metrics_file"`
}

// Extract configures document extraction.
type Extract struct {
	// StopwordsFile is a YAML stoplist of words never taken as names.
	StopwordsFile string `yaml:"stopwords_file"`
	// KeywordsFile maps directory fragments to document types,
	// one "keyword|type" per line.
	KeywordsFile string `yaml:"keywords_file"`
	TOCTitle     string `yaml:"toc_title"`
	LongTOC      int    `yaml:"long_toc"`
}

// Log configures the zap logger.
type Log struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// Review configures the optional model that screens curation suggestions.
// An empty URL disables review.
type Review struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	MinOccurrences int    `yaml:"min_occurrences"`
}

// Config is the complete configuration.
type Config struct {
	Index   Storage `yaml:"index"`
	Catalog Storage `yaml:"catalog"`
	Ingest  Ingest  `yaml:"ingest"`
	Extract Extract `yaml:"extract"`
	Log     Log     `yaml:"log"`
	Server  Server  `yaml:"server"`
	Review  Review  `yaml:"review"`
}

// Default returns the configuration used for unset values.
func Default() Config {
	return Config{
		Index:   Storage{Driver: DriverCSV, Path: "data/index"},
		Catalog: Storage{Driver: DriverCSV, Path: "data/reference"},
		Ingest:  Ingest{Extensions: []string{".docx"}},
		Extract: Extract{TOCTitle: "table of contents", LongTOC: 40},
		Log:     Log{Env: "production", Level: "info"},
		Server:  Server{Addr: ":8080"},
		Review:  Review{MinOccurrences: 1},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path uses the defaults alone. A .env file next to the working
// directory is loaded first when present; existing variables win.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w: %w", path, internalerr.ErrInvalidConfig, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from variables such as STUDYINDEX_INDEX_DRIVER.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"INDEX_DRIVER":           &c.Index.Driver,
		"INDEX_PATH":             &c.Index.Path,
		"INDEX_BUCKET":           &c.Index.Bucket,
		"INDEX_PREFIX":           &c.Index.Prefix,
		"INDEX_REGION":           &c.Index.Region,
		"INDEX_ENDPOINT":         &c.Index.Endpoint,
		"CATALOG_DRIVER":         &c.Catalog.Driver,
		"CATALOG_PATH":           &c.Catalog.Path,
		"CATALOG_BUCKET":         &c.Catalog.Bucket,
		"CATALOG_PREFIX":         &c.Catalog.Prefix,
		"CATALOG_REGION":         &c.Catalog.Region,
		"CATALOG_ENDPOINT":       &c.Catalog.Endpoint,
		"INGEST_DIR":             &c.Ingest.Dir,
		"INGEST_CURATION_PATH":   &c.Ingest.CurationPath,
		"INGEST_METRICS_FILE":    &c.Ingest.MetricsFile,
		"EXTRACT_STOPWORDS_FILE": &c.Extract.StopwordsFile,
		"EXTRACT_KEYWORDS_FILE":  &c.Extract.KeywordsFile,
		"LOG_ENV":                &c.Log.Env,
		"LOG_LEVEL":              &c.Log.Level,
		"SERVER_ADDR":            &c.Server.Addr,
		"REVIEW_URL":             &c.Review.URL,
		"REVIEW_MODEL":           &c.Review.Model,
		"REVIEW_API_KEY":         &c.Review.APIKey,
	}
	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = v
		}
	}
	if v, ok := lookup(EnvPrefix + "INGEST_EXTENSIONS"); ok {
		c.Ingest.Extensions = splitList(v)
	}
	bools := map[string]*bool{
		"INDEX_PATH_STYLE":   &c.Index.PathStyle,
		"CATALOG_PATH_STYLE": &c.Catalog.PathStyle,
	}
	for name, field := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, internalerr.ErrInvalidConfig)
			}
			*field = b
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects unknown drivers and missing driver settings.
func (c *Config) Validate() error {
	var errs []error
	for name, s := range map[string]Storage{"index": c.Index, "catalog": c.Catalog} {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(c.Ingest.Extensions) == 0 {
		errs = append(errs, errors.New("ingest: no extensions"))
	}
	if c.Review.URL != "" && c.Review.Model == "" {
		errs = append(errs, errors.New("review: url set without model"))
	}
	if c.Extract.LongTOC < 0 {
		errs = append(errs, errors.New("extract: long_toc must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)
	}
	return nil
}

func (s Storage) validate() error {
	switch s.Driver {
	case DriverCSV, DriverSQLite:
		if s.Path == "" {
			return fmt.Errorf("driver %s needs a path", s.Driver)
		}
	case DriverS3:
		if s.Bucket == "" {
			return errors.New("driver s3 needs a bucket")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	return nil
}

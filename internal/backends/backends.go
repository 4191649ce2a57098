// Package backends opens the table backend a config.Storage selects.
package backends

import (
	"context"
	"fmt"

	"github.com/cognicore/studyindex/pkg/studyindex/config"
	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/csvdir"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/memtable"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/s3csv"
	"github.com/cognicore/studyindex/pkg/studyindex/tablestore/sqlite"
)

// Opened is a backend plus its release function.
type Opened struct {
	tablestore.Backend
	close func() error
}

// Close releases the backend's resources.
func (o *Opened) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

// Open selects a backend by driver:
//
//	csv:    one CSV file per table under Path
//	sqlite: one SQLite database file at Path
//	s3:     CSV objects under Bucket/Prefix
//	memory: process-local tables, lost on exit
//
// Failures to reach the selected backend wrap internalerr.ErrStoreUnavailable.
func Open(ctx context.Context, s config.Storage) (*Opened, error) {
	switch s.Driver {
	case config.DriverCSV:
		b, err := csvdir.New(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open csv %s: %w: %w", s.Path, internalerr.ErrStoreUnavailable, err)
		}
		return &Opened{Backend: b}, nil
	case config.DriverSQLite:
		b, err := sqlite.Open(ctx, s.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w: %w", s.Path, internalerr.ErrStoreUnavailable, err)
		}
		return &Opened{Backend: b, close: b.Close}, nil
	case config.DriverS3:
		b, err := s3csv.New(ctx, s3csv.Config{
			Bucket:    s.Bucket,
			Prefix:    s.Prefix,
			Region:    s.Region,
			Endpoint:  s.Endpoint,
			PathStyle: s.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 %s/%s: %w: %w", s.Bucket, s.Prefix, internalerr.ErrStoreUnavailable, err)
		}
		return &Opened{Backend: b}, nil
	case config.DriverMemory:
		return &Opened{Backend: memtable.New()}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q: %w", s.Driver, internalerr.ErrInvalidConfig)
}

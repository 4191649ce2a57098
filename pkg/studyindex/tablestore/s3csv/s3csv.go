// Package s3csv stores each table as a CSV object under a bucket prefix.
package s3csv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// API is the subset of *s3.Client the backend uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds construction parameters. Credentials fall back to the
// default AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, e.g. MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Backend is a tablestore.Backend over S3 objects.
type Backend struct {
	client API
	bucket string
	prefix string
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3csv: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3csv: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *Backend) key(name string) string {
	if b.prefix == "" {
		return name + ".csv"
	}
	return path.Join(b.prefix, name+".csv")
}

func (b *Backend) listPrefix() string {
	if b.prefix == "" {
		return ""
	}
	return b.prefix + "/"
}

func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	prefix := b.listPrefix()
	var out []string
	var token *string
	for {
		resp, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3csv list: %w", err)
		}
		for _, obj := range resp.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(rel, "/") || !strings.HasSuffix(rel, ".csv") {
				continue
			}
			out = append(out, strings.TrimSuffix(rel, ".csv"))
		}
		if aws.ToBool(resp.IsTruncated) && resp.NextContinuationToken != nil {
			token = resp.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) ReadTable(ctx context.Context, name string) ([]string, [][]string, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("s3csv get %s: %w", name, err)
	}
	defer resp.Body.Close()
	return tablestore.ReadCSV(resp.Body)
}

func (b *Backend) WriteTable(ctx context.Context, name string, header []string, records [][]string) error {
	var buf bytes.Buffer
	if err := tablestore.WriteCSV(&buf, header, records); err != nil {
		return fmt.Errorf("s3csv %s: %w", name, err)
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(name)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("s3csv put %s: %w", name, err)
	}
	return nil
}

func (b *Backend) DeleteTable(ctx context.Context, name string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3csv delete %s: %w", name, err)
	}
	return nil
}

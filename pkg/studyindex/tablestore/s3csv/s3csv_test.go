package s3csv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// fakeS3 keeps objects in memory and pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFake() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start = sort.SearchStrings(keys, *in.ContinuationToken)
	}
	end := start + 2
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestListPagesAndFiltersPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	for _, k := range []string{"db/a.csv", "db/b.csv", "db/c.csv", "db/nested/d.csv", "db/readme.txt", "other/e.csv"} {
		fake.objects[k] = []byte("x\n")
	}
	b := NewWithClient(fake, "bucket", "/db/")

	tables, err := b.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tables)
}

func TestReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	b := NewWithClient(fake, "bucket", "catalog")

	header, records, err := b.ReadTable(ctx, "methods")
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, records)

	require.NoError(t, b.WriteTable(ctx, "methods", []string{"method_code", "method"}, [][]string{{"AMES", "Ames test"}}))
	assert.Contains(t, fake.objects, "catalog/methods.csv")

	header, records, err = b.ReadTable(ctx, "methods")
	require.NoError(t, err)
	assert.Equal(t, []string{"method_code", "method"}, header)
	assert.Equal(t, [][]string{{"AMES", "Ames test"}}, records)

	require.NoError(t, b.DeleteTable(ctx, "methods"))
	assert.NotContains(t, fake.objects, "catalog/methods.csv")
}

func TestWriteErrorSurfaces(t *testing.T) {
	fake := newFake()
	fake.failPut = true
	b := NewWithClient(fake, "bucket", "")
	err := b.WriteTable(context.Background(), "t", []string{"a"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestStoreOverS3(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	schema := map[string]tablestore.Schema{
		"scraped_files": {
			{Name: "filepath", Type: tablestore.Text},
			{Name: "success", Type: tablestore.Boolean},
		},
	}
	s, err := tablestore.Open(ctx, NewWithClient(fake, "bucket", "store"), schema, tablestore.Options{})
	require.NoError(t, err)
	_, err = s.Write(ctx, "scraped_files", tablestore.Row{
		"filepath": tablestore.TextValue("a.docx"),
		"success":  tablestore.BoolValue(false),
	}, nil, false)
	require.NoError(t, err)
	require.NoError(t, s.SaveAll(ctx))

	s2, err := tablestore.Open(ctx, NewWithClient(fake, "bucket", "store"), schema, tablestore.Options{})
	require.NoError(t, err)
	rows, err := s2.Filter(ctx, "scraped_files", tablestore.KeyOf("success", false))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

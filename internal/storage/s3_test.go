package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
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
)

// mockS3API keeps objects in a map and pages listings two keys at a time.
type mockS3API struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	listErr error
}

func newMockS3API(keys ...string) *mockS3API {
	m := &mockS3API{objects: make(map[string][]byte)}
	for _, k := range keys {
		m.objects[k] = []byte("content of " + k)
	}
	return m
}

func (m *mockS3API) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(params.Key)] = data
	m.puts = append(m.puts, aws.ToString(params.Key))
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3API) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, fmt.Errorf("UploadPart not implemented")
}

func (m *mockS3API) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, fmt.Errorf("CreateMultipartUpload not implemented")
}

func (m *mockS3API) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, fmt.Errorf("CompleteMultipartUpload not implemented")
}

func (m *mockS3API) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, fmt.Errorf("AbortMultipartUpload not implemented")
}

func (m *mockS3API) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := aws.ToString(params.Prefix)
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && !strings.Contains(strings.TrimPrefix(k, prefix), "/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(params.ContinuationToken); token != "" {
		for i, k := range keys {
			if k == token {
				start = i
			}
		}
	}

	out := &s3.ListObjectsV2Output{}
	end := start + 2
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

func (m *mockS3API) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3StoreListNames(t *testing.T) {
	api := newMockS3API(
		"zip_daily_files/",
		"zip_daily_files/L2_20200101.zip",
		"zip_daily_files/L2_20200102.zip",
		"zip_daily_files/L2_20200103.zip",
		"unzip_daily_files/options_20200101.csv",
	)
	store := NewS3StoreWithAPI(api, "conifers")

	names, err := store.ListNames(context.Background(), "zip_daily_files/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"L2_20200101.zip", "L2_20200102.zip", "L2_20200103.zip"}, names)
}

func TestS3StoreListError(t *testing.T) {
	api := newMockS3API()
	api.listErr = errors.New("AccessDenied")

	_, err := NewS3StoreWithAPI(api, "conifers").ListNames(context.Background(), "zip/")
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestS3StoreUploadAndDownload(t *testing.T) {
	api := newMockS3API()
	store := NewS3StoreWithAPI(api, "conifers")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "zip/L2_20200101.zip", strings.NewReader("PK..."), 5))
	assert.Equal(t, []string{"zip/L2_20200101.zip"}, api.puts)

	data, err := store.Download(ctx, "zip/L2_20200101.zip")
	require.NoError(t, err)
	assert.Equal(t, "PK...", string(data))

	_, err = store.Download(ctx, "zip/missing.zip")
	var noSuchKey *types.NoSuchKey
	assert.ErrorAs(t, err, &noSuchKey)
}

func TestChildName(t *testing.T) {
	tests := []struct {
		prefix, key string
		want        string
		ok          bool
	}{
		{"zip/", "zip/a.zip", "a.zip", true},
		{"zip/", "zip/", "", false},
		{"zip/", "zip/sub/", "", false},
		{"zip/", "zip/sub/a.zip", "", false},
		{"zip/", "unzip/a.zip", "", false},
		{"", "a.zip", "a.zip", true},
		{"", "folder/", "", false},
	}

	for _, tt := range tests {
		got, ok := childName(tt.prefix, tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}
}

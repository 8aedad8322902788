package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/naming"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/remote"
	"github.com/pkgit123/deltaneutral-ftp-s3/internal/secrets"
)

const (
	testStaging = "staging/"
	testPublish = "publish/"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		SecretID:      "prod/deltaneutral",
		StagingPrefix: testStaging,
		PublishPrefix: testPublish,
		Convention:    naming.DeltaNeutral,
		WorkDir:       t.TempDir(),
	}
}

// memStore is an in-memory BlobStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads []string

	uploadErr   func(key string) error
	downloadErr func(key string) error
	listErr     func(prefix string) error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) ListNames(_ context.Context, prefix string) ([]string, error) {
	if s.listErr != nil {
		if err := s.listErr(prefix); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for key := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) Upload(_ context.Context, key string, r io.Reader, _ int64) error {
	if s.uploadErr != nil {
		if err := s.uploadErr(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.uploads = append(s.uploads, key)
	return nil
}

func (s *memStore) Download(_ context.Context, key string) ([]byte, error) {
	if s.downloadErr != nil {
		if err := s.downloadErr(key); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (s *memStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func (s *memStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *memStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// memSource is a fake FTP session.
type memSource struct {
	order       []string
	files       map[string][]byte
	retrieved   []string
	retrieveErr map[string]error
	listErr     error
	closed      bool
}

func newMemSource(files map[string][]byte, order ...string) *memSource {
	return &memSource{order: order, files: files, retrieveErr: map[string]error{}}
}

func (s *memSource) NameList(context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.order...), nil
}

func (s *memSource) Retrieve(_ context.Context, name string, w io.Writer) (int64, error) {
	s.retrieved = append(s.retrieved, name)
	if err := s.retrieveErr[name]; err != nil {
		// leave a partial file behind like an interrupted RETR would
		_, _ = w.Write([]byte("partial"))
		return 0, err
	}
	data, ok := s.files[name]
	if !ok {
		return 0, fmt.Errorf("550 %s: no such file", name)
	}
	return io.Copy(w, bytes.NewReader(data))
}

func (s *memSource) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	src   *memSource
	err   error
	dials int
	creds secrets.Credentials
}

func (d *fakeDialer) Dial(_ context.Context, creds secrets.Credentials) (remote.Source, error) {
	d.dials++
	d.creds = creds
	if d.err != nil {
		return nil, d.err
	}
	return d.src, nil
}

type fakeProvider struct {
	creds secrets.Credentials
	err   error
	ids   []string
}

func (p *fakeProvider) GetCredentials(_ context.Context, secretID string) (secrets.Credentials, error) {
	p.ids = append(p.ids, secretID)
	if p.err != nil {
		return secrets.Credentials{}, p.err
	}
	return p.creds, nil
}

// fakeTracker records what the stages report.
type fakeTracker struct {
	runs     []*StageRun
	finished []StageRun
	jobs     []FileJob
	err      error
}

func (t *fakeTracker) StartRun(_ context.Context, run *StageRun) error {
	run.ID = int64(len(t.runs) + 1)
	t.runs = append(t.runs, run)
	return t.err
}

func (t *fakeTracker) RecordFile(_ context.Context, job *FileJob) error {
	t.jobs = append(t.jobs, *job)
	return t.err
}

func (t *fakeTracker) FinishRun(_ context.Context, run *StageRun) error {
	t.finished = append(t.finished, *run)
	return t.err
}

type member struct {
	name string
	body string
}

func zipArchive(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, m.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

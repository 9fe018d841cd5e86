package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/config"
)

type memStore struct {
	buckets []string
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) CreateBucket(_ context.Context, bucket string) error {
	m.buckets = append(m.buckets, bucket)
	return nil
}

func (m *memStore) PutObject(_ context.Context, _, key string, data []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) ListObjects(_ context.Context, _, prefix string) ([]string, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func writeOutput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"corp1/bootstrap/services.state":      "dhcp1|100|52:54:00:00:00:01|10.7.5.3\n",
		"corp1/bootstrap/services.state.done": "Done at 2026-10-19T10:00:00Z\n",
		".dropship.lock":                      "pid 1\n",
		".session.json":                       `{"ticket":"secret"}`,
		"journal.db":                          "sqlite",
	}
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dir
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := New(newMemStore(), nil)
	assert.ErrorIs(t, err, ErrNoBucket)

	_, err = New(newMemStore(), &config.ArchiveConfig{})
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestArchiver_Upload(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	a, err := New(store, &config.ArchiveConfig{Bucket: "labs", Prefix: "/dropship/"})
	require.NoError(t, err)

	n, err := a.Upload(context.Background(), writeOutput(t), "20261019-100000")
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"labs"}, store.buckets)
	keys, _ := store.ListObjects(context.Background(), "labs", "")
	assert.Equal(t, []string{
		"dropship/20261019-100000/corp1/bootstrap/services.state",
		"dropship/20261019-100000/corp1/bootstrap/services.state.done",
		"dropship/20261019-100000/journal.db",
	}, keys)
	assert.Equal(t, "sqlite", string(store.objects["dropship/20261019-100000/journal.db"]))
}

func TestArchiver_UploadErrors(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	a, err := New(store, &config.ArchiveConfig{Bucket: "labs"})
	require.NoError(t, err)

	_, err = a.Upload(context.Background(), t.TempDir(), "")
	assert.Error(t, err)

	store.putErr = errors.New("access denied")
	_, err = a.Upload(context.Background(), writeOutput(t), "run1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestArchiver_Runs(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	a, err := New(store, &config.ArchiveConfig{Bucket: "labs", Prefix: "dropship"})
	require.NoError(t, err)
	out := writeOutput(t)
	ctx := context.Background()

	_, err = a.Upload(ctx, out, "run1")
	require.NoError(t, err)
	_, err = a.Upload(ctx, out, "run2")
	require.NoError(t, err)
	store.objects["other/run9/x"] = nil

	runs, err := a.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run1", "run2"}, runs)
}

// fakeS3 answers bucket creation, uploads and a single-page listing.
type fakeS3 struct {
	mu     sync.Mutex
	keys   []string
	exists bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	switch {
	case r.Method == http.MethodPut && len(parts) == 1:
		if f.exists {
			w.WriteHeader(http.StatusConflict)
			_, _ = fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>BucketAlreadyOwnedByYou</Code><Message>owned</Message></Error>`)
			return
		}
		f.exists = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		f.keys = append(f.keys, parts[1])
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>labs</Name><IsTruncated>false</IsTruncated>`)
		for _, k := range f.keys {
			if strings.HasPrefix(k, r.URL.Query().Get("prefix")) {
				fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>1</Size></Contents>", k)
			}
		}
		b.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = fmt.Fprint(w, b.String())
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestS3Client_AgainstEndpoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(&fakeS3{})
	t.Cleanup(srv.Close)
	ctx := context.Background()

	cfg := &config.ArchiveConfig{Bucket: "labs", Endpoint: srv.URL, Region: "us-east-1", AccessKey: "ak", SecretKey: "sk", Prefix: "dropship"}
	client, err := NewS3Client(ctx, cfg)
	require.NoError(t, err)
	a, err := New(client, cfg)
	require.NoError(t, err)

	n, err := a.Upload(ctx, writeOutput(t), "run1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// second upload hits the existing bucket
	_, err = a.Upload(ctx, writeOutput(t), "run2")
	require.NoError(t, err)

	runs, err := a.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run1", "run2"}, runs)
}

func TestIsBucketAlreadyOwnedByYou(t *testing.T) {
	t.Parallel()
	assert.False(t, isBucketAlreadyOwnedByYou(nil))
	assert.False(t, isBucketAlreadyOwnedByYou(errors.New("boom")))
}

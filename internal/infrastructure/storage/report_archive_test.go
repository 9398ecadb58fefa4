package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/config"
)

func TestNewS3ReportArchive_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewS3ReportArchive(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewS3ReportArchive(ctx, &config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("half a key pair", func(t *testing.T) {
		_, err := NewS3ReportArchive(ctx, &config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		archive, err := NewS3ReportArchive(ctx, &config.StorageConfig{
			Bucket: "reports", AccessKey: "k", SecretKey: "s", Endpoint: "localhost:9000",
		})
		require.NoError(t, err)
		assert.Equal(t, "reports", archive.Bucket())
		assert.Equal(t, defaultPrefix, archive.prefix)
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "", normalizeEndpoint("", true))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normalizeEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("http://minio:9000", true))
}

func TestS3ReportArchive_ObjectKey(t *testing.T) {
	archive := &S3ReportArchive{prefix: "catalog/runs"}
	report := &catalog.SyncReport{
		Status:    catalog.SyncStatusCompleted,
		StartedAt: time.Date(2025, 3, 7, 4, 5, 6, 789_000_000, time.FixedZone("ART", -3*3600)),
	}
	assert.Equal(t, "catalog/runs/2025/03/07/20250307T070506.789Z-completed.json", archive.ObjectKey(report))

	report.Status = ""
	assert.Equal(t, "catalog/runs/2025/03/07/20250307T070506.789Z-unknown.json", archive.ObjectKey(report))
}

// fakeS3 records the requests of an S3 client configured with path-style addressing
type fakeS3 struct {
	mu           sync.Mutex
	bucketExists bool
	objects      map[string][]byte
	created      []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/reports":
		if !f.bucketExists {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/reports":
		f.bucketExists = true
		f.created = append(f.created, "reports")
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeArchive(t *testing.T, fake *fakeS3) *S3ReportArchive {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	archive, err := NewS3ReportArchive(context.Background(), &config.StorageConfig{
		Endpoint:     server.URL,
		Bucket:       "reports",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return archive
}

func TestS3ReportArchive_EnsureBucket(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	archive := newFakeArchive(t, fake)

	require.NoError(t, archive.EnsureBucket(context.Background()))
	require.NoError(t, archive.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"reports"}, fake.created, "bucket is created once")
}

func TestS3ReportArchive_Archive(t *testing.T) {
	fake := &fakeS3{bucketExists: true, objects: map[string][]byte{}}
	archive := newFakeArchive(t, fake)

	report := catalog.NewSyncReport()
	report.ProcessedCount = 3
	report.CreatedCount = 1
	report.Complete()

	key, err := archive.Archive(context.Background(), report)
	require.NoError(t, err)

	body, ok := fake.objects["/reports/"+key]
	require.True(t, ok, "object stored under %s", key)

	var stored catalog.SyncReport
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.True(t, stored.Success)
	assert.Equal(t, catalog.SyncStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.ProcessedCount)

	_, err = archive.Archive(context.Background(), nil)
	assert.Error(t, err)
}

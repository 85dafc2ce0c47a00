package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpoints/internal/config"
)

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()

	sink, err := New(ctx, config.ArchiveConfig{Driver: config.ArchiveNone})
	require.NoError(t, err)
	assert.Nil(t, sink)

	sink, err = New(ctx, config.ArchiveConfig{Driver: config.ArchiveFilesystem, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Filesystem{}, sink)

	_, err = New(ctx, config.ArchiveConfig{Driver: config.ArchiveS3})
	assert.Error(t, err, "bucket is required")

	_, err = New(ctx, config.ArchiveConfig{Driver: "ftp"})
	assert.Error(t, err)
}

func TestFilesystemPut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "backups")
	fs, err := NewFilesystem(dir)
	require.NoError(t, err)

	path, err := fs.Put(context.Background(), "habits-data-2024-03-01.json", []byte(`{"children":[]}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "habits-data-2024-03-01.json"), path)

	// Same name overwrites
	_, err = fs.Put(context.Background(), "habits-data-2024-03-01.json", []byte(`{"children":[1]}`))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"children":[1]}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFilesystemRejectsBadNames(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../escape.json", `dir\file.json`} {
		_, err := fs.Put(context.Background(), name, []byte("x"))
		assert.Error(t, err, name)
	}
}

func TestS3Put(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		path = r.URL.Path
		ctype = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewS3(context.Background(), S3Config{
		Bucket:          "family-backups",
		Endpoint:        srv.URL,
		Prefix:          "habits/",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	})
	require.NoError(t, err)

	location, err := sink.Put(context.Background(), "habits-data-2024-03-01.json", []byte(`{"children":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://family-backups/habits/habits-data-2024-03-01.json", location)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/family-backups/habits/habits-data-2024-03-01.json", path)
	assert.Equal(t, "application/json", ctype)
	assert.Contains(t, string(body), `{"children":[]}`)
}

func TestS3PutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	defer srv.Close()

	sink, err := NewS3(context.Background(), S3Config{
		Bucket:          "family-backups",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	})
	require.NoError(t, err)

	_, err = sink.Put(context.Background(), "x.json", []byte("{}"))
	assert.Error(t, err)
}

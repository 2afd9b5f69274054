package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/retry"
)

func imageServer(t *testing.T, status func(hit int32) int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		code := status(n)
		w.WriteHeader(code)
		if code == http.StatusOK {
			w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func always(code int) func(int32) int {
	return func(int32) int { return code }
}

func TestFetchDownloadsToDestination(t *testing.T) {
	srv, hits := imageServer(t, always(http.StatusOK), "jpeg-bytes")
	dest := filepath.Join(t.TempDir(), "tweet_1_image_0.jpg")

	f := NewFetcher(srv.Client())
	out, err := f.Fetch(context.Background(), srv.URL+"/img.jpg", dest)

	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.EqualValues(t, len("jpeg-bytes"), out.Bytes)
	assert.EqualValues(t, 1, hits.Load())

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(content))
}

func TestFetchSkipsExistingArtifact(t *testing.T) {
	srv, hits := imageServer(t, always(http.StatusOK), "new")
	dest := filepath.Join(t.TempDir(), "profile_image_user_alice.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	out, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL, dest)

	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.EqualValues(t, 0, hits.Load(), "no network call for an existing file")

	content, _ := os.ReadFile(dest)
	assert.Equal(t, "old", string(content))
}

func TestFetchFailureLeavesNoFile(t *testing.T) {
	srv, _ := imageServer(t, always(http.StatusNotFound), "")
	dir := t.TempDir()
	dest := filepath.Join(dir, "missing.jpg")

	_, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL, dest)

	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNotFound))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	srv, hits := imageServer(t, func(hit int32) int {
		if hit == 1 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}, "eventually")
	dest := filepath.Join(t.TempDir(), "img.jpg")

	f := NewFetcher(srv.Client(), WithRetries(1), WithBackoff(&retry.ConstantBackoff{Delay: time.Millisecond}))
	_, err := f.Fetch(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetchNoRetryByDefault(t *testing.T) {
	srv, hits := imageServer(t, always(http.StatusBadGateway), "")
	dest := filepath.Join(t.TempDir(), "img.jpg")

	_, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL, dest)
	assert.True(t, errs.IsType(err, errs.ErrorTypeServerError))
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv, _ := imageServer(t, always(http.StatusOK), "0123456789abcdef")
	dir := t.TempDir()
	dest := filepath.Join(dir, "big.jpg")

	_, err := NewFetcher(srv.Client(), WithMaxFileSize(8)).Fetch(context.Background(), srv.URL, dest)

	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFetchMissingDirectoryIsError(t *testing.T) {
	srv, _ := imageServer(t, always(http.StatusOK), "x")
	dest := filepath.Join(t.TempDir(), "no", "such", "dir", "img.jpg")

	_, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL, dest)
	assert.True(t, errs.IsType(err, errs.ErrorTypePersistence))
}

func TestFetchSendsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "img.jpg")
	_, err := NewFetcher(srv.Client(), WithUserAgent("twarchive/test")).Fetch(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, "twarchive/test", ua.Load())
}

func TestSafeClientBlocksLoopback(t *testing.T) {
	srv, hits := imageServer(t, always(http.StatusOK), "secret")
	dest := filepath.Join(t.TempDir(), "img.jpg")

	client := NewHTTPClient(2*time.Second, true)
	_, err := NewFetcher(client).Fetch(context.Background(), srv.URL, dest)

	require.Error(t, err)
	assert.EqualValues(t, 0, hits.Load())
	assert.NoFileExists(t, dest)
}

package httpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"twarchive/pkg/logger"
	"twarchive/pkg/metrics"
	"twarchive/pkg/models"
	"twarchive/pkg/render"
	"twarchive/pkg/store"
)

type failingRenderer struct{}

func (failingRenderer) Render([]models.Record) ([]byte, error) {
	return nil, errors.New("template broke")
}

func newTestServer(t *testing.T, renderer PageRenderer) (*httptest.Server, *store.RecordStore) {
	t.Helper()
	st := store.New()
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).SetStoreSize(1)

	srv := New("127.0.0.1:0", st, renderer, metrics.Handler(reg), logger.NewNopLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthz(t *testing.T) {
	ts, st := newTestServer(t, render.New(render.Options{}))
	st.InsertIfAbsent(models.Record{ID: "1"})

	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["records"])
}

func TestArchivePreview(t *testing.T) {
	ts, st := newTestServer(t, render.New(render.Options{}))
	st.InsertIfAbsent(models.Record{ID: "42", Text: "hello", User: models.Author{ScreenName: "amy"}})

	resp, body := get(t, ts.URL+"/archive")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, `data-tweet-id="42"`)
}

func newAssetServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profile_images"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_images", "profile_image_user_amy.jpg"), []byte("avatar"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tweets-2026-10-18.txt"), []byte("{}\n"), 0644))

	srv := New("127.0.0.1:0", store.New(), render.New(render.Options{}), nil, logger.NewNopLogger(),
		WithAssets(Assets{
			Dir:        dir,
			Stylesheet: "style.css",
			DefaultCSS: []byte("body{}"),
			MediaDirs:  []string{"profile_images", "tweet_images"},
		}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, dir
}

func TestArchivePreviewServesMedia(t *testing.T) {
	ts, _ := newAssetServer(t)

	resp, body := get(t, ts.URL+"/profile_images/profile_image_user_amy.jpg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "avatar", body)

	resp, _ = get(t, ts.URL+"/tweet_images/missing.jpg")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestArchivePreviewStylesheet(t *testing.T) {
	ts, dir := newAssetServer(t)

	resp, body := get(t, ts.URL+"/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{}", body, "embedded default before the file is written")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("p{}"), 0644))
	resp, body = get(t, ts.URL+"/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "p{}", body)
}

func TestArchivePreviewHidesLogs(t *testing.T) {
	ts, _ := newAssetServer(t)

	resp, _ := get(t, ts.URL+"/tweets-2026-10-18.txt")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/profile_images/../tweets-2026-10-18.txt")
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestArchivePreviewRenderError(t *testing.T) {
	ts, _ := newTestServer(t, failingRenderer{})

	resp, _ := get(t, ts.URL+"/archive")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, render.New(render.Options{}))

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "twarchive_store_records 1")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	srv := New(addr, store.New(), render.New(render.Options{}), nil, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunReportsListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	srv := New(l.Addr().String(), store.New(), render.New(render.Options{}), nil, logger.NewNopLogger())
	assert.Error(t, srv.Run(context.Background()))
}

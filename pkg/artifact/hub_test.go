package artifact_test

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/artifact"
)

const testRepo = "org/model"

var fastRetry = artifact.RetryConfig{MaxTries: 4, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func newHubStore(t *testing.T, endpoint, token string) *artifact.HubStore {
	t.Helper()
	store, err := artifact.NewHubStore(artifact.HubConfig{
		Endpoint: endpoint,
		RepoID:   testRepo,
		Token:    token,
		CacheDir: t.TempDir(),
		Timeout:  5 * time.Second,
		Retry:    fastRetry,
	})
	require.NoError(t, err)
	return store
}

func TestHubStore_Download(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /org/model/resolve/main/{name}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.PathValue("name") != artifact.DefaultName {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("artifact bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := newHubStore(t, srv.URL, "")
	path, err := store.Download(context.Background(), artifact.DefaultName)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, filepath.Join("org", "model", artifact.DefaultName)), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "artifact bytes", string(got))

	_, err = store.Download(context.Background(), "other.joblib")
	require.ErrorIs(t, err, artifact.ErrRemoteNotFound)
	require.ErrorIs(t, err, artifact.ErrTransfer)
	require.Equal(t, int32(2), calls.Load(), "404 is not retried")
}

func TestHubStore_DownloadRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	path, err := newHubStore(t, srv.URL, "").Download(context.Background(), artifact.DefaultName)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ok", string(got))
}

func TestHubStore_DownloadGivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newHubStore(t, srv.URL, "").Download(context.Background(), artifact.DefaultName)
	require.ErrorIs(t, err, artifact.ErrTransfer)
	require.Equal(t, int32(fastRetry.MaxTries), calls.Load())
}

func TestHubStore_UploadRegular(t *testing.T) {
	t.Parallel()

	content := []byte("small artifact")
	var (
		mu    sync.Mutex
		lines []map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/models/org/model/preupload/main", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{{"path": artifact.DefaultName, "uploadMode": "regular"}},
		})
	})
	mux.HandleFunc("POST /api/models/org/model/commit/main", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
		sc := bufio.NewScanner(r.Body)
		mu.Lock()
		for sc.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
			lines = append(lines, line)
		}
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"commitOid": "abc123", "commitUrl": "https://hub/commit/abc123"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	local := filepath.Join(t.TempDir(), artifact.DefaultName)
	require.NoError(t, os.WriteFile(local, content, 0o644))
	require.NoError(t, newHubStore(t, srv.URL, "secret").Upload(context.Background(), local, artifact.DefaultName))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 2)
	require.Equal(t, "header", lines[0]["key"])
	require.Equal(t, "file", lines[1]["key"])
	value := lines[1]["value"].(map[string]any)
	require.Equal(t, artifact.DefaultName, value["path"])
	require.Equal(t, "base64", value["encoding"])
	require.Equal(t, base64.StdEncoding.EncodeToString(content), value["content"])
}

func TestHubStore_UploadLFS(t *testing.T) {
	t.Parallel()

	content := []byte("large artifact stored through git-lfs")
	sum := sha256.Sum256(content)
	oid := hex.EncodeToString(sum[:])

	var (
		mu       sync.Mutex
		uploaded []byte
		verified bool
		commit   []map[string]any
	)
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/models/org/model/preupload/main", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{{"path": artifact.DefaultName, "uploadMode": "lfs"}},
		})
	})
	mux.HandleFunc("POST /org/model.git/info/lfs/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Operation string `json:"operation"`
			Objects   []struct {
				Oid  string `json:"oid"`
				Size int    `json:"size"`
			} `json:"objects"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "upload", req.Operation)
		require.Equal(t, oid, req.Objects[0].Oid)
		require.Equal(t, len(content), req.Objects[0].Size)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{{
				"oid":  oid,
				"size": len(content),
				"actions": map[string]any{
					"upload": map[string]any{"href": srv.URL + "/lfs/upload", "header": map[string]string{"X-Upload-Token": "t"}},
					"verify": map[string]any{"href": srv.URL + "/lfs/verify"},
				},
			}},
		})
	})
	mux.HandleFunc("PUT /lfs/upload", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "t", r.Header.Get("X-Upload-Token"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		uploaded = body
		mu.Unlock()
	})
	mux.HandleFunc("POST /lfs/verify", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		verified = true
		mu.Unlock()
	})
	mux.HandleFunc("POST /api/models/org/model/commit/main", func(w http.ResponseWriter, r *http.Request) {
		sc := bufio.NewScanner(r.Body)
		mu.Lock()
		for sc.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
			commit = append(commit, line)
		}
		mu.Unlock()
		_, _ = w.Write([]byte(`{"commitOid":"def456"}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	local := filepath.Join(t.TempDir(), artifact.DefaultName)
	require.NoError(t, os.WriteFile(local, content, 0o644))
	require.NoError(t, newHubStore(t, srv.URL, "secret").Upload(context.Background(), local, artifact.DefaultName))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, content, uploaded)
	require.True(t, verified)
	require.Len(t, commit, 2)
	require.Equal(t, "lfsFile", commit[1]["key"])
	value := commit[1]["value"].(map[string]any)
	require.Equal(t, oid, value["oid"])
	require.Equal(t, "sha256", value["algo"])
	require.EqualValues(t, len(content), value["size"])
}

func TestHubStore_UploadErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	local := filepath.Join(t.TempDir(), artifact.DefaultName)
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	err := newHubStore(t, srv.URL, "").Upload(context.Background(), local, artifact.DefaultName)
	require.ErrorIs(t, err, artifact.ErrTransfer)
	require.Zero(t, calls.Load(), "no request without a token")

	err = newHubStore(t, srv.URL, "bad").Upload(context.Background(), local, artifact.DefaultName)
	require.ErrorIs(t, err, artifact.ErrTransfer)
	require.Equal(t, int32(1), calls.Load(), "403 is not retried")
}

func TestHubConfig_Validate(t *testing.T) {
	t.Parallel()

	_, err := artifact.NewHubStore(artifact.HubConfig{CacheDir: t.TempDir()})
	require.ErrorContains(t, err, "repo id is required")
	_, err = artifact.NewHubStore(artifact.HubConfig{RepoID: testRepo})
	require.ErrorContains(t, err, "cache dir is required")

	cfg := artifact.HubConfig{RepoID: testRepo, CacheDir: t.TempDir(), Endpoint: "https://example.com/"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "https://example.com", cfg.Endpoint)
	require.Equal(t, artifact.DefaultRevision, cfg.Revision)
	require.NotNil(t, cfg.HTTPClient)
}

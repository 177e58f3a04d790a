package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzhttp"
)

const (
	// DefaultHubEndpoint is the public Hugging Face Hub.
	DefaultHubEndpoint = "https://huggingface.co"
	// DefaultRevision is the branch artifacts are read from and committed to.
	DefaultRevision = "main"

	lfsMediaType     = "application/vnd.git-lfs+json"
	maxErrorBodySize = 512
	sampleSize       = 512
)

// HubConfig configures a HubStore.
type HubConfig struct {
	Endpoint string
	RepoID   string
	Token    string // required for Upload only
	Revision string
	CacheDir string

	// Optional configuration.
	Timeout    time.Duration // per HTTP request
	Retry      RetryConfig
	HTTPClient *http.Client
	Log        *slog.Logger
}

func (c *HubConfig) Validate() error {
	if c.RepoID == "" {
		return errors.New("repo id is required")
	}
	if c.CacheDir == "" {
		return errors.New("cache dir is required")
	}

	// Optional configuration.
	if c.Endpoint == "" {
		c.Endpoint = DefaultHubEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Revision == "" {
		c.Revision = DefaultRevision
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	c.Retry.setDefaults()
	if c.HTTPClient == nil {
		c.HTTPClient = newHTTPClient()
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return nil
}

// HubStore talks to a Hugging Face Hub compatible model repository.
// Downloads are anonymous; uploads are single-file commits authenticated with
// the configured token, going through git-lfs when the hub asks for it.
type HubStore struct {
	cfg HubConfig
}

var _ Store = (*HubStore)(nil)

// NewHubStore validates cfg and returns a store.
func NewHubStore(cfg HubConfig) (*HubStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("artifact: hub config: %w", err)
	}
	return &HubStore{cfg: cfg}, nil
}

func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: gzhttp.Transport(tr)}
}

// Download fetches remoteName from the configured revision into the cache dir.
func (h *HubStore) Download(ctx context.Context, remoteName string) (string, error) {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", h.cfg.Endpoint, h.cfg.RepoID, url.PathEscape(h.cfg.Revision), remoteName)
	dest := filepath.Join(h.cfg.CacheDir, filepath.FromSlash(h.cfg.RepoID), filepath.FromSlash(remoteName))

	body, err := withRetry(ctx, h.cfg.Log, h.cfg.Retry, "download "+remoteName, func() ([]byte, error) {
		return h.do(ctx, http.MethodGet, u, "", nil, false)
	})
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(dest, body); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", dest, err)
	}
	h.cfg.Log.Debug("Downloaded artifact", "repo", h.cfg.RepoID, "name", remoteName, "path", dest, "bytes", len(body))
	return dest, nil
}

// Upload commits the file at localPath to the repository as remoteName.
func (h *HubStore) Upload(ctx context.Context, localPath, remoteName string) error {
	if h.cfg.Token == "" {
		return fmt.Errorf("%w: upload %s: token is required", ErrTransfer, remoteName)
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", localPath, err)
	}

	mode, err := withRetry(ctx, h.cfg.Log, h.cfg.Retry, "preupload "+remoteName, func() (string, error) {
		return h.preupload(ctx, remoteName, content)
	})
	if err != nil {
		return err
	}

	var op commitOperation
	switch mode {
	case "lfs":
		oid, err := h.uploadLFS(ctx, remoteName, content)
		if err != nil {
			return err
		}
		op = commitOperation{Key: "lfsFile", Value: lfsFileValue{Path: remoteName, Algo: "sha256", Oid: oid, Size: len(content)}}
	default:
		op = commitOperation{Key: "file", Value: fileValue{Path: remoteName, Encoding: "base64", Content: base64.StdEncoding.EncodeToString(content)}}
	}

	res, err := withRetry(ctx, h.cfg.Log, h.cfg.Retry, "commit "+remoteName, func() (commitResponse, error) {
		return h.commit(ctx, remoteName, op)
	})
	if err != nil {
		return err
	}
	h.cfg.Log.Debug("Committed artifact", "repo", h.cfg.RepoID, "name", remoteName, "mode", mode, "commit", res.CommitOid, "url", res.CommitURL)
	return nil
}

type preuploadFile struct {
	Path         string `json:"path"`
	Sample       string `json:"sample,omitempty"`
	Size         int    `json:"size,omitempty"`
	UploadMode   string `json:"uploadMode,omitempty"`
	ShouldIgnore bool   `json:"shouldIgnore,omitempty"`
}

type preuploadPayload struct {
	Files []preuploadFile `json:"files"`
}

func (h *HubStore) preupload(ctx context.Context, name string, content []byte) (string, error) {
	sample := content[:min(len(content), sampleSize)]
	req := preuploadPayload{Files: []preuploadFile{{
		Path:   name,
		Sample: base64.StdEncoding.EncodeToString(sample),
		Size:   len(content),
	}}}
	u := fmt.Sprintf("%s/api/models/%s/preupload/%s", h.cfg.Endpoint, h.cfg.RepoID, url.PathEscape(h.cfg.Revision))
	var res preuploadPayload
	if err := h.doJSON(ctx, u, "application/json", req, &res); err != nil {
		return "", err
	}
	for _, f := range res.Files {
		if f.Path == name && f.UploadMode != "" {
			return f.UploadMode, nil
		}
	}
	return "regular", nil
}

type lfsObject struct {
	Oid     string               `json:"oid"`
	Size    int                  `json:"size"`
	Actions map[string]lfsAction `json:"actions,omitempty"`
	Error   *lfsError            `json:"error,omitempty"`
}

type lfsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type lfsAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header,omitempty"`
}

type lfsBatchRequest struct {
	Operation string      `json:"operation"`
	Transfers []string    `json:"transfers"`
	Objects   []lfsObject `json:"objects"`
	HashAlgo  string      `json:"hash_algo"`
}

type lfsBatchResponse struct {
	Objects []lfsObject `json:"objects"`
}

// uploadLFS pushes content through the git-lfs batch API and returns its oid.
func (h *HubStore) uploadLFS(ctx context.Context, name string, content []byte) (string, error) {
	sum := sha256.Sum256(content)
	oid := hex.EncodeToString(sum[:])

	batchURL := fmt.Sprintf("%s/%s.git/info/lfs/objects/batch", h.cfg.Endpoint, h.cfg.RepoID)
	obj, err := withRetry(ctx, h.cfg.Log, h.cfg.Retry, "lfs batch "+name, func() (lfsObject, error) {
		var res lfsBatchResponse
		err := h.doJSON(ctx, batchURL, lfsMediaType, lfsBatchRequest{
			Operation: "upload",
			Transfers: []string{"basic"},
			Objects:   []lfsObject{{Oid: oid, Size: len(content)}},
			HashAlgo:  "sha256",
		}, &res)
		if err != nil {
			return lfsObject{}, err
		}
		if len(res.Objects) != 1 {
			return lfsObject{}, backoff.Permanent(fmt.Errorf("lfs batch returned %d objects", len(res.Objects)))
		}
		if res.Objects[0].Error != nil {
			return lfsObject{}, backoff.Permanent(fmt.Errorf("lfs batch: %s", res.Objects[0].Error.Message))
		}
		return res.Objects[0], nil
	})
	if err != nil {
		return "", err
	}

	upload, ok := obj.Actions["upload"]
	if !ok {
		h.cfg.Log.Debug("LFS object already present", "oid", oid)
		return oid, nil
	}
	if _, multipart := upload.Header["chunk_size"]; multipart {
		return "", fmt.Errorf("%w: lfs upload %s: multipart transfer is not supported", ErrTransfer, name)
	}
	if _, err := withRetry(ctx, h.cfg.Log, h.cfg.Retry, "lfs upload "+name, func() ([]byte, error) {
		return h.doWithHeaders(ctx, http.MethodPut, upload.Href, upload.Header, content)
	}); err != nil {
		return "", err
	}
	if verify, ok := obj.Actions["verify"]; ok {
		body, _ := json.Marshal(lfsObject{Oid: oid, Size: len(content)})
		hdr := map[string]string{"Content-Type": lfsMediaType, "Authorization": "Bearer " + h.cfg.Token}
		for k, v := range verify.Header {
			hdr[k] = v
		}
		if _, err := withRetry(ctx, h.cfg.Log, h.cfg.Retry, "lfs verify "+name, func() ([]byte, error) {
			return h.doWithHeaders(ctx, http.MethodPost, verify.Href, hdr, body)
		}); err != nil {
			return "", err
		}
	}
	return oid, nil
}

type commitOperation struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type fileValue struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
}

type lfsFileValue struct {
	Path string `json:"path"`
	Algo string `json:"algo"`
	Oid  string `json:"oid"`
	Size int    `json:"size"`
}

type commitResponse struct {
	CommitURL string `json:"commitUrl"`
	CommitOid string `json:"commitOid"`
}

func (h *HubStore) commit(ctx context.Context, name string, op commitOperation) (commitResponse, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, line := range []commitOperation{
		{Key: "header", Value: commitHeader{Summary: "Upload " + name}},
		op,
	} {
		if err := enc.Encode(line); err != nil {
			return commitResponse{}, backoff.Permanent(err)
		}
	}
	u := fmt.Sprintf("%s/api/models/%s/commit/%s", h.cfg.Endpoint, h.cfg.RepoID, url.PathEscape(h.cfg.Revision))
	raw, err := h.do(ctx, http.MethodPost, u, "application/x-ndjson", body.Bytes(), true)
	if err != nil {
		return commitResponse{}, err
	}
	var res commitResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return commitResponse{}, backoff.Permanent(fmt.Errorf("decode commit response: %w", err))
		}
	}
	return res, nil
}

func (h *HubStore) doJSON(ctx context.Context, u, contentType string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return backoff.Permanent(err)
	}
	hdr := map[string]string{
		"Content-Type":  contentType,
		"Accept":        contentType,
		"Authorization": "Bearer " + h.cfg.Token,
	}
	raw, err := h.doWithHeaders(ctx, http.MethodPost, u, hdr, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode %s: %w", u, err))
	}
	return nil
}

func (h *HubStore) do(ctx context.Context, method, u, contentType string, body []byte, auth bool) ([]byte, error) {
	hdr := map[string]string{}
	if contentType != "" {
		hdr["Content-Type"] = contentType
	}
	if auth {
		hdr["Authorization"] = "Bearer " + h.cfg.Token
	}
	return h.doWithHeaders(ctx, method, u, hdr, body)
}

// doWithHeaders performs one request under the per-request timeout. Failures
// that a retry cannot fix are marked permanent.
func (h *HubStore) doWithHeaders(ctx context.Context, method, u string, hdr map[string]string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(method, u, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func statusError(method, u string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	err := fmt.Errorf("%s %s: %s: %s", method, u, resp.Status, strings.TrimSpace(string(snippet)))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("%w: %w", ErrRemoteNotFound, err))
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			return backoff.RetryAfter(secs)
		}
		return err
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return err
	default:
		return backoff.Permanent(err)
	}
}

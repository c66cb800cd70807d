package galaxy

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func testClient(url string) *Client {
	config := DefaultConfig().WithAPIKey("test-key").WithRetries(3, time.Millisecond)
	config.URL = url
	return NewClient(config, nil)
}

func TestClient_CreateHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/histories" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected test-key api key")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json content type")
		}

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req["name"] != "sub_1" {
			t.Errorf("name = %q, want sub_1", req["name"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(History{ID: "h1", Name: req["name"], State: StateNew})
	}))
	defer server.Close()

	h, err := testClient(server.URL).CreateHistory(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("CreateHistory() error = %v", err)
	}
	if h.ID != "h1" {
		t.Errorf("ID = %q, want h1", h.ID)
	}
}

func TestClient_ShowHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/histories/h1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"h1","state":"running","state_ids":{"ok":["d1","d2","d3"],"running":["d4"],"queued":[]}}`))
	}))
	defer server.Close()

	h, err := testClient(server.URL).ShowHistory(context.Background(), "h1")
	if err != nil {
		t.Fatalf("ShowHistory() error = %v", err)
	}
	if h.State != StateRunning {
		t.Errorf("State = %q, want running", h.State)
	}
	if len(h.StateIDs[StateOK]) != 3 || len(h.StateIDs[StateRunning]) != 1 {
		t.Errorf("unexpected state ids: %v", h.StateIDs)
	}
}

func TestClient_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"err_msg":"History not found","err_code":404001}`))
	}))
	defer server.Close()

	err := testClient(server.URL).DeleteHistory(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsNotFoundError(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("404 should not be retryable")
	}
}

func TestClient_Retry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			// Server error on the first two attempts.
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"id":"h1","state":"ok","state_ids":{"ok":["d1"]}}`))
	}))
	defer server.Close()

	h, err := testClient(server.URL).ShowHistory(context.Background(), "h1")
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if h.State != StateOK {
		t.Errorf("State = %q, want ok", h.State)
	}
}

func TestClient_NoRetryOnCreate(t *testing.T) {
	tests := []struct {
		name string
		call func(c *Client) error
	}{
		{"CreateHistory", func(c *Client) error {
			_, err := c.CreateHistory(context.Background(), "sub_1")
			return err
		}},
		{"CopyLibraryDatasetToHistory", func(c *Client) error {
			_, err := c.CopyLibraryDatasetToHistory(context.Background(), "h1", "ld1")
			return err
		}},
		{"CreateLibrary", func(c *Client) error {
			_, err := c.CreateLibrary(context.Background(), "sub_1", "")
			return err
		}},
		{"UploadFromPath", func(c *Client) error {
			_, err := c.UploadFromPath(context.Background(), UploadPathInput{LibraryID: "lib1", FolderID: "Flib1", Path: "/data/r1.fastq"})
			return err
		}},
		{"ImportWorkflow", func(c *Client) error {
			_, err := c.ImportWorkflow(context.Background(), json.RawMessage(`{}`))
			return err
		}},
		{"InvokeWorkflow", func(c *Client) error {
			_, err := c.InvokeWorkflow(context.Background(), "wf1", InvokeRequest{HistoryID: "h1"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Each POST creates a resource; the response is then lost upstream.
			var created atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := created.Add(1)
				if n == 1 {
					w.WriteHeader(http.StatusGatewayTimeout)
					return
				}
				w.Write([]byte(`{"id":"second"}`))
			}))
			defer server.Close()

			err := tt.call(testClient(server.URL))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := created.Load(); got != 1 {
				t.Errorf("expected 1 request, got %d", got)
			}
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusGatewayTimeout {
				t.Errorf("expected 504 HTTPError, got %v", err)
			}
		})
	}
}

func TestClient_CreateRetriedWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := testClient(url).CreateHistory(context.Background(), "sub_1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "all retries exhausted") {
		t.Errorf("expected retries on refused connection, got %v", err)
	}
}

func TestRequestNotSent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dial", &transportError{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")}}, true},
		{"refused", &transportError{err: syscall.ECONNREFUSED}, true},
		{"reset after write", &transportError{err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}}, false},
		{"gateway timeout", &HTTPError{StatusCode: http.StatusGatewayTimeout}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestNotSent(tt.err); got != tt.want {
				t.Errorf("requestNotSent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_NoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"err_msg":"bad workflow","err_code":400008}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).ImportWorkflow(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != 400008 || httpErr.Body != "bad workflow" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL).ShowInvocation(context.Background(), "inv1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := attempts.Load(); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
	if !IsRetryable(err) {
		t.Error("exhausted 503 should still classify as retryable")
	}
}

func TestClient_InvokeWorkflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/workflows/wf1/invocations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req InvokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.HistoryID != "h1" || req.InputsBy != "name" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"id":"inv1","workflow_id":"wf1","history_id":"h1","state":"new"}`))
	}))
	defer server.Close()

	inv, err := testClient(server.URL).InvokeWorkflow(context.Background(), "wf1", InvokeRequest{
		HistoryID: "h1",
		Inputs:    map[string]any{"reads": InvocationInput{Src: "hda", ID: "d1"}},
	})
	if err != nil {
		t.Fatalf("InvokeWorkflow() error = %v", err)
	}
	if inv.ID != "inv1" || inv.State != InvocationNew {
		t.Errorf("unexpected invocation %+v", inv)
	}
}

func TestClient_UploadFromPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["filesystem_paths"] != "/data/r1.fastq" {
			t.Errorf("filesystem_paths = %v", req["filesystem_paths"])
		}
		if req["folder_id"] != "Flib1" {
			t.Errorf("folder_id = %v", req["folder_id"])
		}
		w.Write([]byte(`[{"id":"ld1","name":"r1.fastq"}]`))
	}))
	defer server.Close()

	ds, err := testClient(server.URL).UploadFromPath(context.Background(), UploadPathInput{
		LibraryID: "lib1",
		FolderID:  "Flib1",
		Path:      "/data/r1.fastq",
	})
	if err != nil {
		t.Fatalf("UploadFromPath() error = %v", err)
	}
	if ds.ID != "ld1" {
		t.Errorf("ID = %q, want ld1", ds.ID)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testClient(server.URL).ShowHistory(ctx, "h1"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestInvocation_JobIDForOutput(t *testing.T) {
	inv := &Invocation{Steps: []InvocationStep{
		{ID: "s0"},
		{ID: "s1", JobID: "j1", Label: "trim"},
		{ID: "s2", JobID: "j2", Label: "assemble"},
	}}
	if got := inv.JobIDForOutput("trim"); got != "j1" {
		t.Errorf("JobIDForOutput(trim) = %q, want j1", got)
	}
	if got := inv.JobIDForOutput("contigs"); got != "j2" {
		t.Errorf("JobIDForOutput(contigs) = %q, want j2", got)
	}
}

func TestDatasetDownloadURL(t *testing.T) {
	config := DefaultConfig()
	config.URL = "https://galaxy.example.org/"
	c := NewClient(config, nil)
	want := "https://galaxy.example.org/api/datasets/d1/display?to_ext=data"
	if got := c.DatasetDownloadURL("d1"); got != want {
		t.Errorf("DatasetDownloadURL() = %q, want %q", got, want)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.URL != DefaultURL {
		t.Errorf("URL = %v, want %v", config.URL, DefaultURL)
	}
	if config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", config.Timeout, DefaultTimeout)
	}
	if config.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %v, want %v", config.MaxRetries, DefaultMaxRetries)
	}
	if config.RequestsPerSecond != DefaultRequestsPerSecond {
		t.Errorf("RequestsPerSecond = %v, want %v", config.RequestsPerSecond, DefaultRequestsPerSecond)
	}
}

func TestConfig_With(t *testing.T) {
	config := DefaultConfig()

	config2 := config.WithAPIKey("my-key")
	if config2.APIKey != "my-key" {
		t.Errorf("WithAPIKey did not set key")
	}
	if config.APIKey != "" {
		t.Error("WithAPIKey modified original config")
	}

	config3 := config.WithTimeout(time.Minute)
	if config3.Timeout != time.Minute {
		t.Errorf("WithTimeout did not set timeout")
	}

	config4 := config.WithRetries(5, time.Second*2)
	if config4.MaxRetries != 5 || config4.RetryDelay != time.Second*2 {
		t.Errorf("WithRetries did not set retry settings")
	}

	config5 := config.WithRateLimit(2, 4)
	if config5.RequestsPerSecond != 2 || config5.Burst != 4 {
		t.Errorf("WithRateLimit did not set limits")
	}
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", &HTTPError{StatusCode: 401}, true},
		{"forbidden", WrapError("op", &HTTPError{StatusCode: 403}), true},
		{"not authenticated sentinel", ErrNotAuthenticated, true},
		{"not found", &HTTPError{StatusCode: 404}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "  env-key \n")
	key, err := LoadAPIKeyFromEnv()
	if err != nil || key != "env-key" {
		t.Errorf("LoadAPIKeyFromEnv() = %q, %v", key, err)
	}

	dir := t.TempDir()
	if _, err := loadAPIKeyFrom(dir); err != ErrNoAPIKey {
		t.Errorf("empty dir: err = %v, want ErrNoAPIKey", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".galaxy_api_key"), []byte("file-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	key, err = loadAPIKeyFrom(dir)
	if err != nil || key != "file-key" {
		t.Errorf("loadAPIKeyFrom() = %q, %v", key, err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey("abcdef123456"); got != "********3456" {
		t.Errorf("MaskAPIKey() = %q", got)
	}
	if got := MaskAPIKey("abc"); got != "***" {
		t.Errorf("MaskAPIKey(short) = %q", got)
	}
}

func TestClient_Version(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"version_major": "24.1", "version_minor": "3"}`))
	}))
	defer server.Close()

	v, err := testClient(server.URL).Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "24.1.3" {
		t.Errorf("Version() = %q, want 24.1.3", v)
	}
}

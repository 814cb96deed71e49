package mineru

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string) *Client {
	return NewClient(Config{
		APIKey:       "test-key",
		BaseURL:      url,
		PollInterval: time.Millisecond,
		MaxWait:      20 * time.Millisecond,
	})
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, code int, msg string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiResponse{Code: code, Msg: msg, TraceID: "trace", Data: raw})
}

func TestSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/extract/task" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var body createTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.URL != "https://example.com/ch1.pdf" || !body.IsOCR || !body.EnableFormula || !body.EnableTable {
			t.Errorf("request body = %+v", body)
		}
		if body.ModelVersion != DefaultModelVersion || body.Language != DefaultLanguage {
			t.Errorf("model/language = %s/%s", body.ModelVersion, body.Language)
		}
		writeEnvelope(t, w, 0, "ok", map[string]string{"task_id": "task-1"})
	}))
	defer server.Close()

	id, err := testClient(server.URL).Submit(context.Background(), TaskRequest{URL: "https://example.com/ch1.pdf"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "task-1" {
		t.Errorf("task id = %q", id)
	}
}

func TestSubmitAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, -60002, "invalid file format", nil)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Submit(context.Background(), TaskRequest{URL: "x"})
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("err = %v, want ErrAPI", err)
	}
}

func TestWait(t *testing.T) {
	tests := []struct {
		name    string
		states  []string
		wantErr error
	}{
		{"done after polling", []string{StatePending, StateRunning, StateDone}, nil},
		{"failed", []string{StateRunning, StateFailed}, ErrTaskFailed},
		{"never finishes", []string{StateRunning}, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/extract/task/task-1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				i := int(calls.Add(1)) - 1
				if i >= len(tt.states) {
					i = len(tt.states) - 1
				}
				task := Task{
					ID:       "task-1",
					State:    tt.states[i],
					Progress: &Progress{ExtractedPages: i, TotalPages: 3},
				}
				if task.State == StateDone {
					task.FullZipURL = "https://cdn.example.com/task-1.zip"
				}
				if task.State == StateFailed {
					task.ErrMsg = "page limit exceeded"
				}
				writeEnvelope(t, w, 0, "ok", task)
			}))
			defer server.Close()

			var seen int
			task, err := testClient(server.URL).Wait(context.Background(), "task-1", func(*Task) { seen++ })
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if task.State != StateDone || task.FullZipURL == "" {
				t.Errorf("task = %+v", task)
			}
			if seen != len(tt.states) {
				t.Errorf("progress callbacks = %d, want %d", seen, len(tt.states))
			}
		})
	}
}

func TestWaitRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			writeEnvelope(t, w, 0, "upstream", nil)
			return
		}
		writeEnvelope(t, w, 0, "ok", Task{ID: "task-1", State: StateDone, FullZipURL: "u"})
	}))
	defer server.Close()

	task, err := testClient(server.URL).Wait(context.Background(), "task-1", nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if task.State != StateDone {
		t.Errorf("state = %s", task.State)
	}
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUnpack(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		want    []string
		wantErr bool
	}{
		{
			name:  "flat archive",
			files: map[string]string{"full.md": "# Chapter", "images/a.jpg": "img"},
			want:  []string{"full.md", "images/a.jpg"},
		},
		{
			name:  "single top-level folder is stripped",
			files: map[string]string{"task-1/full.md": "# Chapter", "task-1/images/a.jpg": "img"},
			want:  []string{"full.md", "images/a.jpg"},
		},
		{
			name:    "path traversal rejected",
			files:   map[string]string{"full.md": "x", "../evil.md": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "result.zip")
			if err := os.WriteFile(archive, buildZip(t, tt.files), 0o644); err != nil {
				t.Fatal(err)
			}
			out := filepath.Join(dir, "out")

			got, err := Unpack(archive, out)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			for _, name := range tt.want {
				if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(name))); err != nil {
					t.Errorf("missing %s: %v", name, err)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("files = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"full.md":      "# Chapter 1\n\nCOMPETENCY BASED QUESTIONS\n",
		"images/p1.jpg": "img",
	})

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/extract/task", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 0, "ok", map[string]string{"task_id": "task-9"})
	})
	mux.HandleFunc("/extract/task/task-9", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 0, "ok", Task{ID: "task-9", State: StateDone, FullZipURL: srvURL + "/files/task-9.zip"})
	})
	mux.HandleFunc("/files/task-9.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	srvURL = server.URL

	dir := t.TempDir()
	res, err := testClient(server.URL).Extract(context.Background(), TaskRequest{URL: "https://example.com/ch1.pdf"}, dir, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.TaskID != "task-9" || res.Markdown != filepath.Join(dir, FullMarkdown) {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "result.zip")); !os.IsNotExist(err) {
		t.Errorf("archive not removed: %v", err)
	}
	data, err := os.ReadFile(res.Markdown)
	if err != nil || !bytes.Contains(data, []byte("COMPETENCY")) {
		t.Errorf("full.md = %q, %v", data, err)
	}
}

func TestDownloadClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Download(context.Background(), server.URL+"/gone.zip", filepath.Join(t.TempDir(), "a.zip"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, 404 should not be retried", calls.Load())
	}
}

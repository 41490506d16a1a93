//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// FixturesDir returns the path to the fixtures directory
func FixturesDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(filename), "fixtures")
}

// SelectionFile returns the path to the sample selection
func SelectionFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(FixturesDir(t), "selection.yaml")
}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml")
}

// fakeService mimics the export service. Sessions with peer uid "rejected"
// are refused.
type fakeService struct {
	*httptest.Server

	mu      sync.Mutex
	exports []map[string]any
	merges  []map[string]any
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	fs := &fakeService{}

	r := chi.NewRouter()
	r.Get("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]string{
			{"chatType": "group", "peerUid": "100200", "sessionName": "Project Team"},
			{"chatType": "friend", "peerUid": "u_alice", "sessionName": "Alice"},
		})
	})
	r.Post("/api/messages/export", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		fs.mu.Lock()
		fs.exports = append(fs.exports, body)
		fs.mu.Unlock()
		if body["peerUid"] == "rejected" {
			fail(w, http.StatusBadRequest, "session is archived")
			return
		}
		ok(w, map[string]string{"taskId": "task-1"})
	})
	r.Get("/api/backups/mergeable", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]any{{
			"taskId":   "nightly",
			"taskName": "Nightly backup",
			"files": []map[string]any{
				{"id": "b1", "taskId": "nightly", "fileName": "b1.json", "fileSize": 1024, "timestamp": "2026-10-01T00:00:00Z"},
				{"id": "b2", "taskId": "nightly", "fileName": "b2.json", "fileSize": 2048, "timestamp": "2026-10-02T00:00:00Z"},
			},
		}})
	})
	r.Post("/api/backups/merge", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		fs.mu.Lock()
		fs.merges = append(fs.merges, body)
		fs.mu.Unlock()
		ok(w, map[string]any{
			"sourceCount":          2,
			"totalMessages":        120,
			"deduplicatedMessages": 7,
			"outputPaths":          []string{"/backups/merged-nightly.json"},
		})
	})

	fs.Server = httptest.NewServer(r)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeService) exportCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.exports)
}

func (fs *fakeService) mergeCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.merges)
}

func ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func fail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": map[string]string{"message": msg}})
}

// writeFile writes content to path, creating parent directories
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/config"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.RemoteConfig{
		BaseURL: srv.URL + "/",
		Token:   "secret",
		Timeout: config.Duration(5 * time.Second),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestSubmitExport(t *testing.T) {
	var got domain.ExportRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages/export" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"taskId": "t-1"}})
	})

	req := domain.ExportRequest{ChatType: domain.ChatGroup, PeerUID: "123", SessionName: "Team", Format: domain.FormatHTML}
	ok, err := client.SubmitExport(context.Background(), req)
	if err != nil || !ok {
		t.Fatalf("SubmitExport() = %v, %v", ok, err)
	}
	if got.PeerUID != "123" || got.ChatType != domain.ChatGroup {
		t.Errorf("payload = %+v", got)
	}
}

func TestSubmitExport_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": map[string]any{"message": "session not found"}})
	})

	req := domain.ExportRequest{ChatType: domain.ChatFriend, PeerUID: "9", Format: domain.FormatJSON}
	ok, err := client.SubmitExport(context.Background(), req)
	if ok {
		t.Fatal("expected rejection")
	}
	if ErrorMessage(err) != "session not found" {
		t.Errorf("message = %q", ErrorMessage(err))
	}
}

func TestSubmitExport_InvalidRequestNeverSent(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	ok, err := client.SubmitExport(context.Background(), domain.ExportRequest{ChatType: "channel", PeerUID: "1", Format: domain.FormatTXT})
	if ok || err == nil {
		t.Fatal("expected validation error")
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestMerge(t *testing.T) {
	var payload mergePayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": domain.MergeResult{
				SourceCount:          2,
				TotalMessages:        120,
				DeduplicatedMessages: 7,
				OutputPaths:          []string{"/exports/merged.json"},
			},
		})
	})

	res, err := client.Merge(context.Background(), domain.NewMergeRequest([]string{"a", "b"}, true, false))
	if err != nil {
		t.Fatal(err)
	}
	if res.Location() != "/exports/merged.json" || res.DeduplicatedMessages != 7 {
		t.Errorf("result = %+v", res)
	}
	if !payload.DeduplicateMessages || payload.DeleteSourceFiles || len(payload.SourceIDs) != 2 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestListMergeableBackups(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/backups/mergeable" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": []domain.BackupGroup{
				{TaskID: "t1", TaskName: "Nightly", Files: []domain.BackupFile{{ID: "f1", TaskID: "t1"}, {ID: "f2", TaskID: "t1"}}},
			},
		})
	})

	groups, err := client.ListMergeableBackups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].Files) != 2 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestDo_HTTPErrorWithoutEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.ListSessions(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestDo_HonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := client.OpenFileLocation(ctx, "/tmp"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDo_ResponseBodyIsCapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sessions := make([]map[string]string, 200)
		for i := range sessions {
			sessions[i] = map[string]string{"chatType": "group", "peerUid": "1", "sessionName": "Team"}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": sessions})
	})

	if _, err := client.ListSessions(context.Background()); err != nil {
		t.Fatalf("default limit: %v", err)
	}

	client.maxBody = 1 << 10
	_, err := client.ListSessions(context.Background())
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("err = %v, want ErrResponseTooLarge", err)
	}
}

package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

func TestLoadSelectionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	content := `
format: json
download_media: true
sessions:
  - chat_type: group
    peer_uid: "100"
    name: Team
  - chat_type: Friend
    peer_uid: "200"
    name: Alice
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sf, err := LoadSelectionFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sf.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sf.Sessions))
	}
	if sf.Sessions[1].ChatType != domain.ChatFriend {
		t.Errorf("ChatType = %q, want normalised friend", sf.Sessions[1].ChatType)
	}

	opts := sf.Options(domain.ExportOptions{Format: domain.FormatHTML})
	if opts.Format != domain.FormatJSON || !opts.DownloadMedia {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseSelectionFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad chat type", "sessions:\n  - chat_type: channel\n    peer_uid: \"1\"\n"},
		{"missing peer", "sessions:\n  - chat_type: group\n"},
		{"bad format", "format: pdf\n"},
		{"not yaml", "sessions: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSelectionFile([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

// SelectionFile is a saved session selection, e.g.
//
//	format: html
//	download_media: true
//	sessions:
//	  - chat_type: group
//	    peer_uid: "123456"
//	    name: Team
type SelectionFile struct {
	Format        string           `yaml:"format"`
	DownloadMedia bool             `yaml:"download_media"`
	Sessions      []domain.Session `yaml:"sessions"`
}

// LoadSelectionFile reads and validates a YAML selection file
func LoadSelectionFile(path string) (*SelectionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSelectionFile(data)
}

// ParseSelectionFile parses a YAML selection
func ParseSelectionFile(data []byte) (*SelectionFile, error) {
	var sf SelectionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing selection: %w", err)
	}
	for i, s := range sf.Sessions {
		ct, err := domain.ParseChatType(string(s.ChatType))
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		if s.PeerUID == "" {
			return nil, fmt.Errorf("session %d: peer_uid is required", i)
		}
		sf.Sessions[i].ChatType = ct
	}
	if sf.Format != "" {
		if _, err := domain.ParseExportFormat(sf.Format); err != nil {
			return nil, err
		}
	}
	return &sf, nil
}

// Options applies the file's settings over base
func (sf *SelectionFile) Options(base domain.ExportOptions) domain.ExportOptions {
	if sf.Format != "" {
		base.Format, _ = domain.ParseExportFormat(sf.Format)
	}
	if sf.DownloadMedia {
		base.DownloadMedia = true
	}
	return base
}

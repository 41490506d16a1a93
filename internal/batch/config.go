package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

// SessionRef names one chat session in a schedule file
type SessionRef struct {
	ChatType string `toml:"chat_type"`
	PeerUID  string `toml:"peer_uid"`
	Name     string `toml:"name"`
}

// ScheduleEntry is one scheduled batch export
type ScheduleEntry struct {
	Name             string       `toml:"name"`
	Cron             string       `toml:"cron"`
	Format           string       `toml:"format"`
	DownloadMedia    bool         `toml:"download_media"`
	NotifyOnComplete bool         `toml:"notify_on_complete"`
	Sessions         []SessionRef `toml:"sessions"`
}

// ScheduleConfig holds all scheduled exports
type ScheduleConfig struct {
	Schedules []ScheduleEntry `toml:"schedule"`
}

// Validate checks if the entry is valid
func (e *ScheduleEntry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if e.Format != "" {
		if _, err := domain.ParseExportFormat(e.Format); err != nil {
			return err
		}
	}
	if len(e.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}
	if _, err := e.DomainSessions(); err != nil {
		return err
	}
	return nil
}

// DomainSessions converts the session references
func (e *ScheduleEntry) DomainSessions() ([]domain.Session, error) {
	out := make([]domain.Session, 0, len(e.Sessions))
	for i, ref := range e.Sessions {
		ct, err := domain.ParseChatType(ref.ChatType)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		if ref.PeerUID == "" {
			return nil, fmt.Errorf("session %d: peer_uid is required", i)
		}
		out = append(out, domain.Session{ChatType: ct, PeerUID: ref.PeerUID, Name: ref.Name})
	}
	return out, nil
}

// Options applies the entry's settings over base
func (e *ScheduleEntry) Options(base domain.ExportOptions) domain.ExportOptions {
	if e.Format != "" {
		base.Format, _ = domain.ParseExportFormat(e.Format)
	}
	if e.DownloadMedia {
		base.DownloadMedia = true
	}
	// Scheduled exports always cover the full history
	base.Range = domain.RangeAll
	base.StartTime, base.EndTime = nil, nil
	return base
}

// LoadScheduleConfig loads schedules from a TOML file. A missing file means no schedules.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Validate all schedules
	seen := make(map[string]bool)
	for i := range cfg.Schedules {
		if err := cfg.Schedules[i].Validate(); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		if seen[cfg.Schedules[i].Name] {
			return nil, fmt.Errorf("schedule %d: duplicate name %q", i, cfg.Schedules[i].Name)
		}
		seen[cfg.Schedules[i].Name] = true
	}

	return &cfg, nil
}

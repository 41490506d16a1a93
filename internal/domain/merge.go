package domain

import "time"

// MinMergeSources is the smallest number of backups a merge accepts
const MinMergeSources = 2

// BackupFile is a snapshot produced by a scheduled backup task
type BackupFile struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"taskId"`
	TaskName      string    `json:"taskName"`
	FileName      string    `json:"fileName"`
	Timestamp     time.Time `json:"timestamp"`
	FileSizeBytes int64     `json:"fileSize"`
}

// Item returns the selection item grouped under the originating task
func (f BackupFile) Item() SelectionItem {
	return SelectionItem{
		ID:      f.ID,
		GroupID: f.TaskID,
		Kind:    KindBackup,
		Label:   f.FileName,
	}
}

// BackupGroup holds the mergeable backups of one scheduled task
type BackupGroup struct {
	TaskID   string       `json:"taskId"`
	TaskName string       `json:"taskName"`
	Files    []BackupFile `json:"files"`
}

// Items returns the selection items of every file in the group
func (g BackupGroup) Items() []SelectionItem {
	items := make([]SelectionItem, len(g.Files))
	for i, f := range g.Files {
		items[i] = f.Item()
	}
	return items
}

// MergeRequest asks the remote service to combine several backups
type MergeRequest struct {
	SourceIDs     []string
	Dedupe        bool
	DeleteSources bool
}

// NewMergeRequest builds a request, collapsing duplicate ids while keeping order
func NewMergeRequest(ids []string, dedupe, deleteSources bool) MergeRequest {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return MergeRequest{SourceIDs: unique, Dedupe: dedupe, DeleteSources: deleteSources}
}

// CanSubmit reports whether enough distinct sources are selected
func (r MergeRequest) CanSubmit() bool {
	return len(r.SourceIDs) >= MinMergeSources
}

// MergeResult describes the artifact produced by a successful merge
type MergeResult struct {
	SourceCount          int      `json:"sourceCount"`
	TotalMessages        int      `json:"totalMessages"`
	DeduplicatedMessages int      `json:"deduplicatedMessages"`
	OutputPaths          []string `json:"outputPaths"`
}

// Location returns the primary output path, empty if none
func (r *MergeResult) Location() string {
	if r == nil || len(r.OutputPaths) == 0 {
		return ""
	}
	return r.OutputPaths[0]
}

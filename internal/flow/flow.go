// Package flow drives the two bulk operations built on the selection tree,
// the sequential runner and the result aggregator: batch export of chat
// sessions and merging of backup snapshots.
package flow

import (
	"errors"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/runstore"
)

var (
	// ErrEmptySelection is returned when a batch is started with nothing selected
	ErrEmptySelection = errors.New("no items selected")
	// ErrTooFewSources is returned when a merge has fewer than two sources
	ErrTooFewSources = errors.New("merge needs at least two backups")
	// ErrRunActive is returned when a flow is asked to start while it is running
	ErrRunActive = errors.New("a run is already active")
)

// History persists finished runs and merges
type History interface {
	SaveRun(kind string, run *domain.BatchRun) error
	SaveMerge(m runstore.MergeRecord) error
}

type noHistory struct{}

func (noHistory) SaveRun(string, *domain.BatchRun) error { return nil }
func (noHistory) SaveMerge(runstore.MergeRecord) error   { return nil }

// Package selection implements a selection set over addressable items with
// an optional grouping level. Group check state is derived from the
// selection set on every read and is never stored.
package selection

import (
	"sync"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

// GroupState is the tri-state rollup of a group's children
type GroupState string

const (
	GroupNone    GroupState = "none"
	GroupPartial GroupState = "partial"
	GroupAll     GroupState = "all"
)

// Tree tracks which items are selected. It is safe for concurrent use.
type Tree struct {
	items    map[domain.Key]domain.SelectionItem
	children map[string][]domain.Key // group -> known children, in registration order
	groups   []string

	selected map[domain.Key]bool
	order    []domain.Key // selection order

	mu sync.RWMutex
}

// New creates an empty tree
func New() *Tree {
	return &Tree{
		items:    make(map[domain.Key]domain.SelectionItem),
		children: make(map[string][]domain.Key),
		selected: make(map[domain.Key]bool),
	}
}

// SetItems replaces the known items and their grouping. Keys that are
// already selected stay selected even if they are no longer known.
func (t *Tree) SetItems(items []domain.SelectionItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make(map[domain.Key]domain.SelectionItem, len(items))
	t.children = make(map[string][]domain.Key)
	t.groups = nil
	for _, item := range items {
		t.register(item)
	}
}

func (t *Tree) register(item domain.SelectionItem) {
	key := item.Key()
	if _, exists := t.items[key]; exists {
		t.items[key] = item
		return
	}
	t.items[key] = item
	if item.GroupID == "" {
		return
	}
	if _, ok := t.children[item.GroupID]; !ok {
		t.groups = append(t.groups, item.GroupID)
	}
	t.children[item.GroupID] = append(t.children[item.GroupID], key)
}

// ToggleItem flips the membership of a single item
func (t *Tree) ToggleItem(key domain.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.set(key, !t.selected[key])
}

// ToggleGroup sets every known child of the group to checked
func (t *Tree) ToggleGroup(groupID string, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range t.children[groupID] {
		t.set(key, checked)
	}
}

// GroupState computes the rollup of a group from its known children
func (t *Tree) GroupState(groupID string) GroupState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.groupState(groupID)
}

func (t *Tree) groupState(groupID string) GroupState {
	children := t.children[groupID]
	selected := 0
	for _, key := range children {
		if t.selected[key] {
			selected++
		}
	}
	switch {
	case selected == 0:
		return GroupNone
	case selected == len(children):
		return GroupAll
	default:
		return GroupPartial
	}
}

// SelectAll selects every supplied candidate, registering unknown ones
func (t *Tree) SelectAll(items []domain.SelectionItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, item := range items {
		if _, ok := t.items[item.Key()]; !ok {
			t.register(item)
		}
		t.set(item.Key(), true)
	}
}

// Clear deselects everything
func (t *Tree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.selected = make(map[domain.Key]bool)
	t.order = nil
}

// IsSelected reports whether a key is selected
func (t *Tree) IsSelected(key domain.Key) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected[key]
}

// Count returns the number of selected keys
func (t *Tree) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Selected returns the selected items in selection order
func (t *Tree) Selected() []domain.SelectionItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selectedItems()
}

func (t *Tree) selectedItems() []domain.SelectionItem {
	items := make([]domain.SelectionItem, 0, len(t.order))
	for _, key := range t.order {
		item, ok := t.items[key]
		if !ok {
			item = domain.SelectionItem{ID: key.ID, Kind: key.Kind}
		}
		items = append(items, item)
	}
	return items
}

// Groups returns the known group ids in registration order
func (t *Tree) Groups() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.groups...)
}

// Children returns the known children of a group in registration order
func (t *Tree) Children(groupID string) []domain.SelectionItem {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := t.children[groupID]
	items := make([]domain.SelectionItem, len(keys))
	for i, key := range keys {
		items[i] = t.items[key]
	}
	return items
}

// Item looks up a known item by key
func (t *Tree) Item(key domain.Key) (domain.SelectionItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[key]
	return item, ok
}

// Snapshot returns an immutable copy of the current selection
func (t *Tree) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{items: t.selectedItems()}
}

// set must be called with the write lock held
func (t *Tree) set(key domain.Key, checked bool) {
	if t.selected[key] == checked {
		return
	}
	if checked {
		t.selected[key] = true
		t.order = append(t.order, key)
		return
	}
	delete(t.selected, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

package selection

import "github.com/hochfrequenz/chat-export-orchestrator/internal/domain"

// Snapshot is a selection handed to a flow by value at submit time.
// Later changes to the tree do not affect it.
type Snapshot struct {
	items []domain.SelectionItem
}

// NewSnapshot builds a snapshot from items, dropping duplicate keys
func NewSnapshot(items []domain.SelectionItem) Snapshot {
	seen := make(map[domain.Key]bool, len(items))
	out := make([]domain.SelectionItem, 0, len(items))
	for _, item := range items {
		if seen[item.Key()] {
			continue
		}
		seen[item.Key()] = true
		out = append(out, item)
	}
	return Snapshot{items: out}
}

// Items returns a copy of the selected items in selection order
func (s Snapshot) Items() []domain.SelectionItem {
	return append([]domain.SelectionItem(nil), s.items...)
}

// Len returns the number of selected items
func (s Snapshot) Len() int {
	return len(s.items)
}

// IDs returns the raw ids of the selected items
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.items))
	for i, item := range s.items {
		ids[i] = item.ID
	}
	return ids
}

package domain

import (
	"fmt"
	"strings"
)

// ItemKind distinguishes heterogeneously typed selectable items
type ItemKind string

const (
	KindSession ItemKind = "session"
	KindBackup  ItemKind = "backup"
)

// Key uniquely identifies a selectable item as kind:id
type Key struct {
	Kind ItemKind
	ID   string
}

// ParseKey parses a string like "session:group:12345" into a Key.
// Only the first colon separates kind from id.
func ParseKey(s string) (Key, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" || id == "" {
		return Key{}, fmt.Errorf("invalid item key: %q (expected kind:id)", s)
	}
	switch ItemKind(kind) {
	case KindSession, KindBackup:
	default:
		return Key{}, fmt.Errorf("unknown item kind %q", kind)
	}
	return Key{Kind: ItemKind(kind), ID: id}, nil
}

// String returns the canonical string representation
func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// SelectionItem is an addressable item that can be selected, optionally
// belonging to a group
type SelectionItem struct {
	ID      string
	GroupID string
	Kind    ItemKind
	Label   string
}

// Key returns the composite identity of the item
func (i SelectionItem) Key() Key {
	return Key{Kind: i.Kind, ID: i.ID}
}

// DisplayName returns the label, or the id when no label is set
func (i SelectionItem) DisplayName() string {
	if i.Label != "" {
		return i.Label
	}
	return i.ID
}

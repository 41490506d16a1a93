package selection

import (
	"testing"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

func backup(id, group string) domain.SelectionItem {
	return domain.SelectionItem{ID: id, GroupID: group, Kind: domain.KindBackup}
}

func newGroupedTree() *Tree {
	tree := New()
	tree.SetItems([]domain.SelectionItem{
		backup("a1", "daily"),
		backup("a2", "daily"),
		backup("a3", "daily"),
		backup("b1", "weekly"),
	})
	return tree
}

func TestToggleGroup_ThenItem(t *testing.T) {
	tree := newGroupedTree()

	tree.ToggleGroup("daily", true)
	if got := tree.GroupState("daily"); got != GroupAll {
		t.Fatalf("after ToggleGroup(true): state = %s, want all", got)
	}

	tree.ToggleItem(backup("a2", "daily").Key())
	if got := tree.GroupState("daily"); got != GroupPartial {
		t.Errorf("after ToggleItem on one child: state = %s, want partial", got)
	}

	tree.ToggleGroup("daily", false)
	if got := tree.GroupState("daily"); got != GroupNone {
		t.Errorf("after ToggleGroup(false): state = %s, want none", got)
	}
	if tree.Count() != 0 {
		t.Errorf("Count() = %d, want 0", tree.Count())
	}
}

func TestGroupState_PartialIffStrictlyBetween(t *testing.T) {
	tree := newGroupedTree()
	children := tree.Children("daily")

	for n := 0; n <= len(children); n++ {
		tree.Clear()
		for _, item := range children[:n] {
			tree.ToggleItem(item.Key())
		}

		got := tree.GroupState("daily")
		wantPartial := n > 0 && n < len(children)
		if (got == GroupPartial) != wantPartial {
			t.Errorf("selected %d/%d: state = %s, partial want %v", n, len(children), got, wantPartial)
		}
		if n == 0 && got != GroupNone {
			t.Errorf("selected 0: state = %s, want none", got)
		}
		if n == len(children) && got != GroupAll {
			t.Errorf("selected all: state = %s, want all", got)
		}
	}
}

func TestToggleItem_DoesNotAffectSiblings(t *testing.T) {
	tree := newGroupedTree()

	tree.ToggleItem(backup("a1", "daily").Key())

	if !tree.IsSelected(backup("a1", "daily").Key()) {
		t.Error("a1 should be selected")
	}
	if tree.IsSelected(backup("a2", "daily").Key()) || tree.IsSelected(backup("b1", "weekly").Key()) {
		t.Error("siblings must be unaffected")
	}
	if tree.GroupState("weekly") != GroupNone {
		t.Error("other groups must be unaffected")
	}
}

func TestGroupState_RecomputedAfterSetItems(t *testing.T) {
	tree := newGroupedTree()
	tree.ToggleGroup("weekly", true)

	if got := tree.GroupState("weekly"); got != GroupAll {
		t.Fatalf("state = %s, want all", got)
	}

	// A new child appears in the group: the rollup must follow immediately.
	tree.SetItems([]domain.SelectionItem{
		backup("b1", "weekly"),
		backup("b2", "weekly"),
	})
	if got := tree.GroupState("weekly"); got != GroupPartial {
		t.Errorf("after new child: state = %s, want partial", got)
	}
}

func TestGroupState_UnknownGroup(t *testing.T) {
	tree := New()
	if got := tree.GroupState("missing"); got != GroupNone {
		t.Errorf("state = %s, want none", got)
	}
}

func TestSelected_KeepsSelectionOrder(t *testing.T) {
	tree := New()
	items := []domain.SelectionItem{
		{ID: "c", Kind: domain.KindSession},
		{ID: "a", Kind: domain.KindSession},
		{ID: "b", Kind: domain.KindSession},
	}
	tree.SetItems(items)

	tree.ToggleItem(items[1].Key())
	tree.ToggleItem(items[0].Key())
	tree.ToggleItem(items[2].Key())

	got := tree.Selected()
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("Selected() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Selected()[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestCompositeKeys_DoNotCollide(t *testing.T) {
	tree := New()
	session := domain.SelectionItem{ID: "7", Kind: domain.KindSession}
	b := domain.SelectionItem{ID: "7", Kind: domain.KindBackup, GroupID: "g"}
	tree.SetItems([]domain.SelectionItem{session, b})

	tree.ToggleItem(session.Key())

	if tree.IsSelected(b.Key()) {
		t.Error("selecting a session must not select a backup with the same raw id")
	}
	if tree.GroupState("g") != GroupNone {
		t.Error("backup group must stay none")
	}
}

func TestSelectAll_AndClear(t *testing.T) {
	tree := New()
	page := []domain.SelectionItem{
		{ID: "1", Kind: domain.KindSession},
		{ID: "2", Kind: domain.KindSession},
	}

	tree.SelectAll(page)
	tree.SelectAll(page)
	if tree.Count() != 2 {
		t.Errorf("Count() = %d, want 2", tree.Count())
	}

	tree.Clear()
	if tree.Count() != 0 || len(tree.Selected()) != 0 {
		t.Error("Clear should empty the selection")
	}
}

func TestSnapshot_IsIndependentOfTree(t *testing.T) {
	tree := newGroupedTree()
	tree.ToggleGroup("daily", true)

	snap := tree.Snapshot()
	tree.Clear()

	if snap.Len() != 3 {
		t.Errorf("snapshot Len() = %d, want 3", snap.Len())
	}
	ids := snap.IDs()
	if ids[0] != "a1" || ids[2] != "a3" {
		t.Errorf("snapshot ids = %v", ids)
	}
}

package hooks

import "testing"

func TestSnapshotGetAndNames(t *testing.T) {
	snap := NewSnapshot([]*Hook{
		{ID: "1", Name: "alpha"},
		{ID: "2", Name: "beta"},
	})
	if snap.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", snap.Len())
	}
	if got := snap.Get("alpha"); got == nil || got.ID != "1" {
		t.Errorf("Get(alpha) = %+v", got)
	}
	if snap.Get("missing") != nil {
		t.Error("Get(missing) should be nil")
	}
	if names := snap.Names(); len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Names() = %v, want load order [alpha beta]", names)
	}
}

func TestSnapshotLastDuplicateWins(t *testing.T) {
	snap := NewSnapshot([]*Hook{
		{ID: "1", Name: "dup", ScriptPath: "/first"},
		{ID: "2", Name: "dup", ScriptPath: "/second"},
	})
	if snap.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", snap.Len())
	}
	if got := snap.Get("dup"); got.ScriptPath != "/second" {
		t.Errorf("Get(dup).ScriptPath = %q, want /second", got.ScriptPath)
	}
}

func TestRepositorySwapIsAtomicToOldReaders(t *testing.T) {
	first := NewSnapshot([]*Hook{{ID: "1", Name: "a"}})
	repo := NewRepository(first)

	held := repo.Current()
	if held.Get("a") == nil {
		t.Fatal("initial snapshot should contain hook a")
	}

	second := NewSnapshot([]*Hook{{ID: "2", Name: "b"}})
	repo.Swap(second)

	// A reference taken before the swap must keep observing the old
	// snapshot: a Job's Hook reference stays valid for its whole lifetime.
	if held.Get("a") == nil {
		t.Error("previously held snapshot reference was mutated by Swap")
	}
	if held.Get("b") != nil {
		t.Error("previously held snapshot reference should not see the new hook")
	}
	if repo.Current().Get("b") == nil {
		t.Error("new readers should see the swapped-in snapshot")
	}
	if repo.Current().Get("a") != nil {
		t.Error("new readers should not see hooks from the replaced snapshot")
	}
}

func TestNewRepositoryNilInitialIsEmptyNotNil(t *testing.T) {
	repo := NewRepository(nil)
	if repo.Current() == nil {
		t.Fatal("Current() should never be nil")
	}
	if repo.Current().Len() != 0 {
		t.Errorf("Len() = %d, want 0", repo.Current().Len())
	}
}

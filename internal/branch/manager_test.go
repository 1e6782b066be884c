package branch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"idurar.org/internal/domain"
)

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }

func assertInvariant(t *testing.T, s *InMemory) {
	t.Helper()
	live, defaults := 0, 0
	for _, b := range s.Snapshot() {
		if b.Removed {
			if b.IsDefault {
				t.Fatalf("removed branch %s is default", b.ID)
			}
			continue
		}
		live++
		if b.IsDefault {
			defaults++
		}
	}
	if live == 0 && defaults != 0 {
		t.Fatalf("no live branches but %d defaults", defaults)
	}
	if live > 0 && defaults != 1 {
		t.Fatalf("%d live branches with %d defaults", live, defaults)
	}
}

func TestFirstBranchIsForcedDefault(t *testing.T) {
	store := NewInMemory()
	m, _ := NewManager(store)
	ctx := context.Background()

	first, err := m.Create(ctx, Branch{Name: "HQ"}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !first.IsDefault || first.Currency != "USD" || first.Status != StatusActive {
		t.Fatalf("unexpected first branch: %+v", first)
	}

	second, _ := m.Create(ctx, Branch{Name: "Annex"}, false)
	if second.IsDefault {
		t.Fatal("second branch must not be default")
	}
	third, _ := m.Create(ctx, Branch{Name: "Outlet"}, true)
	if !third.IsDefault {
		t.Fatal("requested default must stick")
	}
	def, ok, err := m.Default(ctx)
	if err != nil || !ok || def.ID != third.ID {
		t.Fatalf("expected %s default, got %+v ok=%v err=%v", third.ID, def, ok, err)
	}
	assertInvariant(t, store)
}

func TestDeleteDefaultFails(t *testing.T) {
	store := NewInMemory()
	m, _ := NewManager(store)
	ctx := context.Background()

	hq, _ := m.Create(ctx, Branch{Name: "HQ"}, true)
	other, _ := m.Create(ctx, Branch{Name: "Other"}, false)
	before := store.Snapshot()

	if _, err := m.Delete(ctx, hq.ID); !errors.Is(err, ErrDeleteDefault) || !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
	if len(store.Snapshot()) != len(before) {
		t.Fatal("state changed")
	}
	if got, _ := m.Get(ctx, hq.ID); !got.IsDefault || got.Removed {
		t.Fatalf("default branch changed: %+v", got)
	}

	if _, err := m.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, other.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := m.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	assertInvariant(t, store)
}

func TestUpdateMovesDefaultAndSelfHeals(t *testing.T) {
	store := NewInMemory()
	m, _ := NewManager(store)
	ctx := context.Background()

	a, _ := m.Create(ctx, Branch{Name: "A"}, false)
	b, _ := m.Create(ctx, Branch{Name: "B"}, false)

	moved, err := m.Update(ctx, b.ID, Patch{IsDefault: boolPtr(true)})
	if err != nil || !moved.IsDefault {
		t.Fatalf("Update: %+v %v", moved, err)
	}
	if got, _ := m.Get(ctx, a.ID); got.IsDefault {
		t.Fatal("old default must be cleared")
	}
	assertInvariant(t, store)

	if _, err := m.Update(ctx, b.ID, Patch{IsDefault: boolPtr(false)}); !errors.Is(err, ErrUnsetDefault) {
		t.Fatalf("expected unset default rejection, got %v", err)
	}

	if _, err := m.Update(ctx, b.ID, Patch{IsDefault: boolPtr(true)}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	lone, err := m.Update(ctx, b.ID, Patch{IsDefault: boolPtr(false), Name: strPtr("B2")})
	if err != nil {
		t.Fatalf("Update lone: %v", err)
	}
	if !lone.IsDefault || lone.Name != "B2" {
		t.Fatalf("lone branch must stay default: %+v", lone)
	}
	assertInvariant(t, store)
}

func TestUpdateValidation(t *testing.T) {
	m, _ := NewManager(NewInMemory())
	ctx := context.Background()
	b, _ := m.Create(ctx, Branch{Name: "A"}, false)

	if _, err := m.Update(ctx, b.ID, Patch{Name: strPtr("  ")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := m.Update(ctx, b.ID, Patch{Currency: strPtr("dollars")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid currency, got %v", err)
	}
	if _, err := m.Update(ctx, "missing", Patch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, _ := m.Update(ctx, b.ID, Patch{Currency: strPtr("eur")})
	if got.Currency != "EUR" {
		t.Fatalf("expected EUR, got %s", got.Currency)
	}
}

func TestEmptySetHasNoDefault(t *testing.T) {
	m, _ := NewManager(NewInMemory())
	if _, ok, err := m.Default(context.Background()); ok || err != nil {
		t.Fatalf("expected no default, ok=%v err=%v", ok, err)
	}
}

func TestRandomOperationsKeepInvariant(t *testing.T) {
	store := NewInMemory()
	m, _ := NewManager(store)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for i := 0; i < 500; i++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(ids) == 0:
			b, err := m.Create(ctx, Branch{Name: "b"}, rng.Intn(2) == 0)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			ids = append(ids, b.ID)
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			_, err := m.Update(ctx, id, Patch{IsDefault: boolPtr(rng.Intn(2) == 0)})
			if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, ErrUnsetDefault) {
				t.Fatalf("Update: %v", err)
			}
		default:
			id := ids[rng.Intn(len(ids))]
			_, err := m.Delete(ctx, id)
			if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, ErrDeleteDefault) {
				t.Fatalf("Delete: %v", err)
			}
		}
		assertInvariant(t, store)
	}
}

func TestConcurrentDefaultCreates(t *testing.T) {
	store := NewInMemory()
	m, _ := NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create(ctx, Branch{Name: "race"}, true); err != nil {
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()
	assertInvariant(t, store)
}

func TestListPaging(t *testing.T) {
	m, _ := NewManager(NewInMemory())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = m.Create(ctx, Branch{Name: "b"}, false)
	}
	items, p, err := m.List(ctx, domain.Page{Page: 1, Items: 2})
	if err != nil || len(items) != 2 || p.Count != 3 || p.Pages != 2 {
		t.Fatalf("unexpected list: %d %+v %v", len(items), p, err)
	}
}

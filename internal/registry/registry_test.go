package registry

import (
	"context"
	"errors"
	"testing"

	"actionboard/internal/domain"
	"actionboard/internal/store"
)

func testService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewFileStore(t.TempDir(), nil)
	return New(s), s
}

func TestInit(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if err := svc.Init(ctx, "Carla", []string{"Aline", "Bruno"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	r, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Director != "Carla" {
		t.Fatalf("director = %q", r.Director)
	}
	want := []string{"Aline", "Bruno", "Carla"}
	if len(r.Managers) != len(want) {
		t.Fatalf("managers = %v", r.Managers)
	}
	for i, m := range want {
		if r.Managers[i] != m {
			t.Fatalf("managers = %v, want %v", r.Managers, want)
		}
	}

	err = svc.Init(ctx, "Dora", nil)
	var ise domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("second init: %v", err)
	}
}

func TestAdd(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	err := svc.Add(ctx, "Aline")
	var ise domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("add before init: %v", err)
	}

	if err := svc.Init(ctx, "Carla", nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.Add(ctx, "Aline"); err != nil {
		t.Fatalf("add: %v", err)
	}
	err = svc.Add(ctx, "Aline")
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("duplicate add: %v", err)
	}

	r, _ := svc.Snapshot(ctx)
	if r.Managers[0] != "Aline" || r.Managers[1] != "Carla" {
		t.Fatalf("managers not sorted: %v", r.Managers)
	}
}

func TestRemoveGuards(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()
	if err := svc.Init(ctx, "Carla", []string{"Aline", "Bruno"}); err != nil {
		t.Fatal(err)
	}
	c := store.EmptyCollection()
	c.Activities = append(c.Activities, domain.Activity{ID: 1, Responsible: []string{"Aline"}})
	c.NextID = 2
	if err := st.SaveActivities(ctx, c); err != nil {
		t.Fatal(err)
	}

	var ise domain.InvalidStateError
	if err := svc.Remove(ctx, "Carla"); !errors.As(err, &ise) {
		t.Fatalf("remove director: %v", err)
	}
	if err := svc.Remove(ctx, "Aline"); !errors.As(err, &ise) {
		t.Fatalf("remove referenced manager: %v", err)
	}
	var nfe domain.NotFoundError
	if err := svc.Remove(ctx, "Zoe"); !errors.As(err, &nfe) {
		t.Fatalf("remove unknown: %v", err)
	}

	if err := svc.Remove(ctx, "Bruno"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	r, _ := svc.Snapshot(ctx)
	if r.HasManager("Bruno") {
		t.Fatal("Bruno still registered")
	}
}

func TestCounts(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()
	if err := svc.Init(ctx, "Carla", []string{"Aline"}); err != nil {
		t.Fatal(err)
	}
	c := store.EmptyCollection()
	c.Activities = []domain.Activity{
		{ID: 1, Responsible: []string{"Aline", "Carla"}},
		{ID: 2, Responsible: []string{"Aline"}},
	}
	c.NextID = 3
	if err := st.SaveActivities(ctx, c); err != nil {
		t.Fatal(err)
	}

	counts, err := svc.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["Aline"] != 2 || counts["Carla"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

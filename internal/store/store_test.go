package store

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"actionboard/internal/domain"
)

func sampleCollection() domain.Collection {
	return domain.Collection{
		Activities: []domain.Activity{
			{
				ID:          1,
				Title:       "Quarterly audit",
				Responsible: []string{"Aline"},
				ResponsibleStatus: map[string]domain.PersonStatus{
					"Aline": {Status: domain.StatusInProgress, Comment: "started"},
				},
				CreatedBy: "Carla",
				CreatedAt: "2026-09-01T10:00:00Z",
				History: []domain.HistoryEntry{
					{Timestamp: "2026-09-01T10:00:00Z", Action: "Created", User: "Carla"},
				},
			},
		},
		NextID: 2,
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "actionboard.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"file":   NewFileStore(t.TempDir(), log.New(os.Stderr, "", 0)),
		"sqlite": sq,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c, err := s.LoadActivities(ctx)
			if err != nil {
				t.Fatalf("load empty: %v", err)
			}
			if len(c.Activities) != 0 || c.NextID != 1 {
				t.Fatalf("empty load = %+v", c)
			}

			want := sampleCollection()
			if err := s.SaveActivities(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.LoadActivities(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.NextID != 2 || len(got.Activities) != 1 {
				t.Fatalf("reload = %+v", got)
			}
			a := got.Activities[0]
			if a.Title != "Quarterly audit" || a.ResponsibleStatus["Aline"].Status != domain.StatusInProgress {
				t.Fatalf("activity = %+v", a)
			}
			if len(a.History) != 1 || a.History[0].Action != "Created" {
				t.Fatalf("history = %+v", a.History)
			}

			r, err := s.LoadRegistry(ctx)
			if err != nil {
				t.Fatalf("load empty registry: %v", err)
			}
			if r.Director != "" || len(r.Managers) != 0 {
				t.Fatalf("empty registry = %+v", r)
			}
			if err := s.SaveRegistry(ctx, domain.Registry{Managers: []string{"Aline", "Carla"}, Director: "Carla"}); err != nil {
				t.Fatalf("save registry: %v", err)
			}
			r, err = s.LoadRegistry(ctx)
			if err != nil {
				t.Fatalf("load registry: %v", err)
			}
			if r.Director != "Carla" || len(r.Managers) != 2 {
				t.Fatalf("registry = %+v", r)
			}
		})
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "activities.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	s := NewFileStore(dir, log.New(&buf, "", 0))

	c, err := s.LoadActivities(context.Background())
	if err != nil {
		t.Fatalf("corrupt load should degrade, got %v", err)
	}
	if len(c.Activities) != 0 || c.NextID != 1 {
		t.Fatalf("corrupt load = %+v", c)
	}
	if !bytes.Contains(buf.Bytes(), []byte("corrupt")) {
		t.Fatalf("corruption not logged: %q", buf.String())
	}
}

func TestFileStoreAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	if err := s.SaveActivities(context.Background(), sampleCollection()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "activities.json" {
		t.Fatalf("leftover temp files: %v", entries)
	}
}

func TestSQLiteIDCounterSurvivesDelete(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "actionboard.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	c := sampleCollection()
	c.NextID = 7
	c.Activities = nil
	if err := s.SaveActivities(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadActivities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.NextID != 7 {
		t.Fatalf("NextID = %d, want 7", got.NextID)
	}
}

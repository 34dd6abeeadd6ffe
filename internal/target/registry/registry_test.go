package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/livinlefevreloca/periodic/internal/target"
)

func noop(context.Context) error { return nil }

func TestRegistry_EnumerateByRoot(t *testing.T) {
	r := New()
	r.Register("/src/jobs/a.go", "One", time.Second, noop)
	r.Register("/src/jobs/nested/b.go", "Two", time.Second, noop)
	r.Register("/src/jobsextra/c.go", "Three", time.Second, noop)
	r.Fail("/src/jobs/broken.go", errors.New("bad unit"))

	got, err := r.Enumerate("/src/jobs")
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	want := []string{"/src/jobs/a.go", "/src/jobs/broken.go", "/src/jobs/nested/b.go"}
	if len(got) != len(want) {
		t.Fatalf("Enumerate = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Enumerate[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistry_Load(t *testing.T) {
	r := New()
	r.Register("/src/a.go", "Zeta", 10*time.Second, noop)
	r.Register("/src/a.go", "Alpha", 20*time.Second, noop)
	r.Register("/src/a.go", "Zeta", 30*time.Second, noop)

	unit, err := r.Load(context.Background(), "/src/a.go")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(unit.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(unit.Targets))
	}
	if unit.Targets[0].Name != "Alpha" || unit.Targets[1].Name != "Zeta" {
		t.Errorf("targets not sorted by name: %s, %s", unit.Targets[0].Name, unit.Targets[1].Name)
	}
	if unit.Targets[1].Interval != 30*time.Second {
		t.Errorf("re-registration should replace interval, got %v", unit.Targets[1].Interval)
	}
}

func TestRegistry_LoadErrors(t *testing.T) {
	r := New()
	r.Fail("/src/bad.go", errors.New("syntax"))

	tests := []struct {
		location string
		category string
	}{
		{"/src/bad.go", target.CategoryLoad},
		{"/src/unknown.go", target.CategoryUnknownUnit},
	}

	for _, tt := range tests {
		_, err := r.Load(context.Background(), tt.location)
		if got := target.Category(err); got != tt.category {
			t.Errorf("Load(%s) category = %s, want %s (err=%v)", tt.location, got, tt.category, err)
		}
	}

	r.Fail("/src/bad.go", nil)
	if _, err := r.Load(context.Background(), "/src/bad.go"); target.Category(err) != target.CategoryUnknownUnit {
		t.Errorf("cleared failure should leave an unknown unit, got %v", err)
	}
}

func TestRegistry_Isolated(t *testing.T) {
	a, b := New(), New()
	a.Register("/src/a.go", "Job", time.Second, noop)

	locations, _ := b.Enumerate("/src")
	if len(locations) != 0 {
		t.Errorf("registries share state: %v", locations)
	}
}

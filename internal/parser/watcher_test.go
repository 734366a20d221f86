package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitChange(t *testing.T, pw *PlanWatcher, want string) {
	t.Helper()
	select {
	case got := <-pw.Changes():
		if got != want {
			t.Fatalf("change for %s, want %s", got, want)
		}
	case err := <-pw.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported for %s", want)
	}
}

func TestPlanWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte("steps: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pw, err := NewPlanWatcher([]string{path}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewPlanWatcher() error = %v", err)
	}
	defer pw.Close()

	// several quick writes settle into one change
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("steps: []\n# edit\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	waitChange(t, pw, path)

	select {
	case extra := <-pw.Changes():
		t.Errorf("burst produced a second change for %s", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPlanWatcherFollowsRenameSaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte("# plan\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pw, err := NewPlanWatcher([]string{path}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewPlanWatcher() error = %v", err)
	}
	defer pw.Close()

	tmp := filepath.Join(dir, ".plan.md.swp")
	if err := os.WriteFile(tmp, []byte("# plan v2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitChange(t, pw, path)
}

func TestPlanWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte("steps: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pw, err := NewPlanWatcher([]string{path}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewPlanWatcher() error = %v", err)
	}
	defer pw.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-pw.Changes():
		t.Errorf("unexpected change for %s", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPlanWatcherErrors(t *testing.T) {
	if _, err := NewPlanWatcher(nil, 0); err == nil {
		t.Error("expected error for no paths")
	}
	if _, err := NewPlanWatcher([]string{filepath.Join(t.TempDir(), "missing", "plan.yaml")}, 0); err == nil {
		t.Error("expected error for a missing directory")
	}

	pw, err := NewPlanWatcher([]string{filepath.Join(t.TempDir(), "plan.yaml")}, 0)
	if err != nil {
		t.Fatalf("NewPlanWatcher() error = %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

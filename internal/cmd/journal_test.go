package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/gridpilot/internal/journal"
	"github.com/harrison/gridpilot/internal/models"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	now := time.Now()
	entries := []models.JournalEntry{
		{Signature: "sig-signin", Target: "Sign in button", PageFingerprint: "page-1", Point: models.Point{X: 10, Y: 20}, Kind: models.ActionClick, Success: true, RecordedAt: now.Add(-time.Hour), RunID: "run-1"},
		{Signature: "sig-search", Target: "search box", PageFingerprint: "page-2", Point: models.Point{X: 30, Y: 40}, Kind: models.ActionType, Success: true, RecordedAt: now.Add(-time.Minute), RunID: "run-1"},
		{Signature: "sig-signin", Target: "Sign in button", PageFingerprint: "page-1", Point: models.Point{X: 12, Y: 22}, Kind: models.ActionClick, Success: true, RecordedAt: now, RunID: "run-2"},
		{Signature: "sig-promo", Target: "promo banner", PageFingerprint: "page-1", Point: models.Point{X: 1, Y: 1}, Kind: models.ActionClick, Success: false, RecordedAt: now, RunID: "run-2"},
	}
	if err := store.Append(context.Background(), entries); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return dbPath
}

func TestJournalShow(t *testing.T) {
	useHome(t)
	dbPath := seedJournal(t)

	out, err := execute(t, nil, "journal", "show", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	for _, want := range []string{
		"Journal: " + dbPath,
		"Log entries:   4",
		"Signatures:    3",
		"Replayable:    2",
		"Runs:          2",
		`"Sign in button"`,
		"(12,22)",
		`"search box"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "(10,20)") || strings.Contains(out, "promo banner") {
		t.Errorf("superseded or failed entries shown without --all:\n%s", out)
	}

	out, err = execute(t, nil, "journal", "show", "--db-path", dbPath, "--all", "--target", "SIGN")
	if err != nil {
		t.Fatalf("show --all error = %v", err)
	}
	if !strings.Contains(out, "(10,20)") || !strings.Contains(out, "(12,22)") {
		t.Errorf("--all should list the full log:\n%s", out)
	}
	if strings.Contains(out, "search box") {
		t.Errorf("--target filter ignored:\n%s", out)
	}
}

func TestJournalShowMissingDatabase(t *testing.T) {
	useHome(t)
	missing := filepath.Join(t.TempDir(), "none.db")

	out, err := execute(t, nil, "journal", "show", "--db-path", missing)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "No journal database found at: "+missing) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestJournalExportImportRoundTrip(t *testing.T) {
	useHome(t)
	dbPath := seedJournal(t)
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "journal.jsonl")

	out, err := execute(t, nil, "journal", "export", exportPath, "--db-path", dbPath)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if !strings.Contains(out, "Exported") {
		t.Errorf("unexpected export output %q", out)
	}

	otherDB := filepath.Join(dir, "other.db")
	if _, err := execute(t, nil, "journal", "import", exportPath, "--db-path", otherDB); err != nil {
		t.Fatalf("import error = %v", err)
	}

	store, err := journal.NewStore(otherDB)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	j := journal.New()
	if _, err := store.Load(context.Background(), j); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	e, ok := j.Lookup("sig-signin")
	if !ok {
		t.Fatal("imported journal lost sig-signin")
	}
	if e.Point != (models.Point{X: 12, Y: 22}) {
		t.Errorf("Point = %v, want the latest (12,22)", e.Point)
	}
	if _, ok := j.Lookup("sig-promo"); ok {
		t.Error("failed entry became replayable after import")
	}
}

func TestJournalImportMissingFile(t *testing.T) {
	useHome(t)
	_, err := execute(t, nil, "journal", "import", filepath.Join(t.TempDir(), "missing.jsonl"), "--db-path", filepath.Join(t.TempDir(), "j.db"))
	if err == nil {
		t.Error("import of a missing file should fail")
	}
}

func TestJournalCompact(t *testing.T) {
	useHome(t)
	dbPath := seedJournal(t)

	out, err := execute(t, nil, "journal", "compact", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("compact error = %v", err)
	}
	if !strings.Contains(out, "Removed 2 entries.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestJournalClear(t *testing.T) {
	useHome(t)

	t.Run("declined", func(t *testing.T) {
		dbPath := seedJournal(t)
		out, err := execute(t, strings.NewReader("n\n"), "journal", "clear", "--db-path", dbPath)
		if err != nil {
			t.Fatalf("clear error = %v", err)
		}
		if !strings.Contains(out, "WARNING: This will delete all 4 journal entries") || !strings.Contains(out, "Operation cancelled.") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		dbPath := seedJournal(t)
		out, err := execute(t, strings.NewReader("yes\n"), "journal", "clear", "--db-path", dbPath)
		if err != nil {
			t.Fatalf("clear error = %v", err)
		}
		if !strings.Contains(out, "Deleted 4 entries.") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("yes flag", func(t *testing.T) {
		dbPath := seedJournal(t)
		if _, err := execute(t, nil, "journal", "clear", "--db-path", dbPath, "--yes"); err != nil {
			t.Fatalf("clear error = %v", err)
		}

		store, err := journal.NewStore(dbPath)
		if err != nil {
			t.Fatalf("NewStore() error = %v", err)
		}
		defer store.Close()
		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.LogEntries != 0 {
			t.Errorf("LogEntries = %d after clear, want 0", stats.LogEntries)
		}
	})
}

package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harrison/gridpilot/internal/filelock"
	"github.com/harrison/gridpilot/internal/models"
)

// ExportJSONL writes the journal's log to path, one JSON entry per line,
// atomically and under the path's file lock.
func ExportJSONL(ctx context.Context, path string, j *Journal) (int, error) {
	log := j.Log()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range log {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("encode entry %s: %w", e.Signature, err)
		}
	}
	if err := filelock.LockAndWrite(ctx, path, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("export journal: %w", err)
	}
	return len(log), nil
}

// ReadJSONL reads a log previously written by ExportJSONL. Blank lines are
// ignored; a malformed line fails the whole read with its line number.
func ReadJSONL(ctx context.Context, path string) ([]models.JournalEntry, error) {
	data, err := filelock.ReadLocked(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read journal export: %w", err)
	}

	var entries []models.JournalEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e models.JournalEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if e.Signature == "" {
			return nil, fmt.Errorf("%s:%d: entry has no signature", path, line)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return entries, nil
}

// ImportJSONL replays an exported log into j and returns the number of
// entries applied. A missing file is not an error.
func ImportJSONL(ctx context.Context, path string, j *Journal) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	entries, err := ReadJSONL(ctx, path)
	if err != nil {
		return 0, err
	}
	j.Apply(entries)
	return len(entries), nil
}

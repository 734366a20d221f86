// Package journal caches successful target resolutions keyed by a signature
// of the target description and the page state, so repeated runs can replay
// a known point instead of resolving it again.
//
// The journal holds a single current entry per signature. Every change is
// also appended to a log, which is what gets exported and persisted;
// replaying the log into an empty journal rebuilds the same index.
package journal

import (
	"sort"
	"sync"
	"time"

	"github.com/harrison/gridpilot/internal/models"
)

// Journal is safe for concurrent use. Every operation observes all earlier
// ones.
type Journal struct {
	mu      sync.Mutex
	current map[string]models.JournalEntry
	log     []models.JournalEntry
	now     func() time.Time
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{
		current: make(map[string]models.JournalEntry),
		now:     time.Now,
	}
}

// Lookup returns the current entry for sig if it recorded a success.
func (j *Journal) Lookup(sig string) (models.JournalEntry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.current[sig]
	if !ok || !e.Success {
		return models.JournalEntry{}, false
	}
	return e, true
}

// Put records e as the current entry for its signature, replacing any older
// entry.
func (j *Journal) Put(e models.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.now()
	}
	j.current[e.Signature] = e
	j.log = append(j.log, e)
}

// Invalidate removes the current entry for sig. It reports whether an entry
// was present. The removal is logged as an unsuccessful entry.
func (j *Journal) Invalidate(sig string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	old, ok := j.current[sig]
	if !ok {
		return false
	}
	delete(j.current, sig)
	j.log = append(j.log, models.JournalEntry{
		Signature:       sig,
		Target:          old.Target,
		PageFingerprint: old.PageFingerprint,
		Kind:            old.Kind,
		Success:         false,
		RecordedAt:      j.now(),
		RunID:           old.RunID,
	})
	return true
}

// Apply replays a log, in order, on top of the current index. Unsuccessful
// entries remove the signature. Applied entries are appended to the log.
func (j *Journal) Apply(log []models.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range log {
		if e.Success {
			j.current[e.Signature] = e
		} else {
			delete(j.current, e.Signature)
		}
		j.log = append(j.log, e)
	}
}

// Entries returns the current successful entries sorted by signature.
func (j *Journal) Entries() []models.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.JournalEntry, 0, len(j.current))
	for _, e := range j.current {
		if e.Success {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Signature < out[b].Signature })
	return out
}

// Len returns the number of signatures that would hit on Lookup.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, e := range j.current {
		if e.Success {
			n++
		}
	}
	return n
}

// Log returns a copy of the full change log.
func (j *Journal) Log() []models.JournalEntry {
	return j.LogSince(0)
}

// LogSince returns a copy of the log entries from position n on.
func (j *Journal) LogSince(n int) []models.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(j.log) {
		return nil
	}
	return append([]models.JournalEntry(nil), j.log[n:]...)
}

// LogLen returns the current length of the change log.
func (j *Journal) LogLen() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.log)
}

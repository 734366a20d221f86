package journal

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/harrison/gridpilot/internal/models"
)

func entry(sig string, x, y int, success bool) models.JournalEntry {
	return models.JournalEntry{
		Signature:       sig,
		Target:          "submit button",
		PageFingerprint: "l:abc",
		Point:           models.Point{X: x, Y: y},
		Kind:            models.ActionClick,
		Success:         success,
	}
}

func TestJournal_PutLookup(t *testing.T) {
	j := New()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	_, ok := j.Lookup("sig")
	assert.False(t, ok)

	j.Put(entry("sig", 10, 20, true))
	got, ok := j.Lookup("sig")
	require.True(t, ok)
	assert.Equal(t, models.Point{X: 10, Y: 20}, got.Point)
	assert.Equal(t, fixed, got.RecordedAt)
	assert.Equal(t, 1, j.Len())
}

func TestJournal_PutOverwrites(t *testing.T) {
	j := New()
	j.Put(entry("sig", 1, 1, true))
	j.Put(entry("sig", 2, 2, true))

	got, ok := j.Lookup("sig")
	require.True(t, ok)
	assert.Equal(t, models.Point{X: 2, Y: 2}, got.Point)
	assert.Len(t, j.Entries(), 1, "one current entry per signature")
	assert.Equal(t, 2, j.LogLen())
}

func TestJournal_UnsuccessfulEntryDoesNotHit(t *testing.T) {
	j := New()
	j.Put(entry("sig", 1, 1, true))
	j.Put(entry("sig", 3, 3, false))

	_, ok := j.Lookup("sig")
	assert.False(t, ok)
	assert.Equal(t, 0, j.Len())
	assert.Empty(t, j.Entries())
}

func TestJournal_Invalidate(t *testing.T) {
	j := New()
	j.Put(entry("sig", 5, 5, true))

	assert.True(t, j.Invalidate("sig"))
	_, ok := j.Lookup("sig")
	assert.False(t, ok, "lookup after invalidate must miss")
	assert.False(t, j.Invalidate("sig"), "second invalidate finds nothing")

	log := j.Log()
	require.Len(t, log, 2)
	assert.False(t, log[1].Success)
	assert.Equal(t, "sig", log[1].Signature)
}

func TestJournal_LogSince(t *testing.T) {
	j := New()
	j.Put(entry("a", 1, 1, true))
	mark := j.LogLen()
	j.Put(entry("b", 2, 2, true))
	j.Invalidate("a")

	since := j.LogSince(mark)
	require.Len(t, since, 2)
	assert.Equal(t, "b", since[0].Signature)
	assert.Nil(t, j.LogSince(10))
	assert.Len(t, j.LogSince(-1), 3)
}

func TestJournal_ConcurrentAccess(t *testing.T) {
	j := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sig := fmt.Sprintf("sig-%d", i%5)
			j.Put(entry(sig, i, i, true))
			// Read-your-writes: a Put is visible to the goroutine that made it
			// unless another goroutine invalidated it in between.
			j.Lookup(sig)
			if i%7 == 0 {
				j.Invalidate(sig)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, j.Len(), len(j.Entries()))
	assert.LessOrEqual(t, j.Len(), 5)
}

// TestJournal_ReplayRebuildsIndex checks that applying a journal's log to an
// empty journal yields the same current entries.
func TestJournal_ReplayRebuildsIndex(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		j := New()
		ops := rapid.IntRange(0, 60).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			sig := fmt.Sprintf("s%d", rapid.IntRange(0, 5).Draw(rt, "sig"))
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				j.Put(entry(sig, i, i, true))
			case 1:
				j.Put(entry(sig, i, i, false))
			case 2:
				j.Invalidate(sig)
			}

			if e, ok := j.Lookup(sig); ok && !e.Success {
				rt.Fatalf("lookup returned unsuccessful entry %+v", e)
			}
		}

		replayed := New()
		replayed.Apply(j.Log())
		if fmt.Sprint(replayed.Entries()) != fmt.Sprint(j.Entries()) {
			rt.Fatalf("replayed %v, want %v", replayed.Entries(), j.Entries())
		}
	})
}

package filelock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")

	require.NoError(t, AtomicWrite(path, []byte(`{"a":1}`)))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, AtomicWrite(path, []byte(`{"a":2}`)))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWrite_MissingParentIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "file.txt")
	require.NoError(t, AtomicWrite(path, []byte("x")))
	assert.FileExists(t, path)
}

func TestLock_TimesOutWhenHeld(t *testing.T) {
	target := filepath.Join(t.TempDir(), "journal.jsonl")

	holder := NewFileLock(LockPath(target))
	require.NoError(t, holder.Lock(context.Background()))
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := WithLock(ctx, target, func() error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
}

func TestWithLock_SerializesWriters(t *testing.T) {
	target := filepath.Join(t.TempDir(), "counter.txt")
	require.NoError(t, AtomicWrite(target, []byte{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), target, func() error {
				data, err := os.ReadFile(target)
				if err != nil {
					return err
				}
				return AtomicWrite(target, append(data, 'x'))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := ReadLocked(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxxx", string(data))
}

func TestLockAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, LockAndWrite(context.Background(), path, []byte("data")))

	got, err := ReadLocked(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
	assert.FileExists(t, LockPath(path))
}

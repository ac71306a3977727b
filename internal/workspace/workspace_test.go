package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionDirNesting(t *testing.T) {
	m := NewManager(t.TempDir())

	dir, err := m.CreateSessionDir(42)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	rel, err := filepath.Rel(m.Base(), dir)
	require.NoError(t, err)
	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 2)
	assert.Equal(t, "42", parts[0])
}

func TestSessionDirsNeverCollide(t *testing.T) {
	m := NewManager(t.TempDir())

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Same user on purpose.
			dir, err := m.CreateSessionDir(7)
			assert.NoError(t, err)
			mu.Lock()
			assert.False(t, seen[dir])
			seen[dir] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestDestroySessionDir(t *testing.T) {
	m := NewManager(t.TempDir())

	dir, err := m.CreateSessionDir(1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.mp4"), []byte("x"), 0644))

	m.DestroySessionDir(dir)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Cleanup paths tolerate already-gone dirs.
	m.DestroySessionDir(dir)
	m.DestroySessionDir("")
}

func TestDestroyAllRecreatesRoot(t *testing.T) {
	base := filepath.Join(t.TempDir(), "scratch")
	m := NewManager(base)

	_, err := m.CreateSessionDir(1)
	require.NoError(t, err)
	_, err = m.CreateSessionDir(2)
	require.NoError(t, err)

	m.DestroyAll()

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

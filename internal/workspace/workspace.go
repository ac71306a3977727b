package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Manager hands out isolated per-session scratch directories under a
// single base path. Directories are nested <base>/<user_id>/<uuid> so
// concurrent sessions, including two from the same user, never collide.
type Manager struct {
	base string
}

func NewManager(base string) *Manager {
	return &Manager{base: base}
}

func (m *Manager) Base() string {
	return m.base
}

// CreateSessionDir allocates a fresh scratch directory for one
// download session. Callers must pair it with DestroySessionDir on
// every exit path, normally via defer.
func (m *Manager) CreateSessionDir(userID int64) (string, error) {
	dir := filepath.Join(m.base, fmt.Sprintf("%d", userID), uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

// DestroySessionDir removes a session directory recursively. Errors are
// logged and swallowed since this runs on cleanup paths.
func (m *Manager) DestroySessionDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("[Workspace] Failed to remove %s: %v", dir, err)
	}
}

// DestroyAll wipes the entire scratch root and recreates it. Used at
// startup and shutdown.
func (m *Manager) DestroyAll() {
	if err := os.RemoveAll(m.base); err != nil {
		log.Printf("[Workspace] Failed to remove scratch root: %v", err)
	}
	if err := os.MkdirAll(m.base, 0755); err != nil {
		log.Printf("[Workspace] Failed to recreate scratch root: %v", err)
	}
}

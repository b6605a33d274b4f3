package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InstallationID returns the random installation identifier stored beside
// the store database, creating it on first use. The write is guarded by a
// FileLock so that two processes racing to open the store for the first
// time agree on a single ID instead of clobbering each other's file.
func InstallationID(storePath string) (string, error) {
	idPath := filepath.Join(filepath.Dir(storePath), ".installation-id")

	lock := NewFileLock(idPath + ".lock")
	if err := lock.Lock(); err != nil {
		return "", err
	}
	defer lock.Unlock()

	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(idPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(idPath, []byte(id+"\n"), 0o644); err != nil {
		return "", err
	}
	return id, nil
}

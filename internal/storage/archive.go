// Package storage persists terminal rollout snapshots so operators can
// inspect past rollouts after the controller restarts.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/rollout"
)

// Archive provides persistent storage for terminal rollout snapshots.
type Archive interface {
	// Archive saves a terminal rollout snapshot.
	Archive(snapshot rollout.Snapshot) error

	// History retrieves archived snapshots for a service, newest first.
	// An empty service matches every service.
	History(service string, limit int) ([]rollout.Snapshot, error)

	// Get retrieves one archived snapshot by rollout ID.
	Get(id string) (rollout.Snapshot, error)
}

// ErrNotArchived is returned when no archive entry exists for an ID.
var ErrNotArchived = fmt.Errorf("rollout not archived")

// storedSnapshot extends a snapshot with archival metadata.
type storedSnapshot struct {
	rollout.Snapshot
	ArchivedAt time.Time `json:"archived_at"`
}

// FileArchive implements Archive using the local file system. One JSON
// file per rollout, named <service>_<id>.json.
type FileArchive struct {
	dataDir string
	logger  *logging.Logger
	mu      sync.RWMutex
}

// NewFileArchive creates a file-based archive rooted at dataDir.
func NewFileArchive(dataDir string, logger *logging.Logger) (*FileArchive, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &FileArchive{
		dataDir: dataDir,
		logger:  logger,
	}, nil
}

// DefaultDataDir returns the archive location, honoring CANARYCTL_DATA_DIR
// and falling back to XDG conventions.
func DefaultDataDir() string {
	if dir := os.Getenv("CANARYCTL_DATA_DIR"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "canaryctl", "rollouts")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".canaryctl", "rollouts")
	}
	return filepath.Join(home, ".local", "share", "canaryctl", "rollouts")
}

// Archive saves a terminal rollout snapshot.
func (f *FileArchive) Archive(snapshot rollout.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := storedSnapshot{
		Snapshot:   snapshot,
		ArchivedAt: time.Now(),
	}

	fileName := fmt.Sprintf("%s_%s.json",
		sanitizeFileName(snapshot.Service),
		sanitizeFileName(snapshot.ID))
	filePath := filepath.Join(f.dataDir, fileName)

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rollout snapshot: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write rollout snapshot: %w", err)
	}

	f.logger.Debug("Archived rollout %s at %s", snapshot.ID, filePath)
	return nil
}

// History retrieves archived snapshots, newest first.
func (f *FileArchive) History(service string, limit int) ([]rollout.Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	files, err := os.ReadDir(f.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var stored []storedSnapshot
	prefix := ""
	if service != "" {
		prefix = sanitizeFileName(service) + "_"
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(file.Name(), prefix) {
			continue
		}

		entry, err := f.readFile(file.Name())
		if err != nil {
			f.logger.Debug("Failed to read archive file %s: %v", file.Name(), err)
			continue
		}
		// Prefix matching is only a cheap filter; verify the service.
		if service != "" && entry.Service != service {
			continue
		}
		stored = append(stored, entry)
	}

	sort.Slice(stored, func(i, j int) bool {
		return stored[i].StartedAt.After(stored[j].StartedAt)
	})

	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}

	history := make([]rollout.Snapshot, len(stored))
	for i, entry := range stored {
		history[i] = entry.Snapshot
	}
	return history, nil
}

// Get retrieves one archived snapshot by rollout ID.
func (f *FileArchive) Get(id string) (rollout.Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	files, err := os.ReadDir(f.dataDir)
	if err != nil {
		return rollout.Snapshot{}, fmt.Errorf("failed to read archive directory: %w", err)
	}

	suffix := "_" + sanitizeFileName(id) + ".json"
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), suffix) {
			continue
		}
		entry, err := f.readFile(file.Name())
		if err != nil {
			return rollout.Snapshot{}, err
		}
		if entry.ID == id {
			return entry.Snapshot, nil
		}
	}

	return rollout.Snapshot{}, ErrNotArchived
}

func (f *FileArchive) readFile(name string) (storedSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(f.dataDir, name))
	if err != nil {
		return storedSnapshot{}, fmt.Errorf("failed to read archive file: %w", err)
	}

	var entry storedSnapshot
	if err := json.Unmarshal(data, &entry); err != nil {
		return storedSnapshot{}, fmt.Errorf("failed to unmarshal archive file: %w", err)
	}
	return entry, nil
}

func sanitizeFileName(name string) string {
	// Replace problematic characters for file names
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(name)
}

package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/twistedxcom/agentmux/internal/logging"
)

const storeFileName = "sessions.json"

// StoreData is the on-disk shape of the session store.
type StoreData struct {
	Sessions     []*Session `json:"sessions"`
	LastActiveID string     `json:"last_active_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Store persists sessions as a JSON file. Writes are atomic: the data is
// written to a temp file in the same directory and renamed over the target.
type Store struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// NewStore creates a store backed by the given file path. Parent directories
// are created on first save.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		log:  logging.ForComponent(logging.CompStorage),
	}
}

// DefaultStorePath returns the store location under the agentmux config dir.
func DefaultStorePath(configDir string) string {
	return filepath.Join(configDir, storeFileName)
}

// Load reads the store from disk. A missing file yields an empty store.
// Runtime state is not persisted: every loaded session starts as not running
// until reconciliation proves otherwise.
func (s *Store) Load() (*StoreData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StoreData{}, nil
		}
		return nil, fmt.Errorf("reading session store: %w", err)
	}

	var data StoreData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing session store %s: %w", s.path, err)
	}

	for _, sess := range data.Sessions {
		sess.SetRunning(false)
	}

	s.log.Debug("loaded session store", "path", s.path, "sessions", len(data.Sessions))
	return &data, nil
}

// Save writes the store to disk atomically.
func (s *Store) Save(data *StoreData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data.UpdatedAt = time.Now()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, storeFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp store file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing session store: %w", err)
	}

	s.log.Debug("saved session store", "path", s.path, "sessions", len(data.Sessions))
	return nil
}

package ratelimit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"vlagserver/models"
)

// UpdateFunc computes the next record from the current one. found is false when no record exists yet.
type UpdateFunc func(current models.RateLimitRecord, found bool) models.RateLimitRecord

// Store keeps one RateLimitRecord per key. Update must run fn and persist its result
// atomically with respect to other Update calls for the same key.
type Store interface {
	Update(key string, fn UpdateFunc) (models.RateLimitRecord, error)
}

// --- Memory Store ---

// MemoryStore holds records in a mutex-guarded map. Records are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.RateLimitRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.RateLimitRecord)}
}

// Update applies fn under the store lock.
func (s *MemoryStore) Update(key string, fn UpdateFunc) (models.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.records[key]
	next := fn(current, found)
	s.records[key] = next
	return next, nil
}

// --- File Store ---

// FileStore keeps each record in <dir>/rate_limit_<key>.json.
// Updates for one key are serialized inside this process; separate processes sharing
// the directory can still interleave their read-modify-write cycles.
type FileStore struct {
	dir   string
	locks sync.Map // key -> *sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rate limit directory '%s': %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, "rate_limit_"+key+".json")
}

func (s *FileStore) lock(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Update reads the record file, applies fn and writes the result back via a temp file and rename.
func (s *FileStore) Update(key string, fn UpdateFunc) (models.RateLimitRecord, error) {
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	current, found, err := s.read(key)
	if err != nil {
		return models.RateLimitRecord{}, err
	}

	next := fn(current, found)
	if err := s.write(key, next); err != nil {
		return next, err
	}
	return next, nil
}

func (s *FileStore) read(key string) (models.RateLimitRecord, bool, error) {
	var rec models.RateLimitRecord
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return rec, false, nil
		}
		return rec, false, fmt.Errorf("failed to read rate limit record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt record is treated as missing so the window restarts.
		log.Printf("WARN: Ignoring unreadable rate limit record '%s': %v", s.path(key), err)
		return models.RateLimitRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *FileStore) write(key string, rec models.RateLimitRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit record: %w", err)
	}

	finalPath := s.path(key)
	tmp, err := os.CreateTemp(s.dir, "rate_limit_"+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary rate limit file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary rate limit file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary rate limit file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace rate limit record '%s': %w", finalPath, err)
	}
	return nil
}

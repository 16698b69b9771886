package db

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"vlagserver/models"
)

// Database is a read-only view of the profile document store: a JSON file of the form
// {"profiles": {"<code>": {"nickname": ..., "subtitle": ..., "dpUrl": ...}}}.
// The file is owned and written by another process; Watch picks up its changes.
type Database struct {
	models.ProfileDocument // Embedded profile map and its RWMutex

	filePath string
	statMu   sync.Mutex // Guards modTime/size
	modTime  time.Time
	size     int64
}

// NewDatabase creates the store and loads the file if it exists.
// A missing file yields an empty store; an unparsable file is an error.
func NewDatabase(filePath string) (*Database, error) {
	db := &Database{
		ProfileDocument: models.ProfileDocument{
			Profiles: make(map[string]models.Profile),
		},
		filePath: filePath,
	}

	log.Printf("INFO: Initializing profile store with file: %s", filePath)
	if err := db.Load(); err != nil {
		log.Printf("ERROR: Profile store load failed with critical error: %v", err)
		return nil, err
	}
	return db, nil
}

// Load reads the whole document file and replaces the in-memory state.
// If the file doesn't exist the store becomes empty. If it cannot be parsed the
// previous state is kept and the error is returned.
func (db *Database) Load() error {
	info, statErr := os.Stat(db.filePath)

	fileData, err := os.ReadFile(db.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("INFO: Profile store file '%s' not found. Serving an empty store.", db.filePath)
			db.replace(make(map[string]models.Profile))
			db.rememberStat(nil)
			return nil
		}
		log.Printf("ERROR: Failed to read profile store file '%s': %v", db.filePath, err)
		return err
	}

	var doc struct {
		Profiles map[string]models.Profile `json:"profiles"`
	}
	if err := json.Unmarshal(fileData, &doc); err != nil {
		log.Printf("CRITICAL: Failed to parse JSON data from profile store file '%s': %v", db.filePath, err)
		return err
	}
	if doc.Profiles == nil {
		doc.Profiles = make(map[string]models.Profile)
	}
	for code, profile := range doc.Profiles {
		profile.Code = code
		doc.Profiles[code] = profile
	}

	db.replace(doc.Profiles)
	if statErr == nil {
		db.rememberStat(info)
	}

	log.Printf("INFO: Successfully loaded profile store from %s. Profiles: %d", db.filePath, len(doc.Profiles))
	return nil
}

func (db *Database) replace(profiles map[string]models.Profile) {
	db.ProfileDocument.Mu.Lock()
	defer db.ProfileDocument.Mu.Unlock()
	db.ProfileDocument.Profiles = profiles
}

func (db *Database) rememberStat(info os.FileInfo) {
	db.statMu.Lock()
	defer db.statMu.Unlock()
	if info == nil {
		db.modTime, db.size = time.Time{}, 0
		return
	}
	db.modTime, db.size = info.ModTime(), info.Size()
}

// changed reports whether the file's modification time or size differs from the last load.
func (db *Database) changed() bool {
	info, err := os.Stat(db.filePath)

	db.statMu.Lock()
	defer db.statMu.Unlock()
	if err != nil {
		// Vanished since the last load, or never existed.
		return os.IsNotExist(err) && !db.modTime.IsZero()
	}
	return !info.ModTime().Equal(db.modTime) || info.Size() != db.size
}

// ReloadIfChanged reloads the file when it changed since the last load.
// It returns true when a reload happened.
func (db *Database) ReloadIfChanged() (bool, error) {
	if !db.changed() {
		return false, nil
	}
	if err := db.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// Watch polls the file every interval until ctx is done and reloads it on change.
// onReload, if set, runs after every successful reload.
func (db *Database) Watch(ctx context.Context, interval time.Duration, onReload func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reloaded, err := db.ReloadIfChanged()
			if err != nil {
				log.Printf("WARN: Profile store reload failed, keeping previous data: %v", err)
				continue
			}
			if reloaded && onReload != nil {
				onReload()
			}
		}
	}
}

// GetProfileByCode retrieves a profile by its code.
// Returns the profile and true if found, otherwise false.
func (db *Database) GetProfileByCode(code string) (models.Profile, bool) {
	db.ProfileDocument.Mu.RLock()
	defer db.ProfileDocument.Mu.RUnlock()

	profile, found := db.ProfileDocument.Profiles[code]
	return profile, found
}

// Count returns the number of profiles currently loaded.
func (db *Database) Count() int {
	db.ProfileDocument.Mu.RLock()
	defer db.ProfileDocument.Mu.RUnlock()
	return len(db.ProfileDocument.Profiles)
}

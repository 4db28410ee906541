// Package store persists games to disk. Each game lives in its own
// folder holding the current piece state, a digest sidecar, save
// slots, the game metadata and an asset library. All read-modify-write
// cycles run under a per-game advisory file lock, so writes to one
// game are strictly serialized while different games stay independent.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrLockTimeout = errors.New("lock timeout")
)

// DefaultLockTimeout bounds how long an operation waits for a game's
// write lock before failing with ErrLockTimeout.
const DefaultLockTimeout = 5 * time.Second

// GameStore accesses the per-game folders below dataDir/games/.
type GameStore struct {
	dataDir     string
	lockTimeout time.Duration
}

func NewGameStore(dataDir string) *GameStore {
	return &GameStore{dataDir: dataDir, lockTimeout: DefaultLockTimeout}
}

// GameFolder returns the data folder of a game, without checking
// whether it exists.
func (s *GameStore) GameFolder(game string) string {
	return filepath.Join(s.dataDir, "games", game)
}

// Exists reports whether a game folder is present.
func (s *GameStore) Exists(game string) bool {
	info, err := os.Stat(s.GameFolder(game))
	return err == nil && info.IsDir()
}

// OpenSlots counts the remaining free game slots.
func (s *GameStore) OpenSlots(maxGames int) int {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "games"))
	if err != nil {
		return maxGames
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			count++
		}
	}
	if count >= maxGames {
		return 0
	}
	return maxGames - count
}

// SweepStale deletes games whose lock file has not been touched for
// longer than maxAge. Every client sync touches the lock, so its mtime
// doubles as a last-activity marker.
func (s *GameStore) SweepStale(maxAge time.Duration) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "games"))
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(s.GameFolder(e.Name()), lockFile))
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			log.Infof("sweeping stale game %s (idle since %s)", e.Name(), info.ModTime())
			if err := os.RemoveAll(s.GameFolder(e.Name())); err != nil {
				log.Warnf("unable to sweep game %s: %v", e.Name(), err)
			}
		}
	}
}

// DeleteGame removes a game folder entirely.
func (s *GameStore) DeleteGame(game string) error {
	return os.RemoveAll(s.GameFolder(game))
}

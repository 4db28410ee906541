package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFile = ".flock"

// lockRetry is the poll interval while waiting on a contended lock.
const lockRetry = 25 * time.Millisecond

// lockGame acquires the game's advisory lock, exclusive or shared,
// with a bounded wait. The caller must Unlock the returned lock on
// every exit path. Acquiring also touches the lock file so its mtime
// reflects the game's last activity.
func (s *GameStore) lockGame(game string, exclusive bool) (*flock.Flock, error) {
	if !s.Exists(game) {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, game)
	}

	path := filepath.Join(s.GameFolder(game), lockFile)
	fl := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	var ok bool
	var err error
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetry)
	}
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, game)
	}

	now := time.Now()
	_ = os.Chtimes(path, now, now)

	return fl, nil
}

// readFileLocked reads a file under the game's shared lock.
func (s *GameStore) readFileLocked(game, name string) ([]byte, error) {
	fl, err := s.lockGame(game, false)
	if err != nil {
		return nil, err
	}
	defer fl.Unlock()

	data, err := os.ReadFile(filepath.Join(s.GameFolder(game), name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, game, name)
	}
	return data, err
}

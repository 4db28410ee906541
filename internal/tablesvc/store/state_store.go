package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

const (
	stateFile = "state.json"
	gameFile  = "game.json"
)

// EmptyDigest is the digest of a game that has never been written.
const EmptyDigest = "crc32:0"

// Digest returns the digest of the last successful state write. It is
// precomputed at write time, so polling it is O(1) in state size. A
// game that exists but was never written reports the empty sentinel;
// a missing game is NotFound.
func (s *GameStore) Digest(game string) (string, error) {
	data, err := s.readFileLocked(game, stateFile+".digest")
	if err != nil {
		if errors.Is(err, ErrNotFound) && s.Exists(game) {
			return EmptyDigest, nil
		}
		return "", err
	}
	return string(data), nil
}

// ReadState returns the raw state bytes plus their digest.
func (s *GameStore) ReadState(game string) ([]byte, string, error) {
	data, err := s.readFileLocked(game, stateFile)
	if err != nil {
		return nil, "", err
	}
	return data, digestOf(data), nil
}

// ReadSave returns a save slot (0 = initial state) plus its digest.
func (s *GameStore) ReadSave(game string, slot int) ([]byte, string, error) {
	if slot < 0 || slot > 9 {
		return nil, "", fmt.Errorf("%w: save #%d", ErrNotFound, slot)
	}
	data, err := s.readFileLocked(game, "state-"+strconv.Itoa(slot)+".json")
	if err != nil {
		return nil, "", err
	}
	return data, digestOf(data), nil
}

// ReadGame returns the game metadata.
func (s *GameStore) ReadGame(game string) (*models.Game, error) {
	data, err := s.readFileLocked(game, gameFile)
	if err != nil {
		return nil, err
	}
	var g models.Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("corrupt %s for %s: %w", gameFile, game, err)
	}
	return &g, nil
}

// WriteGame persists the game metadata plus its digest sidecar. The
// caller must already hold the game's exclusive lock or own the folder
// exclusively (game creation).
func (s *GameStore) WriteGame(game string, g *models.Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return writeWithDigest(filepath.Join(s.GameFolder(game), gameFile), data)
}

// GetPiece finds a single piece in the current state.
func (s *GameStore) GetPiece(game, pieceID string) (models.Piece, error) {
	data, _, err := s.ReadState(game)
	if err != nil {
		return models.Piece{}, err
	}
	var pieces []models.Piece
	if err := json.Unmarshal(data, &pieces); err != nil {
		return models.Piece{}, err
	}
	for _, p := range pieces {
		if p.ID == pieceID {
			return p, nil
		}
	}
	return models.Piece{}, fmt.Errorf("%w: piece %s in game %s", ErrNotFound, pieceID, game)
}

// CreatePiece prepends a new piece to the state. It conflicts if the
// id is already present. The rewritten state keeps at most one entry
// per id, first occurrence winning, so a log that ever accumulated
// duplicates heals on the next write.
func (s *GameStore) CreatePiece(game string, piece models.Piece) (models.Piece, error) {
	err := s.rewriteState(game, func(old []models.Piece) ([]models.Piece, error) {
		newState := []models.Piece{piece}
		seen := map[string]bool{}
		for _, item := range old {
			if seen[item.ID] {
				continue
			}
			if item.ID == piece.ID {
				return nil, fmt.Errorf("%w: piece %s exists", ErrConflict, piece.ID)
			}
			newState = append(newState, item)
			seen[item.ID] = true
		}
		return newState, nil
	})
	return piece, err
}

// PatchPiece merges an update into the piece with the given id. The
// merge callback receives the current piece and returns the merged
// one; it runs inside the locked read-modify-write, so it sees the
// authoritative current value.
func (s *GameStore) PatchPiece(game, pieceID string, merge func(models.Piece) models.Piece) (models.Piece, error) {
	var result models.Piece
	err := s.rewriteState(game, func(old []models.Piece) ([]models.Piece, error) {
		var newState []models.Piece
		seen := map[string]bool{}
		found := false
		for _, item := range old {
			if seen[item.ID] {
				continue
			}
			if item.ID == pieceID {
				item = merge(item)
				item.ID = pieceID
				result = item
				found = true
			}
			newState = append(newState, item)
			seen[item.ID] = true
		}
		if !found {
			return nil, fmt.Errorf("%w: piece %s in game %s", ErrNotFound, pieceID, game)
		}
		return newState, nil
	})
	return result, err
}

// DeletePiece drops the piece with the given id from the state.
// Deleting an absent id reports ErrNotFound and leaves the state
// bytes untouched, so deletes are idempotent in effect but not in
// reply.
func (s *GameStore) DeletePiece(game, pieceID string) error {
	return s.rewriteState(game, func(old []models.Piece) ([]models.Piece, error) {
		newState := []models.Piece{}
		seen := map[string]bool{}
		found := false
		for _, item := range old {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			if item.ID == pieceID {
				found = true
				continue
			}
			newState = append(newState, item)
		}
		if !found {
			return nil, fmt.Errorf("%w: piece %s in game %s", ErrNotFound, pieceID, game)
		}
		return newState, nil
	})
}

// ReplaceState swaps the whole state, e.g. for a reset or restore.
func (s *GameStore) ReplaceState(game string, pieces []models.Piece) error {
	return s.rewriteState(game, func([]models.Piece) ([]models.Piece, error) {
		return pieces, nil
	})
}

// Reseed replaces a game's content wholesale. The install callback
// runs while the game's exclusive lock is held, so readers and piece
// writers never observe half-installed files; the pieces it returns
// become the new state and pristine save, the game its new metadata.
// On callback error the state and its digest stay untouched.
func (s *GameStore) Reseed(game string, install func(folder string) ([]models.Piece, *models.Game, error)) error {
	fl, err := s.lockGame(game, true)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	folder := s.GameFolder(game)
	pieces, g, err := install(folder)
	if err != nil {
		return err
	}
	if pieces == nil {
		pieces = []models.Piece{}
	}

	data, err := json.Marshal(pieces)
	if err != nil {
		return err
	}
	if err := writeWithDigest(filepath.Join(folder, stateFile), data); err != nil {
		return err
	}
	if err := atomicWrite(filepath.Join(folder, "state-0.json"), data); err != nil {
		return err
	}

	gdata, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return writeWithDigest(filepath.Join(folder, gameFile), gdata)
}

// WriteSave copies the current state into a save slot.
func (s *GameStore) WriteSave(game string, slot int) error {
	if slot < 0 || slot > 9 {
		return fmt.Errorf("%w: save #%d", ErrNotFound, slot)
	}
	fl, err := s.lockGame(game, true)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	folder := s.GameFolder(game)
	data, err := os.ReadFile(filepath.Join(folder, stateFile))
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(folder, "state-"+strconv.Itoa(slot)+".json"), data)
}

// rewriteState is the locked read-modify-write cycle every state
// mutation goes through: take the exclusive lock, read the full log,
// rewrite it, replace the file atomically, refresh the digest, unlock.
func (s *GameStore) rewriteState(game string, apply func([]models.Piece) ([]models.Piece, error)) error {
	fl, err := s.lockGame(game, true)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	path := filepath.Join(s.GameFolder(game), stateFile)
	old := []models.Piece{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &old); err != nil {
			return fmt.Errorf("corrupt %s for %s: %w", stateFile, game, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	newState, err := apply(old)
	if err != nil {
		return err
	}
	if newState == nil {
		newState = []models.Piece{}
	}

	data, err := json.Marshal(newState)
	if err != nil {
		return err
	}
	return writeWithDigest(path, data)
}

// writeWithDigest replaces a file atomically and refreshes its
// .digest sidecar with the checksum of the exact bytes written.
func writeWithDigest(path string, data []byte) error {
	if err := atomicWrite(path, data); err != nil {
		return err
	}
	return atomicWrite(path+".digest", []byte(digestOf(data)))
}

// atomicWrite writes via a temp file in the same directory plus
// rename, so readers never observe a half-written file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func digestOf(data []byte) string {
	return "crc32:" + strconv.FormatUint(uint64(crc32.ChecksumIEEE(data)), 10)
}

package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/config"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/snapshot"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/store"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/validate"
)

var (
	ErrAuthRequired = errors.New("valid password required")
	ErrNoSlots      = errors.New("no more game slots available")
)

// invalidSVG is served for assets that can not be resolved.
const invalidSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 25.4 25.4" height="96" width="96"><path fill="#40bfbf" d="M0 0h25.4v25.4H0z"/><g fill="#fff" stroke="#fff" stroke-width="1.27" stroke-linecap="round" stroke-linejoin="round"><path d="M1.9 1.9l21.6 21.6M23.5 1.9L1.9 23.5" stroke-width="1.1"/></g></svg>`

// GameService orchestrates game lifecycle: creation from templates or
// uploaded snapshots, metadata reads, state replace and export.
type GameService struct {
	store        *store.GameStore
	cfg          *config.Server
	templatesDir string
}

func NewGameService(st *store.GameStore, cfg *config.Server, templatesDir string) *GameService {
	return &GameService{store: st, cfg: cfg, templatesDir: templatesDir}
}

// ServerInfo assembles the public server metadata. Serving it doubles
// as a housekeeping opportunity: games idle beyond the TTL get swept.
func (s *GameService) ServerInfo() models.ServerInfo {
	s.store.SweepStale(time.Duration(s.cfg.TTLHours) * time.Hour)

	return models.ServerInfo{
		Version:         s.cfg.Version,
		Engine:          s.cfg.Engine,
		TTL:             s.cfg.TTLHours,
		SnapshotUploads: s.cfg.SnapshotUploads,
		OpenSlots:       s.store.OpenSlots(s.cfg.MaxGames),
		CreatePassword:  s.cfg.PasswordCreate != "",
	}
}

// Templates lists the template names installed on this server.
func (s *GameService) Templates() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.templatesDir, "*.zip"))
	if err != nil {
		return nil, err
	}
	templates := []string{}
	for _, m := range matches {
		templates = append(templates, strings.TrimSuffix(filepath.Base(m), ".zip"))
	}
	return templates, nil
}

// Exists reports whether a game is present.
func (s *GameService) Exists(name string) bool {
	return s.store.Exists(name)
}

// Game returns the metadata of a game.
func (s *GameService) Game(name string) (*models.Game, error) {
	return s.store.ReadGame(name)
}

// Create sets up a new game from either a server-side template or an
// uploaded snapshot zip (uploadedZip is its temp path, empty if none).
func (s *GameService) Create(req models.GameRequest, uploadedZip string) (*models.Game, error) {
	if s.cfg.PasswordCreate != "" {
		if bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordCreate), []byte(req.Auth)) != nil {
			return nil, ErrAuthRequired
		}
	}
	if s.store.OpenSlots(s.cfg.MaxGames) <= 0 {
		return nil, ErrNoSlots
	}
	if err := validate.Game(req); err != nil {
		return nil, err
	}

	hasUpload := uploadedZip != ""
	if req.Template != "" == hasUpload {
		return nil, validate.Invalid("you need to either specify a template or upload a snapshot")
	}
	if hasUpload && !s.cfg.SnapshotUploads {
		return nil, validate.Invalid("snapshot upload is not enabled on this server")
	}

	zipPath := uploadedZip
	if !hasUpload {
		zipPath = filepath.Join(s.templatesDir, req.Template+".zip")
	}
	if _, err := os.Stat(zipPath); err != nil {
		return nil, validate.Invalid("template not available")
	}
	if err := snapshot.Validate(zipPath, s.cfg.MaxGameSizeMB, s.cfg.Engine); err != nil {
		return nil, err
	}

	if s.store.Exists(req.Name) {
		return nil, fmt.Errorf("%w: game %s exists", store.ErrConflict, req.Name)
	}

	folder := s.store.GameFolder(req.Name)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("can't write on server: %w", err)
	}
	game, err := s.seedGame(req.Name, zipPath, nil)
	if err != nil {
		// don't leave a half-created game behind
		if rmErr := s.store.DeleteGame(req.Name); rmErr != nil {
			log.Warnf("unable to clean up game %s: %v", req.Name, rmErr)
		}
		return nil, err
	}

	log.Infof("game %s created (%s)", game.Name, game.ID)
	return game, nil
}

// seedGame installs the snapshot into the game folder and assembles
// the game metadata. The whole install runs under the game's exclusive
// lock so nobody observes half-installed files; prior carries the
// identity to keep on a re-seed, nil means a fresh game.
func (s *GameService) seedGame(name, zipPath string, prior *models.Game) (*models.Game, error) {
	var game *models.Game
	err := s.store.Reseed(name, func(folder string) ([]models.Piece, *models.Game, error) {
		if err := snapshot.Install(zipPath, folder); err != nil {
			return nil, nil, err
		}

		library, err := s.store.GenerateLibrary(name)
		if err != nil {
			return nil, nil, err
		}

		templateJSON, err := os.ReadFile(filepath.Join(folder, "template.json"))
		if err != nil {
			return nil, nil, err
		}
		template, err := validate.TemplateJSON(templateJSON, s.cfg.Engine)
		if err != nil {
			return nil, nil, err
		}

		id := NewID()
		if prior != nil {
			id = prior.ID
		}
		game = &models.Game{
			ID:     id,
			Name:   name,
			Engine: s.cfg.Engine,
			Tables: []models.Table{{
				Name: "Main",
				Background: models.Background{
					Color:    "#423e3d",
					Scroller: "#2b2929",
					Image:    "img/desktop-wood.jpg",
				},
				Library:  library,
				Template: template,
				Width:    template.Width * template.GridSize,
				Height:   template.Height * template.GridSize,
				Credits:  "Your game template does not provide license information.",
			}},
		}
		if credits, err := os.ReadFile(filepath.Join(folder, "LICENSE.md")); err == nil {
			game.Tables[0].Credits = string(credits)
		}

		// the normalized pieces become state, save 0 and the digest
		stateJSON, err := os.ReadFile(filepath.Join(folder, "state.json"))
		if err != nil {
			return nil, nil, err
		}
		pieces, err := validate.StateJSON(stateJSON)
		if err != nil {
			return nil, nil, err
		}

		if err := os.WriteFile(filepath.Join(folder, "invalid.svg"), []byte(invalidSVG), 0644); err != nil {
			return nil, nil, err
		}
		return pieces, game, nil
	})
	return game, err
}

// State returns the raw current state plus its digest.
func (s *GameService) State(name string) ([]byte, string, error) {
	return s.store.ReadState(name)
}

// Digest returns the digest of the last state write.
func (s *GameService) Digest(name string) (string, error) {
	return s.store.Digest(name)
}

// Save returns a save slot plus its digest.
func (s *GameService) Save(name string, slot int) ([]byte, string, error) {
	return s.store.ReadSave(name, slot)
}

// SaveState copies the current state into a save slot.
func (s *GameService) SaveState(name string, slot int) error {
	return s.store.WriteSave(name, slot)
}

// ReplaceState swaps the whole table state, e.g. to reset or restore.
func (s *GameService) ReplaceState(name string, body []byte) ([]models.Piece, error) {
	pieces, err := validate.StateJSON(body)
	if err != nil {
		return nil, err
	}
	return pieces, s.store.ReplaceState(name, pieces)
}

// ExportSnapshot streams the game's snapshot zip into w.
func (s *GameService) ExportSnapshot(name string, w io.Writer) error {
	return snapshot.Export(s.store.GameFolder(name), w)
}

// ImportSnapshot validates a snapshot zip and re-seeds the existing
// game from it, replacing template, assets and state while keeping the
// game's identity.
func (s *GameService) ImportSnapshot(name, zipPath string) error {
	if err := snapshot.Validate(zipPath, s.cfg.MaxGameSizeMB, s.cfg.Engine); err != nil {
		return err
	}
	prior, err := s.store.ReadGame(name)
	if err != nil {
		return err
	}
	_, err = s.seedGame(name, zipPath, prior)
	return err
}

// NewID generates a random, stable 16-hex-char id for games, pieces
// and assets alike.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

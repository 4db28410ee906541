package service

import (
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/store"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/validate"
)

// PieceService validates, sanitizes and applies piece mutations.
type PieceService struct {
	store *store.GameStore
}

func NewPieceService(st *store.GameStore) *PieceService {
	return &PieceService{store: st}
}

// tableContext loads the template and library a game's pieces are
// sanitized against.
func (s *PieceService) tableContext(game string) (*models.Template, *models.Library, error) {
	g, err := s.store.ReadGame(game)
	if err != nil {
		return nil, nil, err
	}
	if len(g.Tables) == 0 || g.Tables[0].Template == nil {
		return nil, nil, validate.Invalid("game has no table template")
	}
	return g.Tables[0].Template, g.Tables[0].Library, nil
}

// Create adds a new piece to a game. The piece gets a fresh id unless
// the client chose one; racing creates on the same chosen id leave
// exactly one winner, the loser sees a conflict.
func (s *PieceService) Create(game string, body []byte) (models.Piece, error) {
	patch, err := validate.PieceJSON(body, true)
	if err != nil {
		return models.Piece{}, err
	}
	template, library, err := s.tableContext(game)
	if err != nil {
		return models.Piece{}, err
	}

	piece := patch.Apply(models.Piece{})
	models.PopulatePieceDefaults(&piece)

	sanitized := validate.SanitizePatch(patch, template, piece, findPatchAsset(library, patch))
	piece = sanitized.Apply(piece)
	if piece.ID == "" {
		piece.ID = NewID()
	}

	return s.store.CreatePiece(game, piece)
}

// Get returns a single piece from the current state.
func (s *PieceService) Get(game, pieceID string) (models.Piece, error) {
	return s.store.GetPiece(game, pieceID)
}

// Update patches or replaces a piece. Sanitization runs inside the
// locked read-modify-write against the authoritative current piece,
// so range clamping always sees the value it is merging into.
func (s *PieceService) Update(game, pieceID string, body []byte) (models.Piece, error) {
	patch, err := validate.PieceJSON(body, false)
	if err != nil {
		return models.Piece{}, err
	}
	patch.ID = nil // the URL wins over any id in the payload

	template, library, err := s.tableContext(game)
	if err != nil {
		return models.Piece{}, err
	}

	return s.store.PatchPiece(game, pieceID, func(current models.Piece) models.Piece {
		asset := findPatchAsset(library, patch)
		if asset == nil {
			asset = library.FindAsset(current.Asset)
		}
		return validate.SanitizePatch(patch, template, current, asset).Apply(current)
	})
}

// Delete tombstones a piece by id.
func (s *PieceService) Delete(game, pieceID string) error {
	return s.store.DeletePiece(game, pieceID)
}

func findPatchAsset(library *models.Library, patch models.PiecePatch) *models.Asset {
	if patch.Asset == nil {
		return nil
	}
	return library.FindAsset(*patch.Asset)
}

package validate

import (
	"fmt"
	"regexp"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
	"github.com/ludusleonis/tabletop-services/pkg/geometry"
)

var (
	pieceIDPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)
	assetPattern   = regexp.MustCompile(`^[a-z0-9]+$`)
	labelPattern   = regexp.MustCompile(`^[^\n\r]{0,32}$`)
)

// mandatoryPieceFields must be present when a full piece is expected
// (create, state replace).
var mandatoryPieceFields = []string{"layer", "asset", "width", "height", "x", "y", "z", "side", "color"}

// PieceJSON parses and validates a piece payload. With mandatory set,
// all fields a full piece needs must be present.
func PieceJSON(data []byte, mandatory bool) (models.PiecePatch, error) {
	var patch models.PiecePatch
	if err := decodeStrict(data, &patch); err != nil {
		return patch, err
	}
	return patch, Piece(patch, mandatory)
}

// Piece checks a patch. Fields the sanitizer can not repair (id,
// layer, asset, label) are always asserted; numeric ranges are only
// asserted on full pieces (create, state replace) — sparse updates get
// clamped by SanitizePatch instead of rejected, so an out-of-table
// move lands at the table edge.
func Piece(patch models.PiecePatch, mandatory bool) error {
	var issues []string

	if patch.ID != nil {
		assertMatch(&issues, "id", *patch.ID, pieceIDPattern)
	}
	if patch.Layer != nil && !models.ValidLayer(*patch.Layer) {
		issues = append(issues, "layer "+*patch.Layer+" unknown")
	}
	if patch.Asset != nil {
		assertMatch(&issues, "asset", *patch.Asset, assetPattern)
	}
	if patch.Label != nil {
		assertMatch(&issues, "label", *patch.Label, labelPattern)
	}

	if mandatory {
		if patch.Width != nil {
			assertRange(&issues, "width", *patch.Width, 1, 32)
		}
		if patch.Height != nil {
			assertRange(&issues, "height", *patch.Height, 1, 32)
		}
		if patch.X != nil {
			assertRange(&issues, "x", *patch.X, -100000, 100000)
		}
		if patch.Y != nil {
			assertRange(&issues, "y", *patch.Y, -100000, 100000)
		}
		if patch.Z != nil {
			assertRange(&issues, "z", *patch.Z, -100000, 100000)
		}
		if patch.Side != nil {
			assertRange(&issues, "side", *patch.Side, 0, 128)
		}
		if patch.No != nil {
			assertRange(&issues, "no", *patch.No, 0, 26)
		}
		for _, missing := range missingPieceFields(patch) {
			issues = append(issues, "piece is missing "+missing)
		}
	}

	if len(issues) > 0 {
		return Invalid("validating piece failed", issues...)
	}
	return nil
}

func missingPieceFields(patch models.PiecePatch) []string {
	present := map[string]bool{
		"layer":  patch.Layer != nil,
		"asset":  patch.Asset != nil,
		"width":  patch.Width != nil,
		"height": patch.Height != nil,
		"x":      patch.X != nil,
		"y":      patch.Y != nil,
		"z":      patch.Z != nil,
		"side":   patch.Side != nil,
		"color":  patch.Color != nil,
	}
	var missing []string
	for _, f := range mandatoryPieceFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// SanitizePatch clamps and wraps every patch field into its legal
// range against the game's template, the piece being patched and its
// asset. It never errors; illegal values are forced legal, unknown
// fields cannot occur since the patch is typed.
func SanitizePatch(patch models.PiecePatch, t *models.Template, current models.Piece, asset *models.Asset) models.PiecePatch {
	models.PopulatePieceDefaults(&current)

	width := current.Width
	if patch.Width != nil {
		w := geometry.Clamp(1, *patch.Width, 32)
		patch.Width = &w
		width = w
	}
	height := current.Height
	if patch.Height != nil {
		h := geometry.Clamp(1, *patch.Height, 32)
		patch.Height = &h
		height = h
	}
	if patch.X != nil {
		x := geometry.Clamp(0, *patch.X, (t.Width-width)*t.GridSize)
		patch.X = &x
	}
	if patch.Y != nil {
		y := geometry.Clamp(0, *patch.Y, (t.Height-height)*t.GridSize)
		patch.Y = &y
	}
	if patch.Z != nil {
		z := geometry.Clamp(-100000, *patch.Z, 100000)
		patch.Z = &z
	}
	if patch.R != nil {
		r := geometry.Mod(*patch.R, 360)
		patch.R = &r
	}
	if patch.Color != nil {
		c := geometry.Mod(*patch.Color, len(t.Colors)+1)
		patch.Color = &c
	}
	if patch.Border != nil {
		b := geometry.Mod(*patch.Border, len(t.Borders)+1)
		patch.Border = &b
	}
	if patch.No != nil {
		n := geometry.Mod(*patch.No, 27)
		patch.No = &n
	}
	if patch.Side != nil {
		sides := 1
		if asset != nil && len(asset.Media) > 0 {
			sides = len(asset.Media)
		}
		s := geometry.Mod(*patch.Side, sides)
		patch.Side = &s
	}

	return patch
}

// StateJSON parses and validates a full state (array of pieces), as
// used by state replace and snapshot import.
func StateJSON(data []byte) ([]models.Piece, error) {
	var patches []models.PiecePatch
	if err := decodeStrict(data, &patches); err != nil {
		return nil, err
	}

	pieces := make([]models.Piece, 0, len(patches))
	for i, patch := range patches {
		if err := Piece(patch, true); err != nil {
			return nil, err
		}
		piece := patch.Apply(models.Piece{})
		if piece.ID == "" {
			return nil, Invalid("validating state failed", fmt.Sprintf("piece #%d has no id", i))
		}
		models.PopulatePieceDefaults(&piece)
		pieces = append(pieces, piece)
	}
	return pieces, nil
}

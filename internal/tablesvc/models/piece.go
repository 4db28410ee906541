package models

// Rendering/interaction layers, bottom to top. LayerDelete is the
// tombstone layer used to request removal of a piece by id; it is
// never persisted.
const (
	LayerTile    = "tile"
	LayerOverlay = "overlay"
	LayerNote    = "note"
	LayerToken   = "token"
	LayerOther   = "other"
	LayerDelete  = "delete"
)

// LayerOrder lists the persistable layers in render order (bottom first).
var LayerOrder = []string{LayerTile, LayerOverlay, LayerNote, LayerToken, LayerOther}

// Well-known piece ids that are not selectable / hit-testable.
const (
	PieceIDPointer = "ffffffffffffffff"
	PieceIDLOS     = "fffffffffffffffe"
)

// Piece is a single placed game element on a table. Coordinates are in
// px relative to the table origin, width/height in grid cells.
type Piece struct {
	ID      string `json:"id"`
	Layer   string `json:"layer"`
	Asset   string `json:"asset"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	Side    int    `json:"side"`
	Color   int    `json:"color"`
	Border  int    `json:"border,omitempty"`
	No      int    `json:"no,omitempty"`
	R       int    `json:"r,omitempty"`
	Label   string `json:"label,omitempty"`
	Expires int64  `json:"expires,omitempty"`
}

// PiecePatch is a sparse piece update. Nil fields are "not sent" and
// leave the target field untouched; patches are merged by explicit
// per-field assignment, never a generic object merge.
type PiecePatch struct {
	ID      *string `json:"id,omitempty"`
	Layer   *string `json:"layer,omitempty"`
	Asset   *string `json:"asset,omitempty"`
	Width   *int    `json:"width,omitempty"`
	Height  *int    `json:"height,omitempty"`
	X       *int    `json:"x,omitempty"`
	Y       *int    `json:"y,omitempty"`
	Z       *int    `json:"z,omitempty"`
	Side    *int    `json:"side,omitempty"`
	Color   *int    `json:"color,omitempty"`
	Border  *int    `json:"border,omitempty"`
	No      *int    `json:"no,omitempty"`
	R       *int    `json:"r,omitempty"`
	Label   *string `json:"label,omitempty"`
	Expires *int64  `json:"expires,omitempty"`
}

// IsDelete reports whether the patch is a delete tombstone.
func (p PiecePatch) IsDelete() bool {
	return p.Layer != nil && *p.Layer == LayerDelete
}

// Apply merges the patch onto a piece, patch fields taking precedence.
func (p PiecePatch) Apply(onto Piece) Piece {
	if p.ID != nil {
		onto.ID = *p.ID
	}
	if p.Layer != nil {
		onto.Layer = *p.Layer
	}
	if p.Asset != nil {
		onto.Asset = *p.Asset
	}
	if p.Width != nil {
		onto.Width = *p.Width
	}
	if p.Height != nil {
		onto.Height = *p.Height
	}
	if p.X != nil {
		onto.X = *p.X
	}
	if p.Y != nil {
		onto.Y = *p.Y
	}
	if p.Z != nil {
		onto.Z = *p.Z
	}
	if p.Side != nil {
		onto.Side = *p.Side
	}
	if p.Color != nil {
		onto.Color = *p.Color
	}
	if p.Border != nil {
		onto.Border = *p.Border
	}
	if p.No != nil {
		onto.No = *p.No
	}
	if p.R != nil {
		onto.R = *p.R
	}
	if p.Label != nil {
		onto.Label = *p.Label
	}
	if p.Expires != nil {
		onto.Expires = *p.Expires
	}
	return onto
}

// ValidLayer reports whether name is a persistable layer.
func ValidLayer(name string) bool {
	for _, l := range LayerOrder {
		if l == name {
			return true
		}
	}
	return false
}

// PopulatePieceDefaults fills in the defaults the API may omit so a
// piece is fully specified before geometry runs over it.
func PopulatePieceDefaults(p *Piece) {
	if p.Width < 1 {
		p.Width = 1
	}
	if p.Height < 1 {
		p.Height = p.Width
	}
	if p.Layer == "" {
		p.Layer = LayerTile
	}
}

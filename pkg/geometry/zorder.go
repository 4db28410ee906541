package geometry

import (
	"math"
	"sort"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

// Everywhere covers the whole table, for layer-wide z queries.
var Everywhere = Rect{Left: math.MinInt32, Top: math.MinInt32, Right: math.MaxInt32, Bottom: math.MaxInt32}

// FindPiecesWithin returns all pieces of a layer that are in or touch
// an area. Layer "all" matches every layer.
func FindPiecesWithin(pieces []models.Piece, t *models.Template, area Rect, layer string) []models.Piece {
	var found []models.Piece
	for _, p := range pieces {
		if layer == "all" || p.Layer == layer {
			if area.Intersects(PieceBounds(p, t)) {
				found = append(found, p)
			}
		}
	}
	return found
}

// MaxZ returns the highest z in use within a layer and area, 0 if the
// area is empty. New pieces stack at MaxZ+1.
func MaxZ(pieces []models.Piece, t *models.Template, layer string, area Rect) int {
	max := math.MinInt32
	for _, p := range FindPiecesWithin(pieces, t, area, layer) {
		if p.Z > max {
			max = p.Z
		}
	}
	if max == math.MinInt32 {
		return 0
	}
	return max
}

// MinZ returns the lowest z in use within a layer and area, 0 if the
// area is empty.
func MinZ(pieces []models.Piece, t *models.Template, layer string, area Rect) int {
	min := math.MaxInt32
	for _, p := range FindPiecesWithin(pieces, t, area, layer) {
		if p.Z < min {
			min = p.Z
		}
	}
	if min == math.MaxInt32 {
		return 0
	}
	return min
}

// SortZ sorts pieces by z, highest first. Sorts in place and returns
// the slice for chaining.
func SortZ(pieces []models.Piece) []models.Piece {
	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].Z > pieces[j].Z
	})
	return pieces
}

// ContentRect determines the rectangle all pieces are within, in px.
// Empty tables produce the zero rect.
func ContentRect(pieces []models.Piece, t *models.Template) Rect {
	if len(pieces) == 0 {
		return Rect{}
	}
	rect := Rect{Left: math.MaxInt32, Top: math.MaxInt32, Right: math.MinInt32, Bottom: math.MinInt32}
	for _, p := range pieces {
		b := PieceBounds(p, t)
		if b.Left < rect.Left {
			rect.Left = b.Left
		}
		if b.Top < rect.Top {
			rect.Top = b.Top
		}
		if b.Right > rect.Right {
			rect.Right = b.Right
		}
		if b.Bottom > rect.Bottom {
			rect.Bottom = b.Bottom
		}
	}
	return rect
}

// SetupCenter averages the piece content into a focus point. Empty
// tables are considered centered on the whole table.
func SetupCenter(pieces []models.Piece, t *models.Template) (int, int) {
	rect := ContentRect(pieces, t)
	if rect.Right <= 0 && rect.Bottom <= 0 {
		return t.GridSize * t.Width / 2, t.GridSize * t.Height / 2
	}
	return rect.Left + (rect.Right-rect.Left-1)/2, rect.Top + (rect.Bottom-rect.Top-1)/2
}

package geometry

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

// alphaThreshold is the minimum alpha (0..255) a pixel needs to count
// as solid.
const alphaThreshold = 4

// MaskSource resolves a piece to its current side's image, or nil if
// no mask is available. Pieces without a mask are treated as solid.
type MaskSource func(p models.Piece) image.Image

// LoadMask decodes a piece mask image (png or jpeg).
func LoadMask(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// IsSolid reports whether a piece is visually solid at the given
// piece-local px coordinate. Tokens are always solid, as are pieces
// without an alpha mask. The mask is sampled with "cover" scaling, the
// way it is rendered.
func IsSolid(p models.Piece, t *models.Template, mask image.Image, x, y int) bool {
	if p.Layer == models.LayerToken {
		return true
	}
	if mask == nil {
		return true
	}

	models.PopulatePieceDefaults(&p)
	width := float64(p.Width * t.GridSize)
	height := float64(p.Height * t.GridSize)
	if x < 0 || y < 0 || float64(x) >= width || float64(y) >= height {
		return false
	}

	bounds := mask.Bounds()
	iw, ih := float64(bounds.Dx()), float64(bounds.Dy())
	if iw == 0 || ih == 0 {
		return true
	}

	// compensate for 'cover' scaling: center-crop the larger aspect
	sx, sy := 0.0, 0.0
	sw, sh := iw, ih
	if iw/ih < width/height { // source taller
		sh = height / (width / sw)
		sy = (ih - sh) / 2
	} else { // source wider
		sw = width / (height / sh)
		sx = (iw - sw) / 2
	}

	px := bounds.Min.X + int(sx+float64(x)/width*sw)
	py := bounds.Min.Y + int(sy+float64(y)/height*sh)
	_, _, _, a := mask.At(px, py).RGBA()
	return a>>8 > alphaThreshold
}

// FindVisiblePieceAt walks all layers top-to-bottom at a table px
// coordinate and returns the first piece that is visually solid there,
// skipping fully transparent hits. Returns nil if nothing solid is at
// that position.
func FindVisiblePieceAt(pieces []models.Piece, t *models.Template, x, y int, masks MaskSource) *models.Piece {
	point := Rect{Left: x, Top: y, Right: x, Bottom: y}

	for i := len(models.LayerOrder) - 1; i >= 0; i-- {
		layer := models.LayerOrder[i]
		for _, p := range SortZ(FindPiecesWithin(pieces, t, point, layer)) {
			if p.ID == models.PieceIDPointer || p.ID == models.PieceIDLOS {
				continue
			}

			// translate to piece-local coordinates, undoing the
			// piece's rotation around its center
			oX := float64(x - p.X)
			oY := float64(y - p.Y)
			tX, tY := oX, oY
			if p.R != 0 {
				rs := math.Sin(float64(p.R) * math.Pi / 180)
				rc := math.Cos(float64(p.R) * math.Pi / 180)
				tX = oX*rc + oY*rs
				tY = -oX*rs + oY*rc
			}
			lx := int(tX) + p.Width*t.GridSize/2
			ly := int(tY) + p.Height*t.GridSize/2

			var mask image.Image
			if masks != nil {
				mask = masks(p)
			}
			if IsSolid(p, t, mask, lx, ly) {
				found := p
				return &found
			}
		}
	}
	return nil
}

package geometry

import (
	"time"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

// Meta is the derived render metadata for one piece. It is recomputed
// from piece + template + library on every state fetch and never sent
// over the wire.
type Meta struct {
	OriginWidthPx   int
	OriginHeightPx  int
	WidthPx         int // rotation-aware
	HeightPx        int // rotation-aware
	OriginOffsetXPx int
	OriginOffsetYPx int
	Sides           int
	Feature         string
	Mask            string
	HasColor        bool
	HasBorder       bool
	HasHighlight    bool
	Expires         time.Time
}

// Features of special assets.
const (
	FeaturePointer = "POINTER"
	FeatureDicemat = "DICEMAT"
	FeatureDiscard = "DISCARD"
)

// PieceMeta computes the render metadata for a piece. The library may
// be nil; asset-derived fields then stay at their zero values.
// serverDelta is the local-minus-server clock difference used to
// translate the piece expiry into local time.
func PieceMeta(p *models.Piece, t *models.Template, lib *models.Library, serverDelta time.Duration) Meta {
	models.PopulatePieceDefaults(p)

	var m Meta
	if p.ID == models.PieceIDLOS {
		// the line-of-sight helper stores px, not cells
		m.OriginWidthPx = p.Width
		m.OriginHeightPx = p.Height
		m.WidthPx = p.Width
		m.HeightPx = p.Height
	} else {
		m.OriginWidthPx = p.Width * t.GridSize
		m.OriginHeightPx = p.Height * t.GridSize
		m.WidthPx, m.HeightPx = DimensionsRotated(m.OriginWidthPx, m.OriginHeightPx, p.R)
		// visual rotation pivots on the unrotated center
		m.OriginOffsetXPx = (m.OriginWidthPx - m.WidthPx) / 2
		m.OriginOffsetYPx = (m.OriginHeightPx - m.HeightPx) / 2
	}

	if asset := lib.FindAsset(p.Asset); asset != nil {
		m.Sides = len(asset.Media)
		if m.Sides < 1 {
			m.Sides = 1
		}
		if asset.ID == models.PieceIDPointer {
			m.Feature = FeaturePointer
		} else {
			switch asset.Alias {
			case "dicemat":
				m.Feature = FeatureDicemat
			case "discard":
				m.Feature = FeatureDiscard
			}
		}
		if asset.Base != "" {
			m.Mask = asset.Base
		} else if p.Side >= 0 && p.Side < len(asset.Media) {
			m.Mask = asset.Media[p.Side]
		}
		m.HasColor = len(asset.BG) <= 2 && asset.BG != ""
		m.HasBorder = p.Layer == models.LayerToken
		m.HasHighlight = asset.Type == models.LayerToken || m.HasColor
	}

	if p.Expires > 0 {
		m.Expires = time.Unix(p.Expires, 0).Add(serverDelta)
	}

	return m
}

// PieceBounds returns the px area a piece covers, rotation included.
func PieceBounds(p models.Piece, t *models.Template) Rect {
	models.PopulatePieceDefaults(&p)
	w, h := DimensionsRotated(p.Width*t.GridSize, p.Height*t.GridSize, p.R)
	return Rect{
		Left:   p.X - w/2,
		Top:    p.Y - h/2,
		Right:  p.X + w/2 - 1,
		Bottom: p.Y + h/2 - 1,
	}
}

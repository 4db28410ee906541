// Package geometry holds the pure piece-geometry functions shared by
// server and clients. Both sides must compute identical results, so
// everything here is deterministic and free of I/O.
package geometry

import (
	"math"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

// Snap levels of detail.
const (
	SnapCenters = 1 // cell centers only
	SnapCorners = 2 // centers + corners
	SnapEdges   = 3 // centers + corners + edge midpoints
)

// freeSnapSize is the grid used when a template disables snapping, so
// coordinates still land on a shared 4px lattice.
const freeSnapSize = 8

// Clamp limits v to [min, max].
func Clamp(min, v, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Mod returns v modulo m, always in [0, m).
func Mod(v, m int) int {
	if m <= 0 {
		return 0
	}
	v %= m
	if v < 0 {
		v += m
	}
	return v
}

// Rect is an axis-aligned box in px, all edges inclusive.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Intersects reports whether two rects overlap or touch.
func (r Rect) Intersects(o Rect) bool {
	return r.Left <= o.Right && r.Right >= o.Left &&
		r.Top <= o.Bottom && r.Bottom >= o.Top
}

// Snap returns the nearest valid anchor for x/y on a template's grid.
// Templates with snapping disabled fall back to a fine 4px lattice.
func Snap(t *models.Template, x, y, lod int) (int, int) {
	if !t.SnapEnabled() {
		return SnapGrid(x, y, freeSnapSize, SnapEdges)
	}
	if t.Type == models.TypeGridHex {
		return SnapHex(x, y, t.GridSize, lod)
	}
	return SnapGrid(x, y, t.GridSize, lod)
}

// SnapGrid snaps x/y to a square grid of the given cell size.
func SnapGrid(x, y, size, lod int) (int, int) {
	if size < 2 {
		return x, y
	}
	switch {
	case lod >= SnapEdges:
		// centers, corners and edge midpoints form a half-size lattice
		half := size / 2
		return snapTo(x, half), snapTo(y, half)
	case lod == SnapCorners:
		cx, cy := snapTo(x, size), snapTo(y, size)
		mx, my := snapCenter(x, size), snapCenter(y, size)
		if dist2(x, y, cx, cy) <= dist2(x, y, mx, my) {
			return cx, cy
		}
		return mx, my
	default:
		return snapCenter(x, size), snapCenter(y, size)
	}
}

// SnapHex snaps x/y to a pointy-top hex grid. The grid size is the
// horizontal distance between adjacent hex centers.
func SnapHex(x, y, size, lod int) (int, int) {
	if size < 2 {
		return x, y
	}
	side := float64(size) / math.Sqrt(3)
	cx, cy := hexCenter(float64(x), float64(y), side)

	bestX, bestY := cx, cy
	best := dist2f(float64(x), float64(y), cx, cy)

	if lod >= SnapCorners {
		// six corners, then six edge midpoints at the next level
		for k := 0; k < 6; k++ {
			a := math.Pi/6 + float64(k)*math.Pi/3
			px, py := cx+side*math.Cos(a), cy+side*math.Sin(a)
			if d := dist2f(float64(x), float64(y), px, py); d < best {
				best, bestX, bestY = d, px, py
			}
			if lod >= SnapEdges {
				a = float64(k) * math.Pi / 3
				mx, my := cx+side*math.Sqrt(3)/2*math.Cos(a), cy+side*math.Sqrt(3)/2*math.Sin(a)
				if d := dist2f(float64(x), float64(y), mx, my); d < best {
					best, bestX, bestY = d, mx, my
				}
			}
		}
	}

	return int(math.Round(bestX)), int(math.Round(bestY))
}

// DimensionsRotated computes the axis-aligned bounding box of a w*h
// rectangle rotated by r degrees around its center.
func DimensionsRotated(w, h, r int) (int, int) {
	switch Mod(r, 180) {
	case 0:
		return w, h
	case 90:
		return h, w
	}
	rad := float64(Mod(r, 360)) * math.Pi / 180
	s, c := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	return int(math.Round(float64(w)*c + float64(h)*s)),
		int(math.Round(float64(w)*s + float64(h)*c))
}

// ClampToTableSize clips a piece's x/y so it stays fully on the table.
func ClampToTableSize(p *models.Piece, t *models.Template) {
	p.X = Clamp(0, p.X, (t.Width-p.Width)*t.GridSize)
	p.Y = Clamp(0, p.Y, (t.Height-p.Height)*t.GridSize)
}

func snapTo(v, size int) int {
	return int(math.Round(float64(v)/float64(size))) * size
}

func snapCenter(v, size int) int {
	return snapTo(v-size/2, size) + size/2
}

func dist2(x, y, px, py int) int {
	dx, dy := x-px, y-py
	return dx*dx + dy*dy
}

func dist2f(x, y, px, py float64) float64 {
	dx, dy := x-px, y-py
	return dx*dx + dy*dy
}

// hexCenter finds the nearest hex center via axial coordinates and
// cube rounding.
func hexCenter(x, y, side float64) (float64, float64) {
	q := (math.Sqrt(3)/3*x - y/3) / side
	r := (2.0 / 3.0 * y) / side

	// cube rounding
	rq, rr := math.Round(q), math.Round(r)
	rs := math.Round(-q - r)
	dq, dr, ds := math.Abs(rq-q), math.Abs(rr-r), math.Abs(rs-(-q-r))
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}

	return side * math.Sqrt(3) * (rq + rr/2), side * 1.5 * rr
}

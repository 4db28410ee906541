package models

// Grid types supported by templates.
const (
	TypeGridSquare = "grid-square"
	TypeGridHex    = "grid-hex"
)

// Template is the grid/ruleset definition a game is seeded from.
// Width/Height are in grid cells, GridSize in px per cell.
type Template struct {
	Type     string  `json:"type"`
	Version  string  `json:"version"`
	Engine   string  `json:"engine"` // semver range the server engine must satisfy
	GridSize int     `json:"gridSize"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Colors   []Color `json:"colors"`
	Borders  []Color `json:"borders,omitempty"`
	Snap     *bool   `json:"snap,omitempty"`
}

type Color struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SnapEnabled reports whether pieces snap to this template's grid.
// Absent means enabled.
func (t *Template) SnapEnabled() bool {
	return t.Snap == nil || *t.Snap
}

package models

// Asset is a reusable visual resource. Media holds one file per side;
// Base is an optional underlay image distinct from the sides.
type Asset struct {
	ID     string   `json:"id"`
	Alias  string   `json:"alias"`
	Type   string   `json:"type"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	BG     string   `json:"bg"`
	Media  []string `json:"media"`
	Base   string   `json:"base,omitempty"`
}

// Library is the per-game asset catalog, regenerated by scanning the
// game's asset folder. It is never edited by hand.
type Library struct {
	Tile    []Asset `json:"tile"`
	Token   []Asset `json:"token"`
	Overlay []Asset `json:"overlay"`
}

// ByType returns the catalog slice for an asset type, nil for unknown
// types.
func (l *Library) ByType(t string) []Asset {
	switch t {
	case LayerTile:
		return l.Tile
	case LayerToken:
		return l.Token
	case LayerOverlay:
		return l.Overlay
	}
	return nil
}

// FindAsset looks an asset up by id across all types.
func (l *Library) FindAsset(id string) *Asset {
	if l == nil {
		return nil
	}
	for _, assets := range [][]Asset{l.Tile, l.Token, l.Overlay} {
		for i := range assets {
			if assets[i].ID == id {
				return &assets[i]
			}
		}
	}
	return nil
}

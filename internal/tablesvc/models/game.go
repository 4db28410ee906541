package models

// Game is the immutable metadata of one hosted game. Table contents
// change constantly but the game itself is created once.
type Game struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Engine string  `json:"engine"`
	Tables []Table `json:"tables"`
}

// Table is one of a game's tabletop views.
type Table struct {
	Name       string     `json:"name"`
	Background Background `json:"background"`
	Library    *Library   `json:"library,omitempty"`
	Template   *Template  `json:"template,omitempty"`
	Credits    string     `json:"credits,omitempty"`
	Width      int        `json:"width,omitempty"`  // px
	Height     int        `json:"height,omitempty"` // px
}

type Background struct {
	Color    string `json:"color"`
	Scroller string `json:"scroller"`
	Image    string `json:"image"`
}

// GameRequest is the client payload for game creation. Exactly one of
// Template (server-side zip) or an uploaded snapshot must be provided.
type GameRequest struct {
	Name     string `json:"name"`
	Template string `json:"template,omitempty"`
	Auth     string `json:"auth,omitempty"`
}

// ServerInfo is the public server metadata served on /.
type ServerInfo struct {
	Version         string `json:"version"`
	Engine          string `json:"engine"`
	TTL             int    `json:"ttl"`
	SnapshotUploads bool   `json:"snapshotUploads"`
	OpenSlots       int    `json:"openSlots"`
	CreatePassword  bool   `json:"createPassword,omitempty"`
}

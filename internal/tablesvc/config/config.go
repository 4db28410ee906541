package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Build-time identity of this server. Engine is the tabletop engine
// version templates declare compatibility against.
const (
	Version = "0.8.0"
	Engine  = "0.9.0"
)

// Server holds the runtime limits read from <dataDir>/server.json.
type Server struct {
	MaxGames        int    `json:"maxGames"`
	TTLHours        int    `json:"ttl"`
	MaxGameSizeMB   int    `json:"maxGameSizeMB"`
	SnapshotUploads bool   `json:"snapshotUploads"`
	PasswordCreate  string `json:"passwordCreate"` // bcrypt hash, empty = open server

	Version string `json:"version"`
	Engine  string `json:"engine"`
}

// Load reads server.json from the data directory and stamps the
// build-time version info onto it. Missing file falls back to
// defaults so a fresh data dir works out of the box.
func Load(dataDir string) (*Server, error) {
	s := &Server{
		MaxGames:      16,
		TTLHours:      48,
		MaxGameSizeMB: 4,
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "server.json"))
	if err == nil {
		if err := json.Unmarshal(data, s); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	s.Version = Version
	s.Engine = Engine
	return s, nil
}

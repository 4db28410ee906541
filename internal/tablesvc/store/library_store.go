package store

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

var (
	assetFullPattern = regexp.MustCompile(`^(.*)\.([0-9]+)x([0-9]+)x([0-9]+)\.([a-fA-F0-9]{6})\.[a-zA-Z0-9]+$`)
	assetSizePattern = regexp.MustCompile(`^(.*)\.([0-9]+)x([0-9]+)x([0-9]+)\.[a-zA-Z0-9]+$`)
	assetNamePattern = regexp.MustCompile(`^(.*)\.[a-zA-Z0-9]+$`)
)

const defaultAssetBG = "808080"

// GenerateLibrary rebuilds the asset catalog of a game by scanning its
// assets folder. The rebuild is idempotent: the same directory content
// always yields the same catalog, including asset ids.
func (s *GameStore) GenerateLibrary(game string) (*models.Library, error) {
	lib := &models.Library{
		Tile:    []models.Asset{},
		Token:   []models.Asset{},
		Overlay: []models.Asset{},
	}

	for _, assetType := range []string{models.LayerOverlay, models.LayerTile, models.LayerToken} {
		dir := filepath.Join(s.GameFolder(game), "assets", assetType)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		var assets []models.Asset
		var last *models.Asset
		for _, entry := range entries { // ReadDir sorts by filename
			if entry.IsDir() {
				continue
			}
			asset, side := FileToAsset(entry.Name())
			asset.Type = assetType
			asset.ID = assetID(assetType, asset.Alias, asset.Width, asset.Height, side)

			if last != nil && last.Alias == asset.Alias &&
				last.Width == asset.Width && last.Height == asset.Height {
				// another side of the same asset
				last.Media = append(last.Media, entry.Name())
				continue
			}
			if last != nil {
				assets = append(assets, *last)
			}
			last = &asset
		}
		if last != nil {
			assets = append(assets, *last)
		}

		switch assetType {
		case models.LayerTile:
			lib.Tile = assets
		case models.LayerToken:
			lib.Token = assets
		case models.LayerOverlay:
			lib.Overlay = assets
		}
	}

	return lib, nil
}

// FileToAsset parses an asset filename like chest.2x2x1.ff0000.png
// into asset metadata plus the encoded side number.
func FileToAsset(filename string) (models.Asset, int) {
	asset := models.Asset{
		Media:  []string{filename},
		Width:  1,
		Height: 1,
		BG:     defaultAssetBG,
		Alias:  filename,
	}
	side := 1

	if m := assetFullPattern.FindStringSubmatch(filename); m != nil {
		asset.Alias = m[1]
		asset.Width = atoi(m[2])
		asset.Height = atoi(m[3])
		side = atoi(m[4])
		asset.BG = m[5]
	} else if m := assetSizePattern.FindStringSubmatch(filename); m != nil {
		asset.Alias = m[1]
		asset.Width = atoi(m[2])
		asset.Height = atoi(m[3])
		side = atoi(m[4])
	} else if m := assetNamePattern.FindStringSubmatch(filename); m != nil {
		asset.Alias = m[1]
	}

	return asset, side
}

// assetID derives the stable 16-hex-char id of an asset. It only has
// to be unique within one game but must be reproducible across
// library rebuilds, so it hashes the identifying parts of the name.
func assetID(assetType, alias string, w, h, side int) string {
	base := fmt.Sprintf("%s/%s.%dx%dx%d", assetType, alias, w, h, side)
	sum := fmt.Sprintf("%x", md5.Sum([]byte(base)))
	return sum[len(sum)-16:]
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

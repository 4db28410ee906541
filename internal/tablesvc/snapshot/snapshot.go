// Package snapshot validates, installs and exports the zip archives
// games are seeded from and exported to. A snapshot carries the
// template, the piece state and the asset files of one game.
package snapshot

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/validate"
)

// maxEntrySize caps each file inside a snapshot zip.
const maxEntrySize = 512 * 1024

var assetEntryPattern = regexp.MustCompile(`^assets/(overlay|tile|token)/[a-zA-Z0-9_.-]*\.(svg|png|jpg)$`)

var mandatoryEntries = []string{"LICENSE.md", "state.json", "template.json"}

var optionalEntries = map[string]bool{
	"assets/":         true,
	"assets/tile/":    true,
	"assets/token/":   true,
	"assets/overlay/": true,
}

// runtimeFiles are game-folder files that never go into an exported
// snapshot.
var runtimeFiles = map[string]bool{
	".flock":            true,
	"snapshot.zip":      true,
	"invalid.svg":       true,
	"game.json":         true,
	"game.json.digest":  true,
	"state.json.digest": true,
}

// Validate checks a snapshot zip for structure, size and content. It
// returns a ValidationError with an itemized issue list when the zip
// is unacceptable.
func Validate(zipPath string, maxSizeMB int, engine string) error {
	maxSize := int64(maxSizeMB) * 1024 * 1024

	info, err := os.Stat(zipPath)
	if err != nil {
		return fmt.Errorf("snapshot not readable: %w", err)
	}
	if info.Size() > maxSize {
		// if the zip itself is too large, then so is its content
		return validate.Invalid("zip too large",
			fmt.Sprintf("zip exceeds server maximum of %dMB", maxSizeMB))
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return validate.Invalid("validating snapshot failed", "invalid zip")
	}
	defer r.Close()

	var issues []string
	missing := map[string]bool{}
	for _, name := range mandatoryEntries {
		missing[name] = true
	}

	var total int64
	assetCount := 0
	for _, f := range r.File {
		name := f.Name
		switch {
		case missing[name]:
			delete(missing, name)
		case optionalEntries[name]:
			// just ignore
		case assetEntryPattern.MatchString(name):
			assetCount++
		default:
			issues = append(issues, "unexpected "+name)
		}
		if f.UncompressedSize64 > maxEntrySize {
			issues = append(issues, name+" exceeded 512kB")
		}
		total += int64(f.UncompressedSize64)
	}
	if assetCount == 0 {
		issues = append(issues, "no assets found in snapshot")
	}
	for _, name := range mandatoryEntries {
		if missing[name] {
			issues = append(issues, "missing "+name)
		}
	}
	if total > maxSize {
		issues = append(issues, fmt.Sprintf("total size exceeded server maximum of %dMB", maxSizeMB))
		return validate.Invalid("zip too large", issues...)
	}
	if len(issues) > 0 {
		return validate.Invalid("validating snapshot failed", issues...)
	}

	// zip is formally ok, now look into the individual files
	templateJSON, err := readEntry(&r.Reader, "template.json")
	if err != nil {
		return err
	}
	if _, err := validate.TemplateJSON(templateJSON, engine); err != nil {
		return err
	}
	stateJSON, err := readEntry(&r.Reader, "state.json")
	if err != nil {
		return err
	}
	if _, err := validate.StateJSON(stateJSON); err != nil {
		return err
	}
	return nil
}

// Install extracts a validated snapshot zip into a game folder.
func Install(zipPath, gameFolder string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("can't open snapshot %s: %w", zipPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(gameFolder, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(gameFolder)+string(os.PathSeparator)) {
			return fmt.Errorf("snapshot entry %s escapes game folder", f.Name)
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

// Export zips a game folder, minus its runtime files, into w. Entries
// are written in sorted order so identical folders produce identical
// archives.
func Export(gameFolder string, w io.Writer) error {
	var paths []string
	err := filepath.Walk(gameFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(gameFolder, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if runtimeFiles[rel] || saveSlotPattern.MatchString(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	zw := zip.NewWriter(w)
	for _, rel := range paths {
		entry, err := zw.Create(rel)
		if err != nil {
			return err
		}
		file, err := os.Open(filepath.Join(gameFolder, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, file)
		file.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}

var saveSlotPattern = regexp.MustCompile(`^state-[0-9]\.json$`)

func readEntry(r *zip.Reader, name string) ([]byte, error) {
	f, err := r.Open(name)
	if err != nil {
		return nil, fmt.Errorf("can't read %s from snapshot: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func extractEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

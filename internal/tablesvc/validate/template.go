package validate

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

// Grid dimension bounds (in cells) a template may declare.
const (
	MinTableGridSize = 16
	MaxTableGridSize = 128
)

// TemplateJSON parses and validates a template.json. The engine
// version of this server must satisfy the template's declared engine
// range.
func TemplateJSON(data []byte, engine string) (*models.Template, error) {
	var t models.Template
	if err := decodeStrict(data, &t); err != nil {
		return nil, err
	}

	if t.Engine == "" || !SemverSatisfies(engine, t.Engine) {
		return nil, Invalid("validating template.json failed",
			fmt.Sprintf("engine %s does not satisfy %s", engine, t.Engine))
	}

	var issues []string
	if t.Type != models.TypeGridSquare && t.Type != models.TypeGridHex {
		issues = append(issues, "type "+t.Type+" unknown")
	}
	if _, err := semver.NewVersion(t.Version); err != nil {
		issues = append(issues, "version "+t.Version+" is not a semver")
	}
	assertRange(&issues, "gridSize", t.GridSize, 16, 256)
	assertRange(&issues, "width", t.Width, MinTableGridSize, MaxTableGridSize)
	assertRange(&issues, "height", t.Height, MinTableGridSize, MaxTableGridSize)
	if len(t.Colors) < 1 {
		issues = append(issues, "colors must have at least 1 entry")
	}
	if len(issues) > 0 {
		return nil, Invalid("validating template.json failed", issues...)
	}
	return &t, nil
}

// SemverSatisfies reports whether version matches the given semver
// range, e.g. "^1.2.0".
func SemverSatisfies(version, spec string) bool {
	c, err := semver.NewConstraint(spec)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

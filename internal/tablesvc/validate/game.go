package validate

import (
	"regexp"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

var (
	gameNamePattern     = regexp.MustCompile(`^[A-Za-z0-9]{8,48}$`)
	templateNamePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,99}$`)
)

// GameJSON parses and validates a game creation payload.
func GameJSON(data []byte) (models.GameRequest, error) {
	var req models.GameRequest
	if err := decodeStrict(data, &req); err != nil {
		return req, err
	}
	return req, Game(req)
}

// Game checks a game creation request. Auth is verified elsewhere.
func Game(req models.GameRequest) error {
	var issues []string
	assertMatch(&issues, "name", req.Name, gameNamePattern)
	if req.Template != "" {
		assertMatch(&issues, "template", req.Template, templateNamePattern)
	}
	if len(issues) > 0 {
		return Invalid("validating game failed", issues...)
	}
	return nil
}

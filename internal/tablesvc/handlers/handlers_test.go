package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"golang.org/x/crypto/bcrypt"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/config"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/service"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/store"
)

const testTemplateJSON = `{
	"type": "grid-square", "version": "1.0.0", "engine": "^0.9.0",
	"gridSize": 64, "width": 32, "height": 32,
	"colors": [{"name": "red", "value": "#ff0000"}]
}`

var hexID = regexp.MustCompile(`^[0-9a-f]{16}$`)

// buildSnapshot assembles a minimal valid snapshot zip in memory.
func buildSnapshot(t *testing.T, stateJSON string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := map[string]string{
		"LICENSE.md":             "CC0 test assets",
		"template.json":          testTemplateJSON,
		"state.json":             stateJSON,
		"assets/token/chest.png": "png",
	}
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newTestServer spins up the full API with one installed template.
func newTestServer(t *testing.T, cfg *config.Server) *httptest.Server {
	t.Helper()

	dataDir := t.TempDir()
	templatesDir := t.TempDir()
	zipPath := filepath.Join(templatesDir, "Classic.zip")
	if err := os.WriteFile(zipPath, buildSnapshot(t, "[]"), 0644); err != nil {
		t.Fatal(err)
	}

	if cfg == nil {
		cfg = &config.Server{MaxGames: 16, TTLHours: 48, MaxGameSizeMB: 4, SnapshotUploads: true}
	}
	cfg.Version = config.Version
	cfg.Engine = config.Engine

	st := store.NewGameStore(dataDir)
	games := service.NewGameService(st, cfg, templatesDir)
	pieces := service.NewPieceService(st)

	r := chi.NewRouter()
	NewHandler(games, pieces).SetRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func createGame(t *testing.T, srv *httptest.Server, name string) models.Game {
	t.Helper()
	resp := doJSON(t, "POST", srv.URL+"/games", `{"name": "`+name+`", "template": "Classic"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create game: status %d", resp.StatusCode)
	}
	var game models.Game
	decode(t, resp, &game)
	return game
}

func TestGetServerInfo(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, "GET", srv.URL+"/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var info models.ServerInfo
	decode(t, resp, &info)
	if info.Version != config.Version || info.Engine != config.Engine {
		t.Errorf("info = %+v", info)
	}
	if info.OpenSlots != 16 {
		t.Errorf("openSlots = %d, want 16", info.OpenSlots)
	}
}

func TestGetTemplates(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, "GET", srv.URL+"/templates", "")
	var templates []string
	decode(t, resp, &templates)
	if len(templates) != 1 || templates[0] != "Classic" {
		t.Errorf("templates = %v", templates)
	}
}

func TestGameLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, "POST", srv.URL+"/games", `{"name": "room1test", "template": "Classic"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/games/room1test" {
		t.Errorf("Location = %q", loc)
	}
	var game models.Game
	decode(t, resp, &game)
	if !hexID.MatchString(game.ID) {
		t.Errorf("game id %q is not 16 hex chars", game.ID)
	}
	if len(game.Tables) != 1 || game.Tables[0].Template.GridSize != 64 {
		t.Errorf("game = %+v", game)
	}
	if game.Tables[0].Width != 32*64 {
		t.Errorf("table width = %d px, want %d", game.Tables[0].Width, 32*64)
	}

	// readable via GET, duplicate names conflict
	resp = doJSON(t, "GET", srv.URL+"/games/room1test", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get game: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/games", `{"name": "room1test", "template": "Classic"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create: status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateGameValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, "POST", srv.URL+"/games", `{"name": "x", "template": "Classic"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad name: status %d, want 400", resp.StatusCode)
	}
	var body ErrorResponse
	decode(t, resp, &body)
	if body.Error == "" || len(body.Issues) == 0 {
		t.Errorf("error body = %+v", body)
	}

	resp = doJSON(t, "POST", srv.URL+"/games", `{"name": "room1test", "template": "Nope"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown template: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateGamePassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("opensesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, &config.Server{
		MaxGames: 16, TTLHours: 48, MaxGameSizeMB: 4,
		PasswordCreate: string(hash),
	})

	resp := doJSON(t, "POST", srv.URL+"/games", `{"name": "room1test", "template": "Classic"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no auth: status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/games", `{"name": "room1test", "template": "Classic", "auth": "opensesame"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("with auth: status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGameSlotsExhausted(t *testing.T) {
	srv := newTestServer(t, &config.Server{MaxGames: 1, TTLHours: 48, MaxGameSizeMB: 4})
	createGame(t, srv, "room1test")

	resp := doJSON(t, "POST", srv.URL+"/games", `{"name": "room2test", "template": "Classic"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("full server: status %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownGameIs404(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/games/nosuchgame", "/games/nosuchgame/state", "/games/nosuchgame/pieces/0123456789abcdef"} {
		resp := doJSON(t, "GET", srv.URL+path, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: status %d, want 404", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestStateDigestCycle(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")

	head := func() string {
		t.Helper()
		resp, err := http.Head(srv.URL + "/games/room1test/state")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("HEAD state: status %d", resp.StatusCode)
		}
		if resp.Header.Get("Servertime") == "" {
			t.Error("Servertime header missing")
		}
		return resp.Header.Get("Digest")
	}

	before := head()
	if !strings.HasPrefix(before, "crc32:") {
		t.Fatalf("digest = %q", before)
	}

	resp := doJSON(t, "POST", srv.URL+"/games/room1test/pieces",
		`{"layer": "token", "asset": "abc123", "width": 1, "height": 1, "x": 64, "y": 64, "z": 1, "side": 0, "color": 0}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create piece: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	after := head()
	if before == after {
		t.Error("digest unchanged after piece create")
	}

	// GET serves the exact bytes the digest was computed over
	resp = doJSON(t, "GET", srv.URL+"/games/room1test/state", "")
	if got := resp.Header.Get("Digest"); got != after {
		t.Errorf("GET digest %q, HEAD digest %q", got, after)
	}
	var pieces []models.Piece
	decode(t, resp, &pieces)
	if len(pieces) != 1 {
		t.Errorf("state has %d pieces, want 1", len(pieces))
	}
}

func TestPieceLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")
	base := srv.URL + "/games/room1test"

	resp := doJSON(t, "POST", base+"/pieces",
		`{"layer": "token", "asset": "abc123", "width": 1, "height": 1, "x": 64, "y": 64, "z": 1, "side": 0, "color": 0}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var piece models.Piece
	decode(t, resp, &piece)
	if !hexID.MatchString(piece.ID) {
		t.Fatalf("piece id %q is not 16 hex chars", piece.ID)
	}

	// out-of-table moves are clamped, not rejected
	resp = doJSON(t, "PATCH", base+"/pieces/"+piece.ID, `{"x": 999999}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status %d", resp.StatusCode)
	}
	var patched models.Piece
	decode(t, resp, &patched)
	if patched.X != (32-1)*64 {
		t.Errorf("x = %d, want %d", patched.X, (32-1)*64)
	}
	if patched.Y != 64 || patched.Layer != models.LayerToken {
		t.Errorf("untouched fields lost: %+v", patched)
	}

	resp = doJSON(t, "GET", base+"/pieces/"+piece.ID, "")
	var got models.Piece
	decode(t, resp, &got)
	if got.X != patched.X {
		t.Errorf("persisted x = %d", got.X)
	}

	resp = doJSON(t, "DELETE", base+"/pieces/"+piece.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", base+"/pieces/"+piece.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "DELETE", base+"/pieces/"+piece.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPieceClientChosenIDConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")

	payload := `{"id": "00000000000000aa", "layer": "token", "asset": "abc123",
		"width": 1, "height": 1, "x": 64, "y": 64, "z": 1, "side": 0, "color": 0}`
	resp := doJSON(t, "POST", srv.URL+"/games/room1test/pieces", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/games/room1test/pieces", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second create: status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPieceValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")

	resp := doJSON(t, "POST", srv.URL+"/games/room1test/pieces", `{"layer": "token", "foo": 1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d, want 400", resp.StatusCode)
	}
	var body ErrorResponse
	decode(t, resp, &body)
	if !strings.Contains(body.Error, "foo unknown") {
		t.Errorf("error = %+v", body)
	}

	// full pieces keep hard ranges; only sparse updates get clamped
	resp = doJSON(t, "POST", srv.URL+"/games/room1test/pieces",
		`{"layer": "token", "asset": "abc123", "width": 1, "height": 1, "x": 999999, "y": 64, "z": 1, "side": 0, "color": 0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range create: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReplaceStateAndSaves(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")
	base := srv.URL + "/games/room1test"

	newState := `[{"id": "00000000000000aa", "layer": "token", "asset": "abc123",
		"width": 1, "height": 1, "x": 0, "y": 0, "z": 1, "side": 0, "color": 0}]`
	resp := doJSON(t, "PUT", base+"/state", newState)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put state: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", base+"/state", "")
	var pieces []models.Piece
	decode(t, resp, &pieces)
	if len(pieces) != 1 || pieces[0].ID != "00000000000000aa" {
		t.Errorf("state = %+v", pieces)
	}

	// save slot 0 still holds the pristine install state
	resp = doJSON(t, "GET", base+"/state/save/0", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get save: status %d", resp.StatusCode)
	}
	var initial []models.Piece
	decode(t, resp, &initial)
	if len(initial) != 0 {
		t.Errorf("save 0 = %+v, want empty", initial)
	}

	resp = doJSON(t, "GET", base+"/state/save/7", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unwritten save: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// saving captures the live state into a slot
	resp = doJSON(t, "POST", base+"/state/save/1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("post save: status %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", base+"/state/save/1", "")
	var saved []models.Piece
	decode(t, resp, &saved)
	if len(saved) != 1 || saved[0].ID != "00000000000000aa" {
		t.Errorf("save 1 = %+v", saved)
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")
	base := srv.URL + "/games/room1test"

	resp := doJSON(t, "GET", base+"/snapshot", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	exported := new(bytes.Buffer)
	if _, err := exported.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	zr, err := zip.NewReader(bytes.NewReader(exported.Bytes()), int64(exported.Len()))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"LICENSE.md", "template.json", "state.json", "assets/token/chest.png"} {
		if !names[want] {
			t.Errorf("%s missing from export, got %v", want, names)
		}
	}
	if names["game.json"] || names[".flock"] {
		t.Errorf("runtime files leaked into export: %v", names)
	}
}

func TestPostSnapshotReseedsGame(t *testing.T) {
	srv := newTestServer(t, nil)
	original := createGame(t, srv, "room1test")

	seeded := buildSnapshot(t, `[{"id": "00000000000000bb", "layer": "token", "asset": "abc123",
		"width": 1, "height": 1, "x": 0, "y": 0, "z": 1, "side": 0, "color": 0}]`)
	req, err := http.NewRequest("POST", srv.URL+"/games/room1test/snapshot", bytes.NewReader(seeded))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/zip")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import: status %d", resp.StatusCode)
	}
	var pieces []models.Piece
	decode(t, resp, &pieces)
	if len(pieces) != 1 || pieces[0].ID != "00000000000000bb" {
		t.Errorf("state after import = %+v", pieces)
	}

	// game identity survives the re-seed
	resp = doJSON(t, "GET", srv.URL+"/games/room1test", "")
	var game models.Game
	decode(t, resp, &game)
	if game.ID != original.ID {
		t.Errorf("game id changed: %s -> %s", original.ID, game.ID)
	}
}

func TestCreateGameFromUpload(t *testing.T) {
	srv := newTestServer(t, nil)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	if err := mw.WriteField("name", "uploadroom1"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("snapshot", "mygame.zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(buildSnapshot(t, "[]")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req, err := http.NewRequest("POST", srv.URL+"/games", &form)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload create: status %d", resp.StatusCode)
	}
}

func TestUploadDisabled(t *testing.T) {
	srv := newTestServer(t, &config.Server{MaxGames: 16, TTLHours: 48, MaxGameSizeMB: 4, SnapshotUploads: false})

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	mw.WriteField("name", "uploadroom1")
	fw, _ := mw.CreateFormFile("snapshot", "mygame.zip")
	fw.Write(buildSnapshot(t, "[]"))
	mw.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/games", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("upload on locked server: status %d, want 400", resp.StatusCode)
	}
}

func TestConcurrentPieceCreates(t *testing.T) {
	srv := newTestServer(t, nil)
	createGame(t, srv, "room1test")

	const workers = 8
	done := make(chan int, workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			payload := fmt.Sprintf(`{"layer": "token", "asset": "abc123", "width": 1, "height": 1,
				"x": %d, "y": 64, "z": 1, "side": 0, "color": 0}`, n*64)
			resp, err := http.Post(srv.URL+"/games/room1test/pieces", "application/json", strings.NewReader(payload))
			if err != nil {
				done <- 0
				return
			}
			resp.Body.Close()
			done <- resp.StatusCode
		}(i)
	}
	for i := 0; i < workers; i++ {
		if code := <-done; code != http.StatusCreated {
			t.Errorf("concurrent create: status %d", code)
		}
	}

	resp := doJSON(t, "GET", srv.URL+"/games/room1test/state", "")
	var pieces []models.Piece
	decode(t, resp, &pieces)
	if len(pieces) != workers {
		t.Errorf("state has %d pieces, want %d", len(pieces), workers)
	}
}

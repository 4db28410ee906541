package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/service"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/store"
	"github.com/ludusleonis/tabletop-services/internal/tablesvc/validate"
)

// maxBodyBytes caps JSON request bodies. Snapshot uploads have their
// own limit from server.json.
const maxBodyBytes = 1024 * 1024

type Handler struct {
	games  *service.GameService
	pieces *service.PieceService
}

func NewHandler(games *service.GameService, pieces *service.PieceService) *Handler {
	return &Handler{games: games, pieces: pieces}
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error  string   `json:"_error"`
	Issues []string `json:"_issues,omitempty"`
}

func (h *Handler) reply(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Errorf("unable to encode reply: %v", err)
		}
	}
}

// replyRaw sends pre-serialized JSON (e.g. state bytes straight from
// disk) so the digest always matches the body byte-for-byte.
func (h *Handler) replyRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Errorf("unable to write reply: %v", err)
	}
}

// replyError maps the error taxonomy onto HTTP status codes.
func (h *Handler) replyError(w http.ResponseWriter, err error) {
	var verr *validate.ValidationError

	switch {
	case errors.As(err, &verr):
		h.reply(w, http.StatusBadRequest, ErrorResponse{Error: verr.Msg, Issues: verr.Issues})
	case errors.Is(err, store.ErrNotFound):
		h.reply(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrConflict):
		h.reply(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAuthRequired):
		h.reply(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNoSlots):
		h.reply(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		log.Errorf("internal error: %v", err)
		h.reply(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func setStateHeaders(w http.ResponseWriter, digest string) {
	w.Header().Set("Digest", digest)
	w.Header().Set("Servertime", strconv.FormatInt(time.Now().Unix(), 10))
}

// --- server / templates --------------------------------------------------

func (h *Handler) GetServerInfo(w http.ResponseWriter, r *http.Request) {
	h.reply(w, http.StatusOK, h.games.ServerInfo())
}

func (h *Handler) GetTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.games.Templates()
	if err != nil {
		h.replyError(w, err)
		return
	}
	h.reply(w, http.StatusOK, templates)
}

// --- games ---------------------------------------------------------------

// CreateGame accepts either plain JSON or a multipart form carrying a
// snapshot zip upload next to the JSON fields.
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	req, uploadedZip, cleanup, err := h.parseCreateGame(r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		h.replyError(w, err)
		return
	}

	game, err := h.games.Create(req, uploadedZip)
	if err != nil {
		h.replyError(w, err)
		return
	}

	w.Header().Set("Location", "/games/"+game.Name)
	h.reply(w, http.StatusCreated, game)
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.Game(chi.URLParam(r, "gid"))
	if err != nil {
		h.replyError(w, err)
		return
	}
	h.reply(w, http.StatusOK, game)
}

// --- state ---------------------------------------------------------------

func (h *Handler) HeadState(w http.ResponseWriter, r *http.Request) {
	digest, err := h.games.Digest(chi.URLParam(r, "gid"))
	if err != nil {
		h.replyError(w, err)
		return
	}
	setStateHeaders(w, digest)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	body, digest, err := h.games.State(chi.URLParam(r, "gid"))
	if err != nil {
		h.replyError(w, err)
		return
	}
	setStateHeaders(w, digest)
	h.replyRaw(w, http.StatusOK, body)
}

func (h *Handler) GetStateSave(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		h.replyError(w, fmt.Errorf("%w: save slot", store.ErrNotFound))
		return
	}
	body, digest, err := h.games.Save(chi.URLParam(r, "gid"), slot)
	if err != nil {
		h.replyError(w, err)
		return
	}
	setStateHeaders(w, digest)
	h.replyRaw(w, http.StatusOK, body)
}

func (h *Handler) PostStateSave(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		h.replyError(w, fmt.Errorf("%w: save slot", store.ErrNotFound))
		return
	}
	if err := h.games.SaveState(chi.URLParam(r, "gid"), slot); err != nil {
		h.replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReplaceState(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.replyError(w, err)
		return
	}
	pieces, err := h.games.ReplaceState(chi.URLParam(r, "gid"), body)
	if err != nil {
		h.replyError(w, err)
		return
	}
	h.reply(w, http.StatusOK, pieces)
}

// --- pieces --------------------------------------------------------------

func (h *Handler) CreatePiece(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.replyError(w, err)
		return
	}
	piece, err := h.pieces.Create(chi.URLParam(r, "gid"), body)
	if err != nil {
		h.replyError(w, err)
		return
	}
	h.reply(w, http.StatusCreated, piece)
}

func (h *Handler) GetPiece(w http.ResponseWriter, r *http.Request) {
	piece, err := h.pieces.Get(chi.URLParam(r, "gid"), chi.URLParam(r, "pid"))
	if err != nil {
		h.replyError(w, err)
		return
	}
	h.reply(w, http.StatusOK, piece)
}

func (h *Handler) UpdatePiece(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.replyError(w, err)
		return
	}
	piece, err := h.pieces.Update(chi.URLParam(r, "gid"), chi.URLParam(r, "pid"), body)
	if err != nil {
		h.replyError(w, err)
		return
	}
	h.reply(w, http.StatusOK, piece)
}

func (h *Handler) DeletePiece(w http.ResponseWriter, r *http.Request) {
	if err := h.pieces.Delete(chi.URLParam(r, "gid"), chi.URLParam(r, "pid")); err != nil {
		h.replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- snapshots -----------------------------------------------------------

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	gid := chi.URLParam(r, "gid")
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		"attachment; filename="+gid+"."+time.Now().Format("2006-01-02-1504")+".zip")
	if err := h.games.ExportSnapshot(gid, w); err != nil {
		// headers are out already, all we can do is log
		log.Errorf("snapshot export for %s failed: %v", gid, err)
	}
}

func (h *Handler) PostSnapshot(w http.ResponseWriter, r *http.Request) {
	zipPath, cleanup, err := h.saveUpload(r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		h.replyError(w, err)
		return
	}
	gid := chi.URLParam(r, "gid")
	if err := h.games.ImportSnapshot(gid, zipPath); err != nil {
		h.replyError(w, err)
		return
	}
	body, digest, err := h.games.State(gid)
	if err != nil {
		h.replyError(w, err)
		return
	}
	setStateHeaders(w, digest)
	h.replyRaw(w, http.StatusOK, body)
}

// --- upload helpers ------------------------------------------------------

// parseCreateGame splits a game creation request into its JSON part
// and, for multipart requests, the temp path of the uploaded zip.
func (h *Handler) parseCreateGame(r *http.Request) (models.GameRequest, string, func(), error) {
	var req models.GameRequest

	if mt := r.Header.Get("Content-Type"); strings.HasPrefix(mt, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes * 32); err != nil {
			return req, "", nil, validate.Invalid("invalid multipart form")
		}
		req.Name = r.FormValue("name")
		req.Template = r.FormValue("template")
		req.Auth = r.FormValue("auth")
		if r.MultipartForm == nil || len(r.MultipartForm.File["snapshot"]) == 0 {
			return req, "", nil, nil
		}
		zipPath, cleanup, err := h.saveUpload(r)
		return req, zipPath, cleanup, err
	}

	body, err := readBody(r)
	if err != nil {
		return req, "", nil, err
	}
	req, err = validate.GameJSON(body)
	return req, "", nil, err
}

// saveUpload stores the uploaded snapshot (multipart field "snapshot",
// or the raw body for application/zip) in a temp file.
func (h *Handler) saveUpload(r *http.Request) (string, func(), error) {
	tmp, err := os.CreateTemp("", "snapshot-*.zip")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	var src io.Reader
	if file, _, ferr := r.FormFile("snapshot"); ferr == nil {
		defer file.Close()
		src = file
	} else {
		src = r.Body
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return tmp.Name(), cleanup, err
	}
	return tmp.Name(), cleanup, tmp.Close()
}

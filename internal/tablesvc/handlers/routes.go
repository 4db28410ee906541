package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/store"
)

// SetRoutes wires the REST surface. All game-scoped routes 404 before
// touching anything when the game folder does not exist.
func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Get("/", h.GetServerInfo)
	r.Get("/templates", h.GetTemplates)
	r.Post("/games", h.CreateGame)

	r.Route("/games/{gid}", func(r chi.Router) {
		r.Use(h.requireGame)

		r.Get("/", h.GetGame)
		r.Head("/state", h.HeadState)
		r.Get("/state", h.GetState)
		r.Put("/state", h.ReplaceState)
		r.Get("/state/save/{slot}", h.GetStateSave)
		r.Post("/state/save/{slot}", h.PostStateSave)

		r.Post("/pieces", h.CreatePiece)
		r.Get("/pieces/{pid}", h.GetPiece)
		r.Put("/pieces/{pid}", h.UpdatePiece)
		r.Patch("/pieces/{pid}", h.UpdatePiece)
		r.Delete("/pieces/{pid}", h.DeletePiece)

		r.Get("/snapshot", h.GetSnapshot)
		r.Post("/snapshot", h.PostSnapshot)
	})
}

func (h *Handler) requireGame(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gid := chi.URLParam(r, "gid")
		if !h.games.Exists(gid) {
			h.replyError(w, store.ErrNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

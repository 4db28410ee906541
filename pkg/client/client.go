// Package client implements the table-side of the synchronization
// protocol: a thin REST client plus the polling reconciliation loop
// that keeps a local piece cache converged with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
)

// Client talks to one tabletop server.
type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx server reply.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Status, e.Message)
}

// StateDigest probes the current state digest without downloading the
// state. This is the cheap "has anything changed" call polling relies
// on.
func (c *Client) StateDigest(ctx context.Context, game string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base+"/games/"+game+"/state", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode}
	}
	return resp.Header.Get("Digest"), nil
}

// State fetches the full piece state plus its digest and the server
// clock, used to translate piece expiries into local time.
func (c *Client) State(ctx context.Context, game string) ([]models.Piece, string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/games/"+game+"/state", nil)
	if err != nil {
		return nil, "", 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", 0, apiError(resp)
	}

	var pieces []models.Piece
	if err := json.NewDecoder(resp.Body).Decode(&pieces); err != nil {
		return nil, "", 0, err
	}
	servertime, _ := strconv.ParseInt(resp.Header.Get("Servertime"), 10, 64)
	return pieces, resp.Header.Get("Digest"), servertime, nil
}

// Game fetches the game metadata, including template and library.
func (c *Client) Game(ctx context.Context, game string) (*models.Game, error) {
	var g models.Game
	if err := c.getJSON(ctx, "/games/"+game, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreatePiece posts a new piece and returns it with its server id.
func (c *Client) CreatePiece(ctx context.Context, game string, piece models.PiecePatch) (models.Piece, error) {
	var created models.Piece
	err := c.sendJSON(ctx, http.MethodPost, "/games/"+game+"/pieces", piece, http.StatusCreated, &created)
	return created, err
}

// PatchPiece sends a sparse piece update.
func (c *Client) PatchPiece(ctx context.Context, game, pieceID string, patch models.PiecePatch) (models.Piece, error) {
	var updated models.Piece
	err := c.sendJSON(ctx, http.MethodPatch, "/games/"+game+"/pieces/"+pieceID, patch, http.StatusOK, &updated)
	return updated, err
}

// DeletePiece tombstones a piece.
func (c *Client) DeletePiece(ctx context.Context, game, pieceID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/games/"+game+"/pieces/"+pieceID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body interface{}, want int, v interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return apiError(resp)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func apiError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"_error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Error
	}
	return apiErr
}

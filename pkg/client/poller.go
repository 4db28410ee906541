package client

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ludusleonis/tabletop-services/internal/tablesvc/models"
	"github.com/ludusleonis/tabletop-services/pkg/geometry"
)

// Poller states.
type pollState int

const (
	stateIdle pollState = iota
	stateFetching
)

// DefaultPollInterval is the cadence of the digest probe.
const DefaultPollInterval = 2 * time.Second

// Poller keeps a local piece cache for one game's table in sync with
// the server by periodically probing the state digest and re-fetching
// the full state only when it changed. Local optimistic edits live in
// an overlay that an in-flight fetch can not clobber.
type Poller struct {
	client   *Client
	game     string
	interval time.Duration

	// OnUpdate, if set, is called after every applied fetch with the
	// reconciled piece list.
	OnUpdate func([]models.Piece)

	mu          sync.Mutex
	state       pollState
	digest      string
	template    *models.Template
	library     *models.Library
	pieces      []models.Piece
	meta        map[string]geometry.Meta
	overlay     map[string]models.PiecePatch
	generation  uint64
	serverDelta time.Duration
}

func NewPoller(c *Client, game string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   c,
		game:     game,
		interval: interval,
		digest:   "crc32:0",
		meta:     map[string]geometry.Meta{},
		overlay:  map[string]models.PiecePatch{},
	}
}

// Run drives the poll loop until ctx is cancelled. It loads the game
// metadata first; without template and library no geometry can be
// derived.
func (p *Poller) Run(ctx context.Context) error {
	game, err := p.client.Game(ctx, p.game)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if len(game.Tables) > 0 {
		p.template = game.Tables[0].Template
		p.library = game.Tables[0].Library
	}
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one Idle-state digest probe. A new poll is never issued
// while a previous fetch is still outstanding.
func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if p.state == stateFetching {
		p.mu.Unlock()
		return
	}
	known := p.digest
	gen := p.generation
	p.mu.Unlock()

	digest, err := p.client.StateDigest(ctx, p.game)
	if err != nil {
		log.Debugf("digest probe for %s failed: %v", p.game, err)
		return
	}
	if digest == known {
		return // still current
	}

	p.mu.Lock()
	if p.generation != gen || p.state == stateFetching {
		p.mu.Unlock()
		return
	}
	p.state = stateFetching
	p.mu.Unlock()

	p.fetch(ctx, gen)
}

// fetch downloads the full state and reconciles it into the cache.
// By the time the state arrives it may already reflect writes newer
// than the digest that triggered the fetch; that only makes the cache
// more current, never less.
func (p *Poller) fetch(ctx context.Context, gen uint64) {
	pieces, digest, servertime, err := p.client.State(ctx, p.game)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = stateIdle

	if err != nil {
		log.Debugf("state fetch for %s failed: %v", p.game, err)
		return
	}
	if p.generation != gen {
		return // superseded (table switched); discard, no partial application
	}

	if servertime > 0 {
		p.serverDelta = time.Until(time.Unix(servertime, 0))
	}
	p.applyLocked(pieces, digest)
}

// applyLocked replaces the piece cache, recomputes geometry metadata
// and re-applies the optimistic overlay. Overlay entries are applied
// after the authoritative state lands, so a fetch that started before
// a local edit began can not clobber it.
func (p *Poller) applyLocked(pieces []models.Piece, digest string) {
	now := time.Now()
	kept := pieces[:0]
	meta := make(map[string]geometry.Meta, len(pieces))

	for _, piece := range pieces {
		if patch, ok := p.overlay[piece.ID]; ok {
			piece = patch.Apply(piece)
		}
		m := geometry.PieceMeta(&piece, p.template, p.library, p.serverDelta)
		if !m.Expires.IsZero() && !m.Expires.After(now) {
			continue // expired pieces are dropped client-side
		}
		meta[piece.ID] = m
		kept = append(kept, piece)
	}

	p.pieces = kept
	p.meta = meta
	p.digest = digest

	if p.OnUpdate != nil {
		p.OnUpdate(p.piecesLocked())
	}
}

// Pieces returns a copy of the reconciled piece cache.
func (p *Poller) Pieces() []models.Piece {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.piecesLocked()
}

func (p *Poller) piecesLocked() []models.Piece {
	out := make([]models.Piece, len(p.pieces))
	copy(out, p.pieces)
	return out
}

// Meta returns the derived render metadata of a cached piece.
func (p *Poller) Meta(pieceID string) (geometry.Meta, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.meta[pieceID]
	return m, ok
}

// Digest returns the digest of the last applied state.
func (p *Poller) Digest() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.digest
}

// SetLocalEdit records an optimistic local edit (e.g. a piece being
// dragged). It is applied over every fetched state until cleared.
func (p *Poller) SetLocalEdit(pieceID string, patch models.PiecePatch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlay[pieceID] = patch
}

// ClearLocalEdit drops an optimistic edit once its authoritative
// update has round-tripped.
func (p *Poller) ClearLocalEdit(pieceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.overlay, pieceID)
}

// Invalidate discards the cache identity so the result of any
// in-flight fetch is thrown away and the next probe re-fetches.
func (p *Poller) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.digest = "crc32:0"
}

// Package session owns the editor settle cycle: every mutation runs under
// one mutex, then the synthetic decision nodes are refreshed, the edge set
// is re-derived, and the resulting graph replaces the previous one as a
// whole value. Undo and redo restore recorded snapshots verbatim without
// re-derivation.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/renvik/convograph/internal/canvas"
	"github.com/renvik/convograph/internal/logging"
	"github.com/renvik/convograph/internal/store"
	"github.com/renvik/convograph/internal/undo"
	"github.com/renvik/convograph/pkg/schema"
)

// DefaultLoadWait bounds how long LoadWithFallback waits for the remote
// document before falling back to the local cache.
const DefaultLoadWait = 3 * time.Second

// Options configures a Session. All fields are optional.
type Options struct {
	// HistoryLimit caps undo depth; zero means undo.DefaultLimit.
	HistoryLimit int
	// Store enables autosave and the local-cache load fallback.
	Store store.Store
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is a single editing session over one flow document. All state
// transitions go through the settle cycle; callers never hold a reference
// into the live graph.
type Session struct {
	id      string
	store   store.Store
	logger  *slog.Logger
	history *undo.History[*canvas.Graph]

	mu     sync.Mutex
	graph  *canvas.Graph
	loaded bool
}

// New creates an empty session for the given flow ID. A document must be
// loaded before edits apply.
func New(id string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:     id,
		store:  opts.Store,
		logger: logger,
		history: undo.New(opts.HistoryLimit,
			func(g *canvas.Graph) *canvas.Graph { return g.Clone() },
			func(a, b *canvas.Graph) bool { return reflect.DeepEqual(a, b) },
		),
	}
}

// ID returns the session's flow ID.
func (s *Session) ID() string { return s.id }

// Load installs the document as the session's state and records the first
// undo snapshot. Only the first Load wins: a result arriving after the
// session already loaded (a late remote fetch) is ignored, and Load
// reports whether the document was applied.
func (s *Session) Load(ctx context.Context, doc *schema.FlowDocument) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		s.logger.DebugContext(logging.WithSessionID(ctx, s.id), "ignoring late load")
		return false
	}

	s.graph = canvas.ToPresentation(doc)
	s.loaded = true
	s.history.Push(s.graph)

	s.logger.InfoContext(logging.WithIDs(ctx, s.graph.DocID, "", s.id), "document loaded",
		slog.String("name", s.graph.Meta.Name),
		slog.Int("nodes", len(s.graph.Nodes)),
	)
	return true
}

// LoadWithFallback fetches the document remotely, waiting at most wait
// (DefaultLoadWait when zero). On timeout or fetch error it falls back to
// the local cache; the remote fetch keeps running and its late result is
// discarded by the load-once guard.
func (s *Session) LoadWithFallback(ctx context.Context, fetch func(context.Context) (*schema.FlowDocument, error), wait time.Duration) error {
	if wait <= 0 {
		wait = DefaultLoadWait
	}

	type result struct {
		doc *schema.FlowDocument
		err error
	}
	ch := make(chan result, 1)
	go func() {
		doc, err := fetch(ctx)
		ch <- result{doc, err}
		if doc != nil {
			s.Load(ctx, doc)
		}
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err == nil {
			if !s.loadedNow() {
				s.Load(ctx, r.doc)
			}
			return nil
		}
		s.logger.WarnContext(ctx, "remote load failed, using local cache", slog.String("error", r.err.Error()))
	case <-timer.C:
		s.logger.WarnContext(ctx, "remote load timed out, using local cache", slog.Duration("waited", wait))
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.loadFromCache(ctx)
}

func (s *Session) loadedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Session) loadFromCache(ctx context.Context) error {
	if s.store == nil {
		return schema.NewError(schema.ErrCodeStore, "no local cache configured")
	}
	flow, err := s.store.GetFlow(ctx, s.id)
	if err != nil {
		return err
	}
	var doc schema.FlowDocument
	if err := json.Unmarshal(flow.Document, &doc); err != nil {
		return schema.NewError(schema.ErrCodeStore, "cached document is corrupt").WithCause(err)
	}
	s.Load(ctx, &doc)
	return nil
}

// Apply runs one mutation through the settle cycle. The mutation edits a
// private copy; on success the synthetic nodes are refreshed, edges are
// re-derived, the whole graph is swapped in, and an undo snapshot is
// recorded. On error the session state is untouched.
func (s *Session) Apply(ctx context.Context, mutate func(*canvas.Graph) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return schema.NewError(schema.ErrCodeConflict, "no document loaded")
	}

	next := s.graph.Clone()
	if err := mutate(next); err != nil {
		return err
	}

	next.Nodes = canvas.Synthesize(next.Nodes)
	if edges := canvas.DeriveEdges(next.Nodes); !canvas.EdgesEqual(next.Edges, edges) {
		next.Edges = edges
	}

	// The mutation callback saw next; re-clone so a retained pointer can
	// never alias the live graph.
	s.graph = next.Clone()
	if s.history.Push(s.graph) {
		s.autosave(ctx, s.graph)
	}
	return nil
}

// MoveDecisionNode persists a drag of a synthetic decision node: the new
// position writes through to the owning function's stored position so the
// next synthesis reuses it.
func (s *Session) MoveDecisionNode(ctx context.Context, decisionNodeID string, pos schema.Position) error {
	return s.Apply(ctx, func(g *canvas.Graph) error {
		if !canvas.CommitDecisionPosition(g, decisionNodeID, pos) {
			return schema.NewErrorf(schema.ErrCodeNotFound, "decision node %q not found", decisionNodeID).WithNode(decisionNodeID)
		}
		return nil
	})
}

// Undo restores the previous snapshot verbatim. Returns false when there
// is nothing to undo.
func (s *Session) Undo(ctx context.Context) (*canvas.Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.history.Undo()
	if !ok {
		return nil, false
	}
	s.graph = g
	s.logger.DebugContext(logging.WithSessionID(ctx, s.id), "undo", slog.Int("depth", s.history.Depth()))
	return g.Clone(), true
}

// Redo re-applies the most recently undone snapshot verbatim.
func (s *Session) Redo(ctx context.Context) (*canvas.Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.history.Redo()
	if !ok {
		return nil, false
	}
	s.graph = g
	s.logger.DebugContext(logging.WithSessionID(ctx, s.id), "redo", slog.Int("depth", s.history.Depth()))
	return g.Clone(), true
}

// CanUndo reports whether an undo step is available.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

// CanRedo reports whether a redo step is available.
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// Graph returns a deep copy of the current presentation graph.
func (s *Session) Graph() *canvas.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Clone()
}

// Document exports the current state as a canonical flow document.
func (s *Session) Document() *schema.FlowDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return nil
	}
	return canvas.ToDocument(s.graph)
}

// autosave writes the current document and a revision to the local cache.
// Failures are logged and never block the edit. Caller holds the mutex.
func (s *Session) autosave(ctx context.Context, g *canvas.Graph) {
	if s.store == nil {
		return
	}

	doc := canvas.ToDocument(g)
	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.ErrorContext(ctx, "autosave marshal failed", slog.String("error", err.Error()))
		return
	}

	flow := &store.Flow{
		ID:       s.id,
		Name:     doc.Meta.Name,
		Version:  doc.Meta.Version,
		Document: raw,
	}
	lctx := logging.WithIDs(ctx, doc.ID, "", s.id)
	if err := s.store.SaveFlow(ctx, flow); err != nil {
		s.logger.ErrorContext(lctx, "autosave failed", slog.String("error", err.Error()))
		return
	}
	if err := s.store.AppendRevision(ctx, &store.Revision{FlowID: s.id, Label: "autosave", Document: raw}); err != nil {
		s.logger.ErrorContext(lctx, "autosave revision failed", slog.String("error", err.Error()))
	}
}

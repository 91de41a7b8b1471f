package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renvik/convograph/internal/canvas"
	"github.com/renvik/convograph/internal/store"
	"github.com/renvik/convograph/pkg/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orderDocument() *schema.FlowDocument {
	return &schema.FlowDocument{
		Meta: schema.Meta{Name: "order", Version: "1"},
		Nodes: []schema.FlowNode{
			{
				ID:   "start",
				Kind: schema.NodeKindInitial,
				Data: schema.NodeData{
					Functions: []schema.FlowFunction{{
						Name: "collect_size",
						Decision: &schema.Decision{
							Action: "args.size",
							Conditions: []schema.DecisionCondition{
								{Operator: schema.OpGreaterEqual, Value: "12", NextNodeID: "large"},
							},
							DefaultNextNodeID: "small",
						},
					}},
				},
			},
			{ID: "large", Kind: schema.NodeKindStep, Data: schema.NodeData{
				Functions: []schema.FlowFunction{{Name: "confirm", NextNodeID: "done"}},
			}},
			{ID: "small", Kind: schema.NodeKindStep, Data: schema.NodeData{
				Functions: []schema.FlowFunction{{Name: "confirm", NextNodeID: "done"}},
			}},
			{ID: "done", Kind: schema.NodeKindEnd},
		},
	}
}

func loadedSession(t *testing.T) *Session {
	t.Helper()
	s := New("flow-1", Options{Logger: discardLogger()})
	require.True(t, s.Load(context.Background(), orderDocument()))
	return s
}

// --- Load ---

func TestLoad_FirstWins(t *testing.T) {
	s := New("flow-1", Options{Logger: discardLogger()})
	ctx := context.Background()

	require.True(t, s.Load(ctx, orderDocument()))

	late := orderDocument()
	late.Meta.Name = "stale-remote-copy"
	assert.False(t, s.Load(ctx, late), "late results are discarded")
	assert.Equal(t, "order", s.Graph().Meta.Name)
}

func TestLoad_SynthesizesDecisionNodes(t *testing.T) {
	s := loadedSession(t)
	g := s.Graph()

	dec := g.Node(canvas.DecisionNodeID("start", "collect_size"))
	require.NotNil(t, dec)
	assert.True(t, dec.Synthetic())
	assert.NotEmpty(t, g.Edges)
}

func TestApply_RequiresLoad(t *testing.T) {
	s := New("flow-1", Options{Logger: discardLogger()})
	err := s.Apply(context.Background(), func(g *canvas.Graph) error { return nil })
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, err.(*schema.FlowError).Code)
}

// --- Settle cycle ---

func TestApply_SettlesAfterMutation(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	err := s.Apply(ctx, func(g *canvas.Graph) error {
		return canvas.CreateDecision(g, "large", "confirm", "args.ok")
	})
	require.NoError(t, err)

	g := s.Graph()
	dec := g.Node(canvas.DecisionNodeID("large", "confirm"))
	require.NotNil(t, dec, "synthesis runs inside the settle cycle")

	found := false
	for _, e := range g.Edges {
		if e.Source == "large" && e.Target == dec.ID {
			found = true
		}
	}
	assert.True(t, found, "edges re-derive inside the settle cycle")
}

func TestApply_ErrorLeavesStateUntouched(t *testing.T) {
	s := loadedSession(t)
	before := s.Graph()

	err := s.Apply(context.Background(), func(g *canvas.Graph) error {
		g.Meta.Name = "half-mutated"
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, before, s.Graph())
	assert.False(t, s.CanUndo())
}

func TestApply_CallerCannotAliasLiveGraph(t *testing.T) {
	s := loadedSession(t)

	var leaked *canvas.Graph
	require.NoError(t, s.Apply(context.Background(), func(g *canvas.Graph) error {
		leaked = g
		return nil
	}))

	leaked.Meta.Name = "mutated-after-apply"
	assert.Equal(t, "order", s.Graph().Meta.Name)
}

// --- Undo / redo ---

func TestUndoRedo_RestoresVerbatim(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, func(g *canvas.Graph) error {
		return canvas.RenameNode(g, "done", "finished")
	}))
	require.True(t, s.CanUndo())

	g, ok := s.Undo(ctx)
	require.True(t, ok)
	assert.NotNil(t, g.Node("done"))
	assert.Nil(t, g.Node("finished"))

	g, ok = s.Redo(ctx)
	require.True(t, ok)
	assert.Nil(t, g.Node("done"))
	assert.NotNil(t, g.Node("finished"))
}

func TestUndo_NothingRecorded(t *testing.T) {
	s := loadedSession(t)
	_, ok := s.Undo(context.Background())
	assert.False(t, ok, "the load snapshot itself is not undoable")
}

func TestUndo_RestoreDoesNotRepush(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, func(g *canvas.Graph) error {
		return canvas.RenameNode(g, "done", "finished")
	}))

	_, ok := s.Undo(ctx)
	require.True(t, ok)
	require.True(t, s.CanRedo(), "restoring must not clear the redo branch")
}

// --- Decision node drag ---

func TestMoveDecisionNode_PersistsAcrossResettle(t *testing.T) {
	s := loadedSession(t)
	ctx := context.Background()
	decID := canvas.DecisionNodeID("start", "collect_size")

	require.NoError(t, s.MoveDecisionNode(ctx, decID, schema.Position{X: 400, Y: 250}))

	// An unrelated edit triggers another settle; the drag must survive it.
	require.NoError(t, s.Apply(ctx, func(g *canvas.Graph) error {
		return canvas.RenameNode(g, "done", "finished")
	}))

	dec := s.Graph().Node(decID)
	require.NotNil(t, dec)
	assert.Equal(t, schema.Position{X: 400, Y: 250}, dec.Position)
}

func TestMoveDecisionNode_UnknownID(t *testing.T) {
	s := loadedSession(t)
	err := s.MoveDecisionNode(context.Background(), "decision-nope-nope", schema.Position{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, err.(*schema.FlowError).Code)
}

// --- Export ---

func TestDocument_RoundTripsThroughSession(t *testing.T) {
	s := loadedSession(t)
	doc := s.Document()
	require.NotNil(t, doc)
	assert.Equal(t, "order", doc.Meta.Name)
	for _, n := range doc.Nodes {
		assert.NotEqual(t, canvas.KindDecision, n.Kind, "synthetic nodes never export")
	}
	assert.NotEmpty(t, doc.Edges, "edge cache repopulated on export")
}

// --- Local cache fallback ---

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApply_AutosavesToCache(t *testing.T) {
	st := newTestStore(t)
	s := New("flow-1", Options{Logger: discardLogger(), Store: st})
	ctx := context.Background()
	require.True(t, s.Load(ctx, orderDocument()))

	require.NoError(t, s.Apply(ctx, func(g *canvas.Graph) error {
		return canvas.RenameNode(g, "done", "finished")
	}))

	flow, err := st.GetFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Contains(t, string(flow.Document), `"finished"`)

	revs, err := st.ListRevisions(ctx, "flow-1", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, revs)
}

func TestLoadWithFallback_RemoteWins(t *testing.T) {
	s := New("flow-1", Options{Logger: discardLogger()})
	err := s.LoadWithFallback(context.Background(), func(context.Context) (*schema.FlowDocument, error) {
		return orderDocument(), nil
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "order", s.Graph().Meta.Name)
}

func TestLoadWithFallback_TimeoutUsesCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cached := New("flow-1", Options{Logger: discardLogger(), Store: st})
	require.True(t, cached.Load(ctx, orderDocument()))
	require.NoError(t, cached.Apply(ctx, func(g *canvas.Graph) error {
		return canvas.RenameNode(g, "done", "finished")
	}))

	s := New("flow-1", Options{Logger: discardLogger(), Store: st})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	err := s.LoadWithFallback(ctx, func(c context.Context) (*schema.FlowDocument, error) {
		<-block
		return nil, errors.New("too late")
	}, 20*time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, s.Graph().Node("finished"), "cache copy served")
}

func TestLoadWithFallback_NoCacheConfigured(t *testing.T) {
	s := New("flow-1", Options{Logger: discardLogger()})
	err := s.LoadWithFallback(context.Background(), func(c context.Context) (*schema.FlowDocument, error) {
		return nil, errors.New("remote down")
	}, 50*time.Millisecond)
	require.Error(t, err)
}

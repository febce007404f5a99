package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/id"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/storage/memory"
	"github.com/weftlabs/weft/internal/types"
)

const space = "test-space"

func newEvaluator(t *testing.T) (*Evaluator, *memory.Store) {
	t.Helper()
	s, err := memory.New()
	require.NoError(t, err)
	return NewEvaluator(s, 0), s
}

func storeTuple(t *testing.T, s *memory.Store, tp *types.Tuple) *types.Tuple {
	t.Helper()
	tp.SpaceID = space
	if tp.ID == "" {
		tp.ID = id.New()
	}
	require.NoError(t, s.StoreTuple(context.Background(), tp))
	return tp
}

func storePrincipal(t *testing.T, s *memory.Store, principalID string) {
	t.Helper()
	p := &types.Principal{ID: principalID, SpaceID: space}
	require.NoError(t, s.StorePrincipal(context.Background(), p))
}

func TestParseStrategy(t *testing.T) {
	for _, in := range []string{"direct", "graph", "set"} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, types.Strategy(in), got)
	}

	got, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyGraph, got)

	_, err = ParseStrategy("breadth")
	assert.ErrorIs(t, err, storage.ErrInvalidStrategy)
}

func TestCheckDirect(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	viewers := types.EntityEndpoint("group", "viewers")
	stored := storeTuple(t, s, &types.Tuple{Left: jane, Relation: "member", Right: viewers})

	res, err := e.Check(ctx, space, jane, "member", viewers, types.StrategyDirect, 0)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1, res.Cost)
	require.NotNil(t, res.Tuple)
	assert.Equal(t, stored.ID, res.Tuple.ID)
}

func TestCheckDirectMiss(t *testing.T) {
	e, _ := newEvaluator(t)

	res, err := e.Check(context.Background(), space,
		types.EntityEndpoint("user", "jane"), "member",
		types.EntityEndpoint("group", "viewers"), types.StrategyDirect, 0)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 1, res.Cost)
}

func TestCheckInvalidStrategy(t *testing.T) {
	e, _ := newEvaluator(t)

	_, err := e.Check(context.Background(), space,
		types.EntityEndpoint("user", "jane"), "member",
		types.EntityEndpoint("group", "viewers"), "breadth", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidStrategy)
}

func TestCheckGraphTwoHop(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: viewers})

	res, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyGraph, 100)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Positive(t, res.Cost)
	assert.LessOrEqual(t, res.Cost, 100)
	require.Len(t, res.Path, 2)

	// Chain shape: starts at the query left, ends at the query right, and
	// each link's relation matches the next link's strand.
	assert.True(t, res.Path[0].Left.Equal(jane))
	assert.True(t, res.Path[1].Right.Equal(viewers))
	assert.True(t, res.Path[0].Right.Equal(res.Path[1].Left))
	assert.Equal(t, res.Path[1].Strand, res.Path[0].Relation)
	assert.Equal(t, "parent", res.Path[1].Relation)
}

func TestCheckGraphThreeHop(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	staff := types.EntityEndpoint("group", "staff")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: staff})
	storeTuple(t, s, &types.Tuple{Strand: "parent", Left: staff, Relation: "parent", Right: viewers})

	res, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyGraph, 100)
	require.NoError(t, err)
	assert.True(t, res.Found)
	require.Len(t, res.Path, 3)
	for i := 0; i < len(res.Path)-1; i++ {
		assert.True(t, res.Path[i].Right.Equal(res.Path[i+1].Left))
		assert.Equal(t, res.Path[i+1].Strand, res.Path[i].Relation)
	}
}

func TestCheckGraphLeafStrandStopsComposition(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	// An empty strand on the link to viewers makes it a leaf: nothing
	// composes onto it.
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})
	storeTuple(t, s, &types.Tuple{Strand: "", Left: editors, Relation: "parent", Right: viewers})

	res, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyGraph, 100)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Positive(t, res.Cost)
}

func TestCheckGraphBudgetExhausted(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: viewers})

	res, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyGraph, 2)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Negative(t, res.Cost)
	assert.LessOrEqual(t, -res.Cost, 2)
}

func TestCheckSetOneIntermediate(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	t1 := storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})
	t2 := storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: viewers})

	res, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategySet, 100)
	require.NoError(t, err)
	assert.True(t, res.Found)
	require.NotNil(t, res.Tuple)
	assert.True(t, res.Tuple.Left.Equal(jane))
	assert.Equal(t, "parent", res.Tuple.Relation)
	assert.True(t, res.Tuple.Right.Equal(viewers))
	assert.Equal(t, t1.ID, res.Tuple.RidL)
	assert.Equal(t, t2.ID, res.Tuple.RidR)
	require.Len(t, res.Path, 2)
}

func TestCheckStrategyContainment(t *testing.T) {
	// Three hops: graph finds the answer, set and direct do not.
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	staff := types.EntityEndpoint("group", "staff")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: staff})
	storeTuple(t, s, &types.Tuple{Strand: "parent", Left: staff, Relation: "parent", Right: viewers})

	direct, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyDirect, 1000)
	require.NoError(t, err)
	assert.False(t, direct.Found)

	set, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategySet, 1000)
	require.NoError(t, err)
	assert.False(t, set.Found)

	graph, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyGraph, 1000)
	require.NoError(t, err)
	assert.True(t, graph.Found)
}

func TestCheckSanitizesPrincipalEndpoints(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Left: types.PrincipalEndpoint("jane"), Relation: "member", Right: viewers})

	// Principal form without the derived entity fields still matches.
	res, err := e.Check(ctx, space, types.Endpoint{PrincipalID: "jane"}, "member", viewers, types.StrategyDirect, 0)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1, res.Cost)
}

func TestCreateGraphStoresOnly(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})

	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: editors, Relation: "parent", Right: viewers,
	}, types.StrategyGraph, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cost)
	assert.Empty(t, res.Computed)
	assert.NotEmpty(t, res.Tuple.ID)

	// No materialization, so only the graph walk can answer.
	direct, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyDirect, 0)
	require.NoError(t, err)
	assert.False(t, direct.Found)
}

func TestCreateDirectMaterializesLeftExpansion(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	viewers := types.EntityEndpoint("group", "viewers")
	for k := 1; k <= 8; k++ {
		storeTuple(t, s, &types.Tuple{
			Strand: "member", Left: jane, Relation: "member",
			Right: types.EntityEndpoint("group", fmt.Sprintf("editors_%d", k)),
		})
	}

	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: types.EntityEndpoint("group", "editors_1"), Relation: "parent", Right: viewers,
	}, types.StrategyDirect, 1000)
	require.NoError(t, err)
	assert.Positive(t, res.Cost)
	require.Len(t, res.Computed, 1)
	assert.True(t, res.Computed[0].Left.Equal(jane))
	assert.Equal(t, "parent", res.Computed[0].Relation)
	assert.True(t, res.Computed[0].Right.Equal(viewers))
	assert.Equal(t, res.Tuple.ID, res.Computed[0].RidR)

	check, err := e.Check(ctx, space, jane, "parent", viewers, types.StrategyDirect, 0)
	require.NoError(t, err)
	assert.True(t, check.Found)
	assert.Equal(t, 1, check.Cost)
}

func TestCreateDirectMaterializesRightExpansion(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	jane := types.EntityEndpoint("user", "jane")
	// Existing downstream link whose strand matches the new relation.
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: viewers})

	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: jane, Relation: "member", Right: editors,
	}, types.StrategyDirect, 1000)
	require.NoError(t, err)
	require.Len(t, res.Computed, 1)
	assert.True(t, res.Computed[0].Left.Equal(jane))
	assert.Equal(t, "parent", res.Computed[0].Relation)
	assert.True(t, res.Computed[0].Right.Equal(viewers))
	assert.Equal(t, res.Tuple.ID, res.Computed[0].RidL)
}

func TestCreateSetRequiresPrincipalChains(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	storePrincipal(t, s, "bob")
	editors := types.EntityEndpoint("group", "editors")
	storeTuple(t, s, &types.Tuple{
		Strand: "member", Left: types.PrincipalEndpoint("jane"), Relation: "member", Right: editors,
	})
	storeTuple(t, s, &types.Tuple{
		Strand: "member", Left: types.EntityEndpoint("group", "other"), Relation: "member", Right: editors,
	})

	// Right endpoint is a principal, so the left expansion runs but keeps
	// only feeders rooted at a principal.
	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: editors, Relation: "grant", Right: types.PrincipalEndpoint("bob"),
	}, types.StrategySet, 1000)
	require.NoError(t, err)
	require.Len(t, res.Computed, 1)
	assert.True(t, res.Computed[0].Left.IsPrincipal())
	assert.Equal(t, "jane", res.Computed[0].Left.PrincipalID)
}

func TestCreateSetSkipsNonPrincipalRight(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})

	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: editors, Relation: "parent", Right: viewers,
	}, types.StrategySet, 1000)
	require.NoError(t, err)
	assert.Empty(t, res.Computed)
}

func TestCreateSetRightExpansionRequiresPrincipal(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	storePrincipal(t, s, "bob")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	// Two downstream links whose strand matches the new relation: one lands
	// on an entity, one on a principal.
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "parent", Right: viewers})
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: editors, Relation: "grant", Right: types.PrincipalEndpoint("bob")})

	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: types.PrincipalEndpoint("jane"), Relation: "member", Right: editors,
	}, types.StrategySet, 1000)
	require.NoError(t, err)

	// Only the composition landing on the principal is materialized; the
	// entity-right chain to viewers is skipped.
	require.Len(t, res.Computed, 1)
	assert.True(t, res.Computed[0].Right.IsPrincipal())
	assert.Equal(t, "bob", res.Computed[0].Right.PrincipalID)
	assert.Equal(t, "grant", res.Computed[0].Relation)
}

func TestCheckGraphWideFanIn(t *testing.T) {
	// A fan-in wider than any internal read granularity: every member must
	// be reachable, whatever the interplay of id and hash ordering.
	e, s := newEvaluator(t)
	ctx := context.Background()

	g := types.EntityEndpoint("group", "g")
	doc := types.EntityEndpoint("document", "d")
	const members = 300
	for k := 0; k < members; k++ {
		storeTuple(t, s, &types.Tuple{
			Strand: "member", Left: types.EntityEndpoint("user", fmt.Sprintf("u%03d", k)),
			Relation: "member", Right: g,
		})
	}
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: g, Relation: "viewer", Right: doc})

	for k := 0; k < members; k++ {
		u := types.EntityEndpoint("user", fmt.Sprintf("u%03d", k))
		res, err := e.Check(ctx, space, u, "viewer", doc, types.StrategyGraph, 1000)
		require.NoError(t, err)
		assert.True(t, res.Found, "member u%03d not reachable", k)
	}
}

func TestCreateBudgetExhaustedStoresPrimaryOnly(t *testing.T) {
	e, s := newEvaluator(t)
	ctx := context.Background()

	viewers := types.EntityEndpoint("group", "viewers")
	editors := types.EntityEndpoint("group", "editors")
	for k := 0; k < 8; k++ {
		storeTuple(t, s, &types.Tuple{
			Strand: "member", Left: types.EntityEndpoint("user", fmt.Sprintf("u%d", k)),
			Relation: "member", Right: editors,
		})
	}

	res, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: editors, Relation: "parent", Right: viewers,
	}, types.StrategyDirect, 2)
	require.NoError(t, err)
	assert.Negative(t, res.Cost)
	assert.Empty(t, res.Computed)

	// The primary tuple is stored even when the expansion is dropped.
	got, err := s.RetrieveTuple(ctx, space, res.Tuple.ID)
	require.NoError(t, err)
	assert.Equal(t, "parent", got.Relation)
}

func TestCreateIdempotentComposition(t *testing.T) {
	// Re-running the same create loses the composite race and swallows it.
	e, s := newEvaluator(t)
	ctx := context.Background()

	jane := types.EntityEndpoint("user", "jane")
	editors := types.EntityEndpoint("group", "editors")
	viewers := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{Strand: "member", Left: jane, Relation: "member", Right: editors})

	first, err := e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: editors, Relation: "parent", Right: viewers,
	}, types.StrategyDirect, 1000)
	require.NoError(t, err)
	require.Len(t, first.Computed, 1)

	// Same composite key, fresh id: the primary insert itself collides.
	_, err = e.Create(ctx, &types.Tuple{
		SpaceID: space, Strand: "member",
		Left: editors, Relation: "parent", Right: viewers,
	}, types.StrategyDirect, 1000)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestCreateInvalidStrategy(t *testing.T) {
	e, _ := newEvaluator(t)

	_, err := e.Create(context.Background(), &types.Tuple{
		SpaceID: space,
		Left:    types.EntityEndpoint("user", "jane"), Relation: "member",
		Right: types.EntityEndpoint("group", "viewers"),
	}, "breadth", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidStrategy)
}

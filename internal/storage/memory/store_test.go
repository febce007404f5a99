package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/id"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

const space = "test-space"

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	return s
}

func storePrincipal(t *testing.T, s *Store, principalID string) *types.Principal {
	t.Helper()
	p := &types.Principal{ID: principalID, SpaceID: space}
	require.NoError(t, s.StorePrincipal(context.Background(), p))
	return p
}

func TestPrincipalRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := &types.Principal{
		ID:      id.New(),
		SpaceID: space,
		Segment: "staff",
		Attrs:   map[string]any{"team": "core"},
	}
	require.NoError(t, s.StorePrincipal(ctx, p))
	assert.Equal(t, int64(0), p.Rev)

	got, err := s.RetrievePrincipal(ctx, space, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// Stores own their instances: mutating the returned copy must not leak.
	got.Attrs["team"] = "other"
	again, err := s.RetrievePrincipal(ctx, space, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "core", again.Attrs["team"])
}

func TestPrincipalRevisionGuard(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := storePrincipal(t, s, "alice")

	// Successive successful stores increment the revision.
	require.NoError(t, s.StorePrincipal(ctx, p))
	assert.Equal(t, int64(1), p.Rev)
	require.NoError(t, s.StorePrincipal(ctx, p))
	assert.Equal(t, int64(2), p.Rev)

	// Out-of-band mutation: a second writer advances the stored revision.
	stale := &types.Principal{ID: "alice", SpaceID: space, Rev: 0}
	err := s.StorePrincipal(ctx, stale)
	assert.ErrorIs(t, err, storage.ErrRevisionMismatch)
	// The caller's in-memory revision stays where it was.
	assert.Equal(t, int64(0), stale.Rev)
}

func TestPrincipalParent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "org")
	child := &types.Principal{ID: "member", SpaceID: space, ParentID: "org"}
	require.NoError(t, s.StorePrincipal(ctx, child))

	orphan := &types.Principal{ID: "lost", SpaceID: space, ParentID: "nope"}
	assert.ErrorIs(t, s.StorePrincipal(ctx, orphan), storage.ErrInvalidParentID)

	// A referenced parent cannot be discarded.
	_, err := s.DiscardPrincipal(ctx, space, "org")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)

	existed, err := s.DiscardPrincipal(ctx, space, "member")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.DiscardPrincipal(ctx, space, "org")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.DiscardPrincipal(ctx, space, "org")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestPrincipalSpaceIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "alice")
	_, err := s.RetrievePrincipal(ctx, "other-space", "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "alice")
	r := &types.Record{
		PrincipalID:  "alice",
		ResourceType: "doc",
		ResourceID:   "readme",
		SpaceID:      space,
		Attrs:        map[string]any{"access": "write"},
	}
	require.NoError(t, s.StoreRecord(ctx, r))

	got, err := s.RetrieveRecord(ctx, space, "alice", "doc", "readme")
	require.NoError(t, err)
	assert.Equal(t, "write", got.Attrs["access"])

	// Upsert overwrites attrs and bumps the revision.
	r.Attrs = map[string]any{"access": "read"}
	require.NoError(t, s.StoreRecord(ctx, r))
	assert.Equal(t, int64(1), r.Rev)

	got, err = s.RetrieveRecord(ctx, space, "alice", "doc", "readme")
	require.NoError(t, err)
	assert.Equal(t, "read", got.Attrs["access"])

	existed, err := s.DiscardRecord(ctx, space, "alice", "doc", "readme")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = s.DiscardRecord(ctx, space, "alice", "doc", "readme")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRecordRequiresPrincipal(t *testing.T) {
	s := newStore(t)
	r := &types.Record{PrincipalID: "ghost", ResourceType: "doc", ResourceID: "x", SpaceID: space}
	assert.ErrorIs(t, s.StoreRecord(context.Background(), r), storage.ErrInvalidKey)
}

func TestRecordListOrderingAndCursor(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "alice")
	for _, rid := range []string{"R0", "R1"} {
		require.NoError(t, s.StoreRecord(ctx, &types.Record{
			PrincipalID: "alice", ResourceType: "doc", ResourceID: rid, SpaceID: space,
		}))
	}

	// Descending by resource id.
	page1, err := s.ListRecordsByPrincipal(ctx, space, "alice", "doc", "", 1)
	require.NoError(t, err)
	require.Len(t, page1, 1)
	assert.Equal(t, "R1", page1[0].ResourceID)

	page2, err := s.ListRecordsByPrincipal(ctx, space, "alice", "doc", "R1", 1)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "R0", page2[0].ResourceID)

	page3, err := s.ListRecordsByPrincipal(ctx, space, "alice", "doc", "R0", 1)
	require.NoError(t, err)
	assert.Empty(t, page3)

	// Page size 1 walks the same set as one large call.
	all, err := s.ListRecordsByPrincipal(ctx, space, "alice", "doc", "", 100)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, all[0].ResourceID, page1[0].ResourceID)
	assert.Equal(t, all[1].ResourceID, page2[0].ResourceID)
}

func TestRecordListByResource(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "alice")
	storePrincipal(t, s, "bob")
	for _, pid := range []string{"alice", "bob"} {
		require.NoError(t, s.StoreRecord(ctx, &types.Record{
			PrincipalID: pid, ResourceType: "doc", ResourceID: "readme", SpaceID: space,
		}))
	}

	got, err := s.ListRecordsByResource(ctx, space, "doc", "readme", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].PrincipalID)
	assert.Equal(t, "alice", got[1].PrincipalID)

	got, err = s.ListRecordsByResource(ctx, space, "doc", "readme", "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].PrincipalID)
}

func storeTuple(t *testing.T, s *Store, tup *types.Tuple) *types.Tuple {
	t.Helper()
	if tup.ID == "" {
		tup.ID = id.New()
	}
	tup.SpaceID = space
	require.NoError(t, s.StoreTuple(context.Background(), tup))
	return tup
}

func TestTupleRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	tup := storeTuple(t, s, &types.Tuple{
		Strand:   "member",
		Left:     types.PrincipalEndpoint("jane"),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	})

	got, err := s.RetrieveTuple(ctx, space, tup.ID)
	require.NoError(t, err)
	assert.Equal(t, tup, got)
	// Sanitization holds after storage.
	assert.Equal(t, types.PrincipalEntityType, got.Left.Type)
	assert.Equal(t, "jane", got.Left.ID)
	assert.Equal(t, got.Left.Hash(), got.LHash)
}

func TestTupleCompositeUniqueness(t *testing.T) {
	s := newStore(t)

	storePrincipal(t, s, "jane")
	storeTuple(t, s, &types.Tuple{
		Strand:   "member",
		Left:     types.PrincipalEndpoint("jane"),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	})

	// Same composite, different id: AlreadyExists, never a silent duplicate
	// and never a revision error.
	dup := &types.Tuple{
		ID:       id.New(),
		SpaceID:  space,
		Strand:   "member",
		Left:     types.PrincipalEndpoint("jane"),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	}
	err := s.StoreTuple(context.Background(), dup)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	assert.False(t, errors.Is(err, storage.ErrRevisionMismatch))

	// A different strand is a different composite.
	storeTuple(t, s, &types.Tuple{
		Strand:   "owner",
		Left:     types.PrincipalEndpoint("jane"),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	})
}

func TestTuplePrincipalEndpointFK(t *testing.T) {
	s := newStore(t)
	tup := &types.Tuple{
		ID:       id.New(),
		SpaceID:  space,
		Left:     types.PrincipalEndpoint("ghost"),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	}
	assert.ErrorIs(t, s.StoreTuple(context.Background(), tup), storage.ErrInvalidKey)
}

func TestTupleDiscardIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tup := storeTuple(t, s, &types.Tuple{
		Left:     types.EntityEndpoint("group", "a"),
		Relation: "parent",
		Right:    types.EntityEndpoint("group", "b"),
	})

	existed, err := s.DiscardTuple(ctx, space, tup.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.DiscardTuple(ctx, space, tup.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.RetrieveTuple(ctx, space, tup.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTupleLookup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	storeTuple(t, s, &types.Tuple{
		Strand:   "member",
		Left:     types.PrincipalEndpoint("jane"),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	})

	// Exact match with wildcard strand.
	got, err := s.LookupTuple(ctx, space, types.PrincipalEndpoint("jane"), types.EntityEndpoint("group", "viewers"), "member", "")
	require.NoError(t, err)
	assert.Equal(t, "member", got.Relation)

	// Wildcard relation too.
	got, err = s.LookupTuple(ctx, space, types.PrincipalEndpoint("jane"), types.EntityEndpoint("group", "viewers"), "", "")
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = s.LookupTuple(ctx, space, types.PrincipalEndpoint("jane"), types.EntityEndpoint("group", "viewers"), "owner", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.LookupTuple(ctx, space, types.PrincipalEndpoint("jane"), types.EntityEndpoint("group", "viewers"), "member", "other")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListLeftOrderingAndFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	right := types.EntityEndpoint("group", "viewers")
	storeTuple(t, s, &types.Tuple{
		Strand: "s1", Left: types.PrincipalEndpoint("jane"), Relation: "member", Right: right,
	})
	storeTuple(t, s, &types.Tuple{
		Strand: "s2", Left: types.EntityEndpoint("group", "editors"), Relation: "parent", Right: right,
	})
	storeTuple(t, s, &types.Tuple{
		Strand: "s3", Left: types.EntityEndpoint("group", "docs"), Relation: "parent", Right: right,
	})

	all, err := s.ListLeft(ctx, space, right, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.LHash == cur.LHash {
			assert.Greater(t, prev.Left.ID, cur.Left.ID)
		} else {
			assert.Greater(t, prev.LHash, cur.LHash)
		}
	}

	byRelation, err := s.ListLeft(ctx, space, right, storage.ListOptions{Relation: "parent"})
	require.NoError(t, err)
	assert.Len(t, byRelation, 2)

	byStrand, err := s.ListLeft(ctx, space, right, storage.ListOptions{Strand: "s1"})
	require.NoError(t, err)
	require.Len(t, byStrand, 1)
	assert.Equal(t, "jane", byStrand[0].Left.ID)

	principals, err := s.ListLeft(ctx, space, right, storage.ListOptions{PrincipalsOnly: true})
	require.NoError(t, err)
	require.Len(t, principals, 1)
	assert.True(t, principals[0].Left.IsPrincipal())

	limited, err := s.ListLeft(ctx, space, right, storage.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Cursor pages are the same set as a single scan.
	var paged []*types.Tuple
	lastID := ""
	for {
		pageTuples, err := s.ListLeft(ctx, space, right, storage.ListOptions{LastID: lastID, Limit: 1})
		require.NoError(t, err)
		if len(pageTuples) == 0 {
			break
		}
		paged = append(paged, pageTuples...)
		lastID = pageTuples[len(pageTuples)-1].Left.ID
	}
	require.Len(t, paged, 3)
}

func TestListRightMirror(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	left := types.EntityEndpoint("group", "editors")
	storeTuple(t, s, &types.Tuple{Strand: "x", Left: left, Relation: "parent", Right: types.EntityEndpoint("group", "viewers")})
	storeTuple(t, s, &types.Tuple{Strand: "y", Left: left, Relation: "parent", Right: types.EntityEndpoint("group", "guests")})

	got, err := s.ListRight(ctx, space, left, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	if got[0].RHash == got[1].RHash {
		assert.Greater(t, got[0].Right.ID, got[1].Right.ID)
	} else {
		assert.Greater(t, got[0].RHash, got[1].RHash)
	}
}

func TestListTuplets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	left := types.PrincipalEndpoint("jane")
	tup := storeTuple(t, s, &types.Tuple{
		Strand: "member", Left: left, Relation: "member", Right: types.EntityEndpoint("group", "viewers"),
	})

	// Fixed left: far side is the right endpoint.
	tuplets, err := s.ListTuplets(ctx, space, &left, nil, "", 10)
	require.NoError(t, err)
	require.Len(t, tuplets, 1)
	assert.Equal(t, tup.ID, tuplets[0].ID)
	assert.Equal(t, tup.RHash, tuplets[0].Hash)
	assert.Equal(t, "member", tuplets[0].Relation)
	assert.Equal(t, "member", tuplets[0].Strand)

	// Fixed right: far side is the left endpoint.
	rightEP := types.EntityEndpoint("group", "viewers")
	tuplets, err = s.ListTuplets(ctx, space, nil, &rightEP, "", 10)
	require.NoError(t, err)
	require.Len(t, tuplets, 1)
	assert.Equal(t, tup.LHash, tuplets[0].Hash)

	// Zero or two endpoints are invalid.
	_, err = s.ListTuplets(ctx, space, nil, nil, "", 10)
	assert.ErrorIs(t, err, storage.ErrInvalidListArgs)
	_, err = s.ListTuplets(ctx, space, &left, &rightEP, "", 10)
	assert.ErrorIs(t, err, storage.ErrInvalidListArgs)
}

func TestStatistics(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	storePrincipal(t, s, "jane")
	require.NoError(t, s.StoreRecord(ctx, &types.Record{
		PrincipalID: "jane", ResourceType: "doc", ResourceID: "readme", SpaceID: space,
	}))
	storeTuple(t, s, &types.Tuple{
		Left: types.EntityEndpoint("group", "a"), Relation: "parent", Right: types.EntityEndpoint("group", "b"),
	})

	stats, err := s.Statistics(ctx, space)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Principals)
	assert.Equal(t, int64(1), stats.Records)
	assert.Equal(t, int64(1), stats.Tuples)

	empty, err := s.Statistics(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Tuples)
}

func TestStatisticsSpacePrefixIsolation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// One space id is a prefix of the other; counts must not bleed across.
	require.NoError(t, s.StorePrincipal(ctx, &types.Principal{ID: "jane", SpaceID: "a"}))
	require.NoError(t, s.StorePrincipal(ctx, &types.Principal{ID: "bob", SpaceID: "ab"}))
	require.NoError(t, s.StoreRecord(ctx, &types.Record{
		PrincipalID: "bob", ResourceType: "doc", ResourceID: "readme", SpaceID: "ab",
	}))

	stats, err := s.Statistics(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Principals)
	assert.Equal(t, int64(0), stats.Records)

	sub, err := s.Statistics(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sub.Principals)
	assert.Equal(t, int64(1), sub.Records)
}

package mysql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/weftlabs/weft/internal/id"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

// The integration test spins up a real MySQL via testcontainers. It only
// runs when WEFT_TEST_MYSQL=1 so unit runs stay docker-free.
func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("WEFT_TEST_MYSQL") != "1" {
		t.Skip("set WEFT_TEST_MYSQL=1 to run MySQL integration tests")
	}

	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.4",
		tcmysql.WithDatabase("weft"),
		tcmysql.WithUsername("weft"),
		tcmysql.WithPassword("weft"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	s, err := Open(ctx, &Config{DSN: dsn, AcquireTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegrationRoundTrips(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	const space = "it-space"

	// Principal round trip with revision guard.
	p := &types.Principal{ID: id.New(), SpaceID: space, Attrs: map[string]any{"team": "core"}}
	require.NoError(t, s.StorePrincipal(ctx, p))
	got, err := s.RetrievePrincipal(ctx, space, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "core", got.Attrs["team"])

	require.NoError(t, s.StorePrincipal(ctx, p))
	assert.Equal(t, int64(1), p.Rev)

	stale := &types.Principal{ID: p.ID, SpaceID: space, Rev: 0}
	assert.ErrorIs(t, s.StorePrincipal(ctx, stale), storage.ErrRevisionMismatch)

	// Parent FK.
	orphan := &types.Principal{ID: id.New(), SpaceID: space, ParentID: "missing"}
	assert.ErrorIs(t, s.StorePrincipal(ctx, orphan), storage.ErrInvalidParentID)

	// Record round trip plus FK.
	r := &types.Record{PrincipalID: p.ID, ResourceType: "doc", ResourceID: "readme", SpaceID: space}
	require.NoError(t, s.StoreRecord(ctx, r))
	ghost := &types.Record{PrincipalID: "ghost", ResourceType: "doc", ResourceID: "x", SpaceID: space}
	assert.ErrorIs(t, s.StoreRecord(ctx, ghost), storage.ErrInvalidKey)

	// Principal deletion is refused while the record references it.
	_, err = s.DiscardPrincipal(ctx, space, p.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidKey)

	// Tuple round trip plus composite uniqueness.
	tup := &types.Tuple{
		ID:       id.New(),
		SpaceID:  space,
		Strand:   "member",
		Left:     types.PrincipalEndpoint(p.ID),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	}
	require.NoError(t, s.StoreTuple(ctx, tup))

	back, err := s.RetrieveTuple(ctx, space, tup.ID)
	require.NoError(t, err)
	assert.Equal(t, tup.LHash, back.LHash)
	assert.Equal(t, types.PrincipalEntityType, back.Left.Type)

	dup := &types.Tuple{
		ID:       id.New(),
		SpaceID:  space,
		Strand:   "member",
		Left:     types.PrincipalEndpoint(p.ID),
		Relation: "member",
		Right:    types.EntityEndpoint("group", "viewers"),
	}
	assert.ErrorIs(t, s.StoreTuple(ctx, dup), storage.ErrAlreadyExists)

	// Listing order and cursor behavior.
	tuples, err := s.ListLeft(ctx, space, types.EntityEndpoint("group", "viewers"), storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, tup.ID, tuples[0].ID)

	stats, err := s.Statistics(ctx, space)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Tuples)
}

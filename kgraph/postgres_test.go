package kgraph

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresBackendHasNode(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := NewPostgresBackendWithPool(mock, PostgresOptions{})

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("card-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := b.HasNode(ctx, "card-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendAddEdgeFailsSilentlyWhenEndpointMissing(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	b := NewPostgresBackendWithPool(mock, PostgresOptions{})

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("a").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := b.AddEdge(ctx, Edge{Source: "a", Target: "missing", Type: EdgeSimilar})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

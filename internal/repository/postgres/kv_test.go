package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestKVStore_Get(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, time.Hour)

	mock.ExpectQuery(getQuery).WithArgs("storefront:s1:locale").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"country":"PT"}`)))

	got, err := s.Get(context.Background(), "storefront:s1:locale")
	require.NoError(t, err)
	assert.Equal(t, `{"country":"PT"}`, string(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStore_GetMissing(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, 0)

	mock.ExpectQuery(getQuery).WithArgs("absent").WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStore_GetDatabaseError(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, 0)

	mock.ExpectQuery(getQuery).WithArgs("k").WillReturnError(errors.New("connection reset"))

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestKVStore_SetWithTTL(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, time.Hour)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	expires := fixed.Add(time.Hour)
	mock.ExpectExec(setQuery).WithArgs("k", []byte("v"), &expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStore_SetWithoutTTL(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, 0)

	mock.ExpectExec(setQuery).WithArgs("k", []byte("v"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStore_Delete(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, 0)

	mock.ExpectExec(deleteQuery).WithArgs("k").WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Delete(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStore_PurgeExpired(t *testing.T) {
	mock := newMock(t)
	s := NewKVStore(mock, time.Hour)

	mock.ExpectExec(purgeQuery).WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

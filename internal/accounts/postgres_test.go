package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securemsg/accountdir/internal/common"
)

func newPostgresFixture(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresStore(db), mock
}

func accountRow(t *testing.T, account *Account) *sqlmock.Rows {
	t.Helper()
	data, err := json.Marshal(account)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"uuid", "data"}).AddRow(account.UUID.String(), data)
}

func TestPostgresStore_CreateFresh(t *testing.T) {
	store, mock := newPostgresFixture(t)
	account := testAccount("+14155550101")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs(account.UUID, account.Number, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "fresh"}).AddRow(account.UUID.String(), true))

	fresh, err := store.Create(context.Background(), account)

	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestPostgresStore_CreateNumberCollisionRewritesUUID(t *testing.T) {
	store, mock := newPostgresFixture(t)
	account := testAccount("+14155550101")
	existingUUID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs(account.UUID, account.Number, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "fresh"}).AddRow(existingUUID.String(), false))

	fresh, err := store.Create(context.Background(), account)

	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, existingUUID, account.UUID)
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock := newPostgresFixture(t)
	account := testAccount("+14155550101")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET")).
		WithArgs(account.UUID, account.Number, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Update(context.Background(), account))
}

func TestPostgresStore_UpdateMissingAccount(t *testing.T) {
	store, mock := newPostgresFixture(t)
	account := testAccount("+14155550101")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET")).
		WithArgs(account.UUID, account.Number, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), account)

	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgresStore_GetByNumber(t *testing.T) {
	store, mock := newPostgresFixture(t)
	account := testAccount("+14155550101")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uuid, data FROM accounts WHERE number = $1")).
		WithArgs(account.Number).
		WillReturnRows(accountRow(t, account))

	got, err := store.GetByNumber(context.Background(), account.Number)

	require.NoError(t, err)
	assert.Equal(t, account.UUID, got.UUID)
	assert.Equal(t, account.Number, got.Number)
	assert.Equal(t, account.Devices, got.Devices)
}

func TestPostgresStore_GetByUUIDNotFound(t *testing.T) {
	store, mock := newPostgresFixture(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uuid, data FROM accounts WHERE uuid = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "data"}))

	_, err := store.GetByUUID(context.Background(), id)

	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgresStore_GetByUUIDQueryError(t *testing.T) {
	store, mock := newPostgresFixture(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uuid, data FROM accounts WHERE uuid = $1")).
		WithArgs(id).
		WillReturnError(errors.New("connection refused"))

	_, err := store.GetByUUID(context.Background(), id)

	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newPostgresFixture(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounts WHERE uuid = $1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), id))
}

func TestPostgresStore_GetAllFrom(t *testing.T) {
	store, mock := newPostgresFixture(t)
	first := testAccount("+14155550101")
	second := testAccount("+14155550102")

	dataFirst, err := json.Marshal(first)
	require.NoError(t, err)
	dataSecond, err := json.Marshal(second)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uuid, data FROM accounts ORDER BY uuid LIMIT $1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "data"}).
			AddRow(first.UUID.String(), dataFirst).
			AddRow(second.UUID.String(), dataSecond))

	got, err := store.GetAllFrom(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.UUID, got[0].UUID)
	assert.Equal(t, second.UUID, got[1].UUID)
}

func TestPostgresStore_GetAllFromUUID(t *testing.T) {
	store, mock := newPostgresFixture(t)
	after := uuid.New()
	account := testAccount("+14155550103")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uuid, data FROM accounts WHERE uuid > $1 ORDER BY uuid LIMIT $2")).
		WithArgs(after, 10).
		WillReturnRows(accountRow(t, account))

	got, err := store.GetAllFromUUID(context.Background(), after, 10)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, account.UUID, got[0].UUID)
}

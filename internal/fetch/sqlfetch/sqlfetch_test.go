package sqlfetch

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowpreload/internal/dbexec"
	"rowpreload/internal/dialect"
	"rowpreload/internal/fetch"
)

func TestFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `post_id`, `body` FROM `comments` WHERE `post_id` IN (?,?)")).
		WithArgs(1, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "body"}).
			AddRow(10, 1, []byte("first")).
			AddRow(11, 3, []byte("second")))

	f := New(dbexec.NewStandardExecutor(db), dialect.MySQL, nil)
	result, err := f.Fetch(context.Background(), fetch.Request{
		Table:   "comments",
		Columns: []fetch.Selection{fetch.Column("id"), fetch.Column("post_id"), fetch.Column("body")},
		In:      &fetch.InFilter{Column: "post_id", Values: []any{1, 3}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"id", "post_id", "body"}, result.Columns)
	require.Equal(t, 2, result.Len())
	assert.Equal(t, []byte("first"), result.Rows[0][2])
	assert.EqualValues(t, 3, result.Rows[1][1])
}

func TestFetch_PropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM `comments`").WillReturnError(sql.ErrConnDone)

	f := New(dbexec.NewStandardExecutor(db), dialect.MySQL, nil)
	_, err = f.Fetch(context.Background(), fetch.Request{
		Table: "comments",
		In:    &fetch.InFilter{Column: "post_id", Values: []any{1}},
	})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestMaxInList(t *testing.T) {
	assert.Equal(t, 32766, New(nil, dialect.SQLite, nil).MaxInList())
	assert.Equal(t, 0, New(nil, dialect.MySQL, nil).MaxInList())
}

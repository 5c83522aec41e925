package main

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gurre/cloudlab/pgdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDemoCreatesFillsAndRemoves(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := pgdb.Wrap(conn, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select exists(select * from information_schema.tables where table_name=$1)")).
		WithArgs("testtable").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "testtable"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "testtable"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectBegin()
	for _, meas := range []float64{-1.0, 2.0, 2.4} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "testtable" (dt, meas) VALUES ($1, $2)`)).
			WithArgs(sqlmock.AnyArg(), meas).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "testtable"`)).
		WillReturnRows(sqlmock.NewRows([]string{"dt", "meas"}).
			AddRow(now, -1.0).AddRow(now, 2.0).AddRow(now, 2.4))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "testtable"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, demo(context.Background(), db, "testtable", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemoExistingTable(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := pgdb.Wrap(conn, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for i := 0; i < 3; i++ {
		mock.ExpectExec(`INSERT INTO "testtable"`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "testtable"`)).
		WillReturnRows(sqlmock.NewRows([]string{"dt", "meas"}))
	mock.ExpectCommit()

	require.NoError(t, demo(context.Background(), db, "testtable", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

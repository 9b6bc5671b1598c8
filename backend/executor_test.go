package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intersystems-community/iris-pgwire-sub007/pgerr"
)

// fakeDriver is a minimal database/sql/driver implementation registered
// under backend.DriverName so Pool/Conn can be exercised without a real
// IRIS connection. It supports one scripted behavior per test: either
// returning a fixed row set, or failing every query with a given error.
type fakeDriver struct {
	mu      sync.Mutex
	failErr error
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	return &fakeConn{d: d}, nil
}

type fakeConn struct {
	d  *fakeDriver
	tx *fakeTx
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("Prepare not supported by fakeConn")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	tx := &fakeTx{}
	c.tx = tx
	return tx, nil
}

func (c *fakeConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	c.d.mu.Lock()
	failErr := c.d.failErr
	c.d.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}
	return &fakeRows{cols: []string{"id", "name"}, rows: [][]driver.Value{{int64(1), "alice"}}}, nil
}

type fakeTx struct{ rolledBack, committed bool }

func (t *fakeTx) Commit() error   { t.committed = true; return nil }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

var registerOnce sync.Once
var registeredDriver *fakeDriver

func newTestPool(t *testing.T) (*Pool, *fakeDriver) {
	t.Helper()
	registerOnce.Do(func() {
		registeredDriver = &fakeDriver{}
		sql.Register(DriverName, registeredDriver)
	})
	registeredDriver.mu.Lock()
	registeredDriver.failErr = nil
	registeredDriver.mu.Unlock()

	pool, err := Open(Config{Host: "localhost", Port: 1972, Namespace: "USER", Username: "u", Password: "p"})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool, registeredDriver
}

func TestExecuteReturnsColumnsAndRows(t *testing.T) {
	pool, _ := newTestPool(t)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	descs, it, cancel, err := conn.Execute(context.Background(), "SELECT id, name FROM t", nil)
	require.NoError(t, err)
	defer cancel()
	defer it.Close()

	require.Len(t, descs, 2)
	require.Equal(t, "id", descs[0].Name)
	require.Equal(t, "name", descs[1].Name)

	require.True(t, it.Next(), "expected one row")
	vals, err := it.Scan()
	require.NoError(t, err)
	require.Equal(t, "alice", vals[1].Text)
}

func TestQueryRowsReturnsStringKeyedMaps(t *testing.T) {
	pool, _ := newTestPool(t)
	rows, err := pool.QueryRows(context.Background(), "SELECT id, name FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1", rows[0]["id"])
	require.Equal(t, "alice", rows[0]["name"])
}

func TestQueryRowsPropagatesDriverError(t *testing.T) {
	pool, drv := newTestPool(t)
	drv.mu.Lock()
	drv.failErr = errors.New("boom")
	drv.mu.Unlock()

	_, err := pool.QueryRows(context.Background(), "SELECT id FROM t")
	require.Error(t, err)
}

func TestStringifyCell(t *testing.T) {
	require.Equal(t, "", stringifyCell(nil))
	require.Equal(t, "hi", stringifyCell([]byte("hi")))
	require.Equal(t, "hi", stringifyCell("hi"))
	require.Equal(t, "42", stringifyCell(int64(42)))
}

func TestExecuteOutsideTransactionDoesNotPersistFailed(t *testing.T) {
	pool, drv := newTestPool(t)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	drv.mu.Lock()
	drv.failErr = errors.New("boom")
	drv.mu.Unlock()

	_, _, _, err = conn.Execute(context.Background(), "SELECT 1", nil)
	require.Error(t, err, "expected an error from the failing query")
	require.False(t, conn.Failed(), "expected Failed to remain false outside an explicit transaction block")
}

func TestExecuteInsideTransactionPersistsFailed(t *testing.T) {
	pool, drv := newTestPool(t)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	require.NoError(t, conn.Begin(context.Background()))
	require.True(t, conn.InTransaction(), "expected InTransaction to report true after Begin")

	drv.mu.Lock()
	drv.failErr = errors.New("boom")
	drv.mu.Unlock()

	_, _, _, err = conn.Execute(context.Background(), "SELECT 1", nil)
	require.Error(t, err, "expected an error from the failing query")
	require.True(t, conn.Failed(), "expected Failed to be set after a query error inside an explicit transaction")

	require.NoError(t, conn.Rollback(context.Background()))
	require.False(t, conn.Failed(), "expected Failed to be cleared after Rollback")
	require.False(t, conn.InTransaction(), "expected InTransaction to report false after Rollback")
}

func TestExecuteWhileFailedReturnsInFailedSqlTransaction(t *testing.T) {
	pool, _ := newTestPool(t)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	conn.MarkFailed()
	_, _, _, err = conn.Execute(context.Background(), "SELECT 1", nil)
	require.Error(t, err, "expected an error when executing on an already-failed connection")

	pgErr, ok := pgerr.As(err)
	require.True(t, ok, "expected a pgerr")
	require.Equal(t, pgerr.InFailedSQLTransaction, pgErr.Code)
}

func TestCommitClearsTransactionAndFailed(t *testing.T) {
	pool, _ := newTestPool(t)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	require.NoError(t, conn.Begin(context.Background()))
	conn.MarkFailed()
	require.NoError(t, conn.Commit(context.Background()))
	require.False(t, conn.Failed())
	require.False(t, conn.InTransaction())
}

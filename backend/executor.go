// Package backend holds the pool of IRIS connections and executes
// translated SQL against it (spec §4.8). It is built directly on the
// standard library's database/sql rather than a dedicated IRIS client
// library: no Go IRIS driver appears anywhere in the teacher or the
// rest of the example pack, so the backend is modeled the way spec §1
// frames IRIS itself — "an opaque SQL execution backend accessed
// through a synchronous query interface" — reached through whatever
// database/sql driver is registered under DriverName at process start
// (cmd/iris-pgwire registers none itself; a deployment blank-imports
// the concrete driver).
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/intersystems-community/iris-pgwire-sub007/pgerr"
	"github.com/intersystems-community/iris-pgwire-sub007/typecodec"
)

// DriverName is the database/sql driver name the pool opens. IRIS ships
// first-party JDBC/ODBC/.NET drivers but no first-party database/sql
// driver; deployments register whichever community driver they use
// (e.g. an ODBC bridge) under this name via a blank import in main.
const DriverName = "iris"

// ColumnDescriptor is one result column's name and assigned OID, the
// shape the connection handler needs to emit RowDescription.
type ColumnDescriptor struct {
	Name string
	OID  uint32
}

// Pool holds a bounded set of IRIS backend connections.
type Pool struct {
	db  *sql.DB
	sx  *sqlx.DB
	reg *typecodec.Registry
}

// Config describes how to reach the IRIS backend.
type Config struct {
	Host      string
	Port      int
	Namespace string
	Username  string
	Password  string
	PoolSize  int
}

// Open builds a Pool from cfg. The DSN format is driver-specific; this
// constructs the conventional host:port/namespace form most SQL
// gateways over IRIS accept.
func Open(cfg Config) (*Pool, error) {
	dsn := fmt.Sprintf("%s:%s@%s:%d/%s", cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Namespace)
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.ConnectionFailure, err, "could not open IRIS backend pool")
	}
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}
	return &Pool{db: db, sx: sqlx.NewDb(db, DriverName), reg: typecodec.NewRegistry()}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() error { return p.db.Close() }

// QueryRows issues a fixed, parameterless query and returns its rows as
// string-keyed maps — the minimal surface the catalog emulator needs to
// read IRIS's own INFORMATION_SCHEMA (spec §4.6). Uses sqlx's MapScan
// rather than hand-rolling a sql.NullString scan-target per column.
func (p *Pool) QueryRows(ctx context.Context, query string) ([]map[string]string, error) {
	rows, err := p.sx.QueryxContext(ctx, query)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "catalog query against IRIS failed")
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		raw := make(map[string]any)
		if err := rows.MapScan(raw); err != nil {
			return nil, pgerr.Wrap(pgerr.InternalError, err, "scanning catalog query row")
		}
		m := make(map[string]string, len(raw))
		for k, v := range raw {
			m[k] = stringifyCell(v)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// stringifyCell renders one MapScan cell the way sql.NullString.String
// did before: NULL becomes "", []byte (most drivers report text columns
// this way) is decoded as a string, everything else is formatted with
// its default representation.
func stringifyCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Conn is one backend connection, affine to a single PGWire connection
// for the lifetime of any open portal (spec §4.8).
type Conn struct {
	pool   *Pool
	raw    *sql.Conn
	mu     sync.Mutex
	tx     *sql.Tx
	failed bool

	cancelMu sync.Mutex
	cancels  map[*queryHandle]struct{}
}

// Acquire checks out one backend connection for the lifetime of a
// PGWire connection.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.ConnectionFailure, err, "could not acquire IRIS backend connection")
	}
	return &Conn{pool: p, raw: raw, cancels: make(map[*queryHandle]struct{})}, nil
}

// Release returns the backend connection to the pool.
func (c *Conn) Release() error { return c.raw.Close() }

// Failed reports whether the connection's transaction has been marked
// Failed by a prior error. While set, Execute returns
// InFailedSqlTransaction; only Commit or Rollback clears it.
func (c *Conn) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// MarkFailed marks the current transaction Failed.
func (c *Conn) MarkFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
}

// InTransaction reports whether an explicit transaction is currently
// open on this connection (spec §4.8/§7: the Failed state only applies
// within an explicit transaction block — outside one, each statement is
// its own implicit unit of work and an error never persists past it).
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// ClearFailed resets the Failed flag without ending the transaction.
// Commit and Rollback clear the flag themselves and do not call this.
func (c *Conn) ClearFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = false
}

// Begin starts a transaction on this connection.
func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return nil
	}
	tx, err := c.raw.BeginTx(ctx, nil)
	if err != nil {
		return pgerr.Wrap(pgerr.InternalError, err, "could not start IRIS transaction")
	}
	c.tx = tx
	return nil
}

// Commit commits the current transaction, if any.
func (c *Conn) Commit(ctx context.Context) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.failed = false
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return pgerr.Wrap(pgerr.InternalError, err, "could not commit IRIS transaction")
	}
	return nil
}

// Rollback rolls back the current transaction, if any, and clears the
// Failed flag.
func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.failed = false
	c.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return pgerr.Wrap(pgerr.InternalError, err, "could not roll back IRIS transaction")
	}
	return nil
}

// queryHandle implements cancel.Handle for one in-flight query.
type queryHandle struct {
	cancel context.CancelFunc
}

// Cancel terminates the in-flight query's context, which database/sql
// propagates into the driver as a query cancellation (spec §4.8
// cancel(handle)).
func (h *queryHandle) Cancel() { h.cancel() }

// Cancel implements cancel.Handle for the whole connection: it cancels
// every query currently in flight on it, so the cancellation registry
// can hold the Conn and reach whichever query is running.
func (c *Conn) Cancel() {
	c.cancelMu.Lock()
	handles := make([]*queryHandle, 0, len(c.cancels))
	for h := range c.cancels {
		handles = append(handles, h)
	}
	c.cancelMu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// Execute submits translated SQL against this connection and returns a
// streaming row iterator. The returned func cancels this one query;
// Conn.Cancel, which the cancellation registry calls, cancels every
// query in flight on the connection (spec §4.8, §4.10 Cancellation).
func (c *Conn) Execute(ctx context.Context, query string, args []any) ([]ColumnDescriptor, *RowIterator, func(), error) {
	if c.Failed() {
		return nil, nil, nil, pgerr.New(pgerr.InFailedSQLTransaction, "current transaction is aborted, commands ignored until end of transaction block")
	}

	queryCtx, cancelFn := context.WithCancel(ctx)
	handle := &queryHandle{cancel: cancelFn}
	c.cancelMu.Lock()
	c.cancels[handle] = struct{}{}
	c.cancelMu.Unlock()

	querier := queryerFor(c)
	rows, err := querier.QueryContext(queryCtx, query, args...)
	if err != nil {
		cancelFn()
		c.cancelMu.Lock()
		delete(c.cancels, handle)
		c.cancelMu.Unlock()
		if queryCtx.Err() == context.Canceled {
			return nil, nil, nil, pgerr.New(pgerr.QueryCanceled, "canceling statement due to user request")
		}
		// Only an explicit transaction block persists Failed across
		// statements (spec §4.8); outside one, each statement is its own
		// implicit unit of work.
		if c.InTransaction() {
			c.MarkFailed()
		}
		return nil, nil, nil, pgerr.Wrap(pgerr.InternalError, err, "IRIS query failed")
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancelFn()
		return nil, nil, nil, pgerr.Wrap(pgerr.InternalError, err, "reading result column names")
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		cancelFn()
		return nil, nil, nil, pgerr.Wrap(pgerr.InternalError, err, "reading result column types")
	}

	descs := make([]ColumnDescriptor, len(cols))
	for i, name := range cols {
		descs[i] = ColumnDescriptor{Name: name, OID: oidForColumnType(colTypes[i])}
	}

	it := &RowIterator{rows: rows, descs: descs, cancel: func() {
		cancelFn()
		c.cancelMu.Lock()
		delete(c.cancels, handle)
		c.cancelMu.Unlock()
	}}

	return descs, it, handle.Cancel, nil
}

// queryerFor returns the transaction if one is open, else the raw
// connection, so Execute always runs against the connection's current
// transactional context.
func queryerFor(c *Conn) interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return c.tx
	}
	return c.raw
}

// RowIterator streams *sql.Rows as typecodec.Value rows.
type RowIterator struct {
	rows   *sql.Rows
	descs  []ColumnDescriptor
	cancel func()
}

// Next advances to the next row.
func (it *RowIterator) Next() bool { return it.rows.Next() }

// Scan reads the current row into typecodec.Values ordered per
// ColumnDescriptor.
func (it *RowIterator) Scan() ([]typecodec.Value, error) {
	raw := make([]any, len(it.descs))
	ptrs := make([]any, len(it.descs))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "scanning IRIS result row")
	}
	out := make([]typecodec.Value, len(raw))
	for i, v := range raw {
		out[i] = convertDriverValue(v, it.descs[i].OID)
	}
	return out, nil
}

// Err reports any error encountered during iteration.
func (it *RowIterator) Err() error { return it.rows.Err() }

// Close releases the row iterator's resources and its query cancel
// context.
func (it *RowIterator) Close() error {
	err := it.rows.Close()
	it.cancel()
	return err
}

func convertDriverValue(v any, oid uint32) typecodec.Value {
	if v == nil {
		return typecodec.Value{Kind: typecodec.KindNull}
	}
	switch x := v.(type) {
	case bool:
		return typecodec.Value{Kind: typecodec.KindBool, Bool: x}
	case int64:
		return typecodec.Value{Kind: typecodec.KindInt, Int: x}
	case float64:
		return typecodec.Value{Kind: typecodec.KindFloat, Float: x}
	case []byte:
		if oid == typecodec.OIDBytea {
			return typecodec.Value{Kind: typecodec.KindBytes, Bytes: x}
		}
		return typecodec.Value{Kind: typecodec.KindText, Text: string(x)}
	case string:
		return typecodec.Value{Kind: typecodec.KindText, Text: x}
	case time.Time:
		if oid == typecodec.OIDDate {
			return typecodec.Value{Kind: typecodec.KindDate, Date: typecodec.TimeToPGDays(x)}
		}
		return typecodec.Value{Kind: typecodec.KindTimestamp, Timestamp: typecodec.TimeToPGMicros(x)}
	default:
		return typecodec.Value{Kind: typecodec.KindText, Text: fmt.Sprintf("%v", x)}
	}
}

// oidForColumnType maps a database/sql-reported column type name to a
// PostgreSQL OID. Driver-reported names vary by IRIS driver, so this
// covers the common ODBC/JDBC-style names and falls back to text.
func oidForColumnType(ct *sql.ColumnType) uint32 {
	switch ct.DatabaseTypeName() {
	case "BIGINT":
		return typecodec.OIDInt8
	case "INTEGER", "INT":
		return typecodec.OIDInt4
	case "SMALLINT", "TINYINT":
		return typecodec.OIDInt2
	case "DOUBLE", "DOUBLE PRECISION":
		return typecodec.OIDFloat8
	case "REAL", "FLOAT":
		return typecodec.OIDFloat4
	case "NUMERIC", "DECIMAL":
		return typecodec.OIDNumeric
	case "DATE":
		return typecodec.OIDDate
	case "TIMESTAMP", "TIMESTAMP2":
		return typecodec.OIDTimestamp
	case "BIT", "BOOLEAN":
		return typecodec.OIDBool
	case "VARBINARY", "BINARY", "LONGVARBINARY":
		return typecodec.OIDBytea
	case "VECTOR":
		return typecodec.VectorOID
	default:
		return typecodec.OIDText
	}
}

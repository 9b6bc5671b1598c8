// Copyright 2024 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/sirupsen/logrus"

	"github.com/intersystems-community/iris-pgwire-sub007/backend"
	"github.com/intersystems-community/iris-pgwire-sub007/catalog"
	"github.com/intersystems-community/iris-pgwire-sub007/pgerr"
	"github.com/intersystems-community/iris-pgwire-sub007/schemamap"
	"github.com/intersystems-community/iris-pgwire-sub007/translate"
	"github.com/intersystems-community/iris-pgwire-sub007/typecodec"
	"github.com/intersystems-community/iris-pgwire-sub007/vectoropt"
)

// ConnectionHandler drives one client connection through the Startup,
// Simple Query, and Extended Query state machines (spec §4.10). It
// replaces the teacher's go-mysql-server-backed handler: instead of
// translating Postgres messages into a MySQL-shaped engine call, it
// translates them into IRIS SQL text and runs it through the backend
// executor directly.
type ConnectionHandler struct {
	conn    net.Conn
	backend *pgproto3.Backend
	server  *Server
	authCfg AuthConfig

	ctx    context.Context
	cancel context.CancelFunc

	beConn    *backend.Conn
	backendID int32
	secretKey int32

	preparedStatements map[string]*PreparedStatement
	portals            map[string]*Portal

	// skipUntilSync implements the Extended Query recovery semantic
	// (spec §4.10): once a step between Sync points errors, every
	// subsequent message is ignored except Sync.
	skipUntilSync bool
	stop          bool
}

// NewConnectionHandler wraps a freshly accepted net.Conn.
func NewConnectionHandler(conn net.Conn, server *Server) *ConnectionHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionHandler{
		conn:               conn,
		backend:            pgproto3.NewBackend(conn, conn),
		server:             server,
		authCfg:            server.authCfg,
		ctx:                ctx,
		cancel:             cancel,
		preparedStatements: make(map[string]*PreparedStatement),
		portals:            make(map[string]*Portal),
	}
}

// HandleConnection runs the connection to completion: Startup, then the
// message loop, then cleanup. Panics are recovered and logged so one
// misbehaving connection cannot take down the listener goroutine pool.
func (h *ConnectionHandler) HandleConnection() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("panic handling connection: %v", r)
		}
		h.cancel()
		if h.beConn != nil {
			h.server.cancelReg.Unregister(h.backendID, h.secretKey)
			_ = h.beConn.Release()
		}
		_ = h.conn.Close()
	}()

	proceed, err := h.handleStartup()
	if err != nil {
		logrus.WithError(err).Debug("startup failed")
		return
	}
	if !proceed {
		return
	}

	for !h.stop {
		h.receiveMessage()
	}
}

// receiveMessage reads and dispatches exactly one frontend message.
func (h *ConnectionHandler) receiveMessage() {
	msg, err := h.backend.Receive()
	if err != nil {
		if err == io.EOF {
			h.stop = true
			return
		}
		logrus.WithError(err).Debug("protocol framing error")
		_ = h.sendPgErr(pgerr.Wrap(pgerr.ProtocolViolation, err, "invalid message framing").Fatal())
		h.stop = true
		return
	}
	h.handleMessage(msg)
}

func (h *ConnectionHandler) handleMessage(msg pgproto3.FrontendMessage) {
	if h.skipUntilSync {
		if _, isSync := msg.(*pgproto3.Sync); !isSync {
			if _, isTerminate := msg.(*pgproto3.Terminate); !isTerminate {
				return
			}
		}
	}

	switch m := msg.(type) {
	case *pgproto3.Terminate:
		h.stop = true

	case *pgproto3.Sync:
		h.skipUntilSync = false
		h.mustSend(&pgproto3.ReadyForQuery{TxStatus: byte(h.currentTxStatus())})

	case *pgproto3.Query:
		h.handleQuery(m)

	case *pgproto3.Parse:
		h.handleParse(m)

	case *pgproto3.Bind:
		h.handleBind(m)

	case *pgproto3.Describe:
		h.handleDescribe(m)

	case *pgproto3.Execute:
		h.handleExecute(m)

	case *pgproto3.Close:
		h.handleClose(m)

	case *pgproto3.CopyData, *pgproto3.CopyDone, *pgproto3.CopyFail:
		h.enterSkip(pgerr.FeatureNotSupportedf("COPY is not supported"))

	default:
		h.enterSkip(pgerr.Newf(pgerr.ProtocolViolation, "unrecognized frontend message %T", msg))
	}
}

// currentTxStatus is computed fresh from the backend connection's live
// state rather than tracked as a separately mutated field, so it can
// never drift from reality (spec §4.10 ReadyForQuery).
func (h *ConnectionHandler) currentTxStatus() ReadyForQueryTransactionIndicator {
	if h.beConn == nil {
		return ReadyForQueryTransactionIndicator_Idle
	}
	if h.beConn.Failed() {
		return ReadyForQueryTransactionIndicator_FailedTransactionBlock
	}
	if h.beConn.InTransaction() {
		return ReadyForQueryTransactionIndicator_TransactionBlock
	}
	return ReadyForQueryTransactionIndicator_Idle
}

// enterSkip sends an ErrorResponse and begins ignoring messages until
// the next Sync (spec §4.10, §7).
func (h *ConnectionHandler) enterSkip(err error) {
	_ = h.sendPgErr(err)
	h.skipUntilSync = true
}

func (h *ConnectionHandler) send(msg pgproto3.BackendMessage) error {
	h.backend.Send(msg)
	return h.backend.Flush()
}

// mustSend panics on a send failure; used where the caller has no
// sensible error path left (e.g. after the error has already been
// reported). The panic is caught by HandleConnection's recover.
func (h *ConnectionHandler) mustSend(msg pgproto3.BackendMessage) {
	if err := h.send(msg); err != nil {
		panic(err)
	}
}

func (h *ConnectionHandler) pgErrorResponse(err error) *pgproto3.ErrorResponse {
	pe, ok := pgerr.As(err)
	if !ok {
		pe = pgerr.Wrap(pgerr.InternalError, err, "internal error")
	}
	return &pgproto3.ErrorResponse{
		Severity: string(pe.Severity),
		Code:     pe.Code,
		Message:  pe.Message,
		Detail:   pe.Detail,
		Hint:     pe.Hint,
		Position: pe.Position,
	}
}

func (h *ConnectionHandler) sendPgErr(err error) error {
	resp := h.pgErrorResponse(err)
	if h.server.metricsCollector != nil {
		h.server.metricsCollector.QueryError(resp.Code)
	}
	return h.send(resp)
}

// ---- Simple Query protocol (spec §4.10) ----

func (h *ConnectionHandler) handleQuery(msg *pgproto3.Query) {
	delete(h.preparedStatements, "")
	delete(h.portals, "")

	statements := splitStatements(msg.String)
	if len(statements) == 0 {
		h.mustSend(&pgproto3.EmptyQueryResponse{})
		h.mustSend(&pgproto3.ReadyForQuery{TxStatus: byte(h.currentTxStatus())})
		return
	}

	for _, stmt := range statements {
		if err := h.runSimpleStatement(stmt); err != nil {
			_ = h.sendPgErr(err)
			break
		}
	}
	h.mustSend(&pgproto3.ReadyForQuery{TxStatus: byte(h.currentTxStatus())})
}

// splitStatements is a naive semicolon split, not a SQL parse: it does
// not understand semicolons inside string or quoted-identifier
// literals. Acceptable here because the gateway has no SQL parser
// dependency; clients that need exact multi-statement semantics should
// use the Extended Query protocol, which sends one statement per Parse.
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func (h *ConnectionHandler) runSimpleStatement(rawSQL string) error {
	trimmed := strings.TrimSpace(rawSQL)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, "BEGIN") || strings.HasPrefix(upper, "START TRANSACTION"):
		if err := h.beConn.Begin(h.ctx); err != nil {
			return err
		}
		return h.send(&pgproto3.CommandComplete{CommandTag: []byte("BEGIN")})

	case strings.HasPrefix(upper, "COMMIT"):
		// COMMIT while Failed behaves like ROLLBACK (spec §7).
		var err error
		if h.beConn.Failed() {
			err = h.beConn.Rollback(h.ctx)
		} else {
			err = h.beConn.Commit(h.ctx)
		}
		if err != nil {
			return err
		}
		h.discardPortalsAndStatements()
		return h.send(&pgproto3.CommandComplete{CommandTag: []byte("COMMIT")})

	case strings.HasPrefix(upper, "ROLLBACK"):
		if err := h.beConn.Rollback(h.ctx); err != nil {
			return err
		}
		h.discardPortalsAndStatements()
		return h.send(&pgproto3.CommandComplete{CommandTag: []byte("ROLLBACK")})
	}

	translated := schemamap.TranslateInputSQL(trimmed)
	isCatalog := catalog.IsCatalogQuery(translated)

	var (
		fields []pgproto3.FieldDescription
		rows   func() ([]typecodec.Value, bool, error)
		closeFn func()
		tag     string
	)

	if isCatalog {
		rs, err := h.server.catalogEmu.Execute(h.ctx, translated)
		if err != nil {
			return err
		}
		fields = catalogFieldDescriptions(rs.Columns)
		idx := 0
		rows = func() ([]typecodec.Value, bool, error) {
			if idx >= len(rs.Rows) {
				return nil, false, nil
			}
			row := rs.Rows[idx]
			idx++
			return row, true, nil
		}
		closeFn = func() {}
		tag = statementTag(trimmed)
	} else {
		start := time.Now()
		result, err := h.server.translator.Translate(translated)
		if h.server.metricsCollector != nil {
			h.server.metricsCollector.TranslationDuration(time.Since(start))
		}
		if err != nil {
			return err
		}
		descs, it, cancelFn, err := h.beConn.Execute(h.ctx, result.SQL, nil)
		if err != nil {
			return err
		}
		fields = columnFieldDescriptions(descs, nil)
		rows = func() ([]typecodec.Value, bool, error) {
			if !it.Next() {
				return nil, false, it.Err()
			}
			v, err := it.Scan()
			return v, true, err
		}
		closeFn = func() { cancelFn(); _ = it.Close() }
		tag = statementTag(trimmed)
	}
	defer closeFn()

	if len(fields) > 0 {
		if err := h.send(&pgproto3.RowDescription{Fields: fields}); err != nil {
			return err
		}
	}

	var rowCount int64
	for {
		vals, ok, err := rows()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		data, err := h.encodeRow(vals, fields, nil)
		if err != nil {
			return err
		}
		if err := h.send(&pgproto3.DataRow{Values: data}); err != nil {
			return err
		}
		rowCount++
	}

	return h.send(&pgproto3.CommandComplete{CommandTag: []byte(commandTag(tag, rowCount))})
}

func (h *ConnectionHandler) discardPortalsAndStatements() {
	// Portals do not outlive their transaction (spec §4.9 "ON COMMIT
	// CLOSE"); prepared statements are session-scoped and survive.
	for name, p := range h.portals {
		if p.iterator != nil {
			_ = p.iterator.Close()
		}
		delete(h.portals, name)
	}
}

// ---- Extended Query protocol (spec §4.9, §4.10) ----

func (h *ConnectionHandler) handleParse(msg *pgproto3.Parse) {
	name := msg.Name
	if name != "" {
		if existing, ok := h.preparedStatements[name]; ok && !existing.Closed {
			h.enterSkip(pgerr.Newf(pgerr.DuplicatePreparedStmt, "prepared statement %q already exists", name))
			return
		}
	} else {
		delete(h.preparedStatements, "")
	}

	translated := schemamap.TranslateInputSQL(msg.Query)
	isCatalog := catalog.IsCatalogQuery(translated)

	sql := translated
	if !isCatalog {
		res, err := h.server.translator.Translate(translated)
		if err != nil {
			h.enterSkip(err)
			return
		}
		sql = res.SQL
	}

	stmt := &PreparedStatement{
		Name:        name,
		OriginalSQL: msg.Query,
		ParamOIDs:   append([]uint32(nil), msg.ParameterOIDs...),
		IsCatalog:   isCatalog,
	}
	stmt.Translated.SQL = sql
	h.preparedStatements[name] = stmt

	h.mustSend(&pgproto3.ParseComplete{})
}

func (h *ConnectionHandler) handleBind(msg *pgproto3.Bind) {
	stmt, ok := h.preparedStatements[msg.PreparedStatement]
	if !ok || stmt.Closed {
		h.enterSkip(pgerr.Newf(pgerr.InvalidSQLStatementName, "prepared statement %q does not exist", msg.PreparedStatement))
		return
	}

	reg := h.server.typeRegistry
	args := make([]any, len(msg.Parameters))
	for i, raw := range msg.Parameters {
		oid := uint32(0)
		if i < len(stmt.ParamOIDs) {
			oid = stmt.ParamOIDs[i]
		}
		fc := formatCodeAt(msg.ParameterFormatCodes, i)
		v, err := decodeBindParam(reg, raw, oid, fc)
		if err != nil {
			h.enterSkip(pgerr.Wrap(pgerr.InvalidParameterValue, err, "could not decode bind parameter"))
			return
		}
		args[i] = v
	}

	arrayExpandedSQL, arrayConsumed, err := translate.ExpandArrayParams(stmt.Translated.SQL, msg.Parameters)
	if err != nil {
		h.enterSkip(pgerr.Wrap(pgerr.InvalidParameterValue, err, "could not expand ANY($n) array parameter"))
		return
	}

	effectiveSQL, consumed, _, err := vectoropt.Rewrite(arrayExpandedSQL, msg.Parameters, h.vectorColumnType(stmt))
	if err != nil {
		h.enterSkip(err)
		return
	}
	effectiveArgs := make([]any, 0, len(args))
	for i, a := range args {
		if consumed[i+1] || arrayConsumed[i+1] {
			continue
		}
		effectiveArgs = append(effectiveArgs, a)
	}

	if existing, ok := h.portals[msg.DestinationPortal]; ok {
		closePortal(existing)
	}

	portal := &Portal{
		Name:              msg.DestinationPortal,
		SourceStatement:   stmt.OriginalSQL,
		ParamFormatCodes:  append([]int16(nil), msg.ParameterFormatCodes...),
		ResultFormatCodes: append([]int16(nil), msg.ResultFormatCodes...),
		IsCatalog:         stmt.IsCatalog,
	}

	if stmt.IsCatalog {
		rs, err := h.server.catalogEmu.Execute(h.ctx, effectiveSQL)
		if err != nil {
			h.enterSkip(err)
			return
		}
		portal.Fields = catalogFieldDescriptions(rs.Columns)
		portal.catalogRows = rs.Rows
	} else {
		start := time.Now()
		descs, it, cancelFn, err := h.beConn.Execute(h.ctx, effectiveSQL, effectiveArgs)
		if h.server.metricsCollector != nil {
			h.server.metricsCollector.QueryDuration("bind", time.Since(start))
		}
		if err != nil {
			h.enterSkip(err)
			return
		}
		portal.Fields = columnFieldDescriptions(descs, portal.ResultFormatCodes)
		portal.iterator = it
		portal.cancelFn = cancelFn
	}

	h.portals[msg.DestinationPortal] = portal
	h.mustSend(&pgproto3.BindComplete{})
}

func (h *ConnectionHandler) handleDescribe(msg *pgproto3.Describe) {
	switch msg.ObjectType {
	case 'S':
		stmt, ok := h.preparedStatements[msg.Name]
		if !ok || stmt.Closed {
			h.enterSkip(pgerr.Newf(pgerr.InvalidSQLStatementName, "prepared statement %q does not exist", msg.Name))
			return
		}
		h.mustSend(&pgproto3.ParameterDescription{ParameterOIDs: stmt.ParamOIDs})
		// Columns for a statement are only known once it is bound
		// (database/sql exposes no separate prepare/plan step), so
		// Describe(Statement) reports NoData here; Describe(Portal)
		// after Bind is the accurate path (spec §4.10).
		h.mustSend(&pgproto3.NoData{})

	case 'P':
		portal, ok := h.portals[msg.Name]
		if !ok || portal.Closed {
			h.enterSkip(pgerr.Newf(pgerr.InvalidSQLStatementName, "portal %q does not exist", msg.Name))
			return
		}
		if len(portal.Fields) == 0 {
			h.mustSend(&pgproto3.NoData{})
			return
		}
		h.mustSend(&pgproto3.RowDescription{Fields: portal.Fields})

	default:
		h.enterSkip(pgerr.Newf(pgerr.ProtocolViolation, "unknown Describe object type %q", msg.ObjectType))
	}
}

func (h *ConnectionHandler) handleExecute(msg *pgproto3.Execute) {
	portal, ok := h.portals[msg.Portal]
	if !ok || portal.Closed {
		h.enterSkip(pgerr.Newf(pgerr.InvalidSQLStatementName, "portal %q does not exist", msg.Portal))
		return
	}

	maxRows := int64(msg.MaxRows)
	var rowCount int64

	if portal.IsCatalog {
		for maxRows == 0 || rowCount < maxRows {
			if int(portal.rowsSoFar) >= len(portal.catalogRows) {
				portal.exhausted = true
				break
			}
			row := portal.catalogRows[portal.rowsSoFar]
			portal.rowsSoFar++
			data, err := h.encodeRow(row, portal.Fields, portal.ResultFormatCodes)
			if err != nil {
				h.enterSkip(err)
				return
			}
			if err := h.send(&pgproto3.DataRow{Values: data}); err != nil {
				panic(err)
			}
			rowCount++
		}
	} else {
		for maxRows == 0 || rowCount < maxRows {
			if !portal.iterator.Next() {
				if err := portal.iterator.Err(); err != nil {
					h.enterSkip(err)
					return
				}
				portal.exhausted = true
				break
			}
			vals, err := portal.iterator.Scan()
			if err != nil {
				h.enterSkip(err)
				return
			}
			data, err := h.encodeRow(vals, portal.Fields, portal.ResultFormatCodes)
			if err != nil {
				h.enterSkip(err)
				return
			}
			if err := h.send(&pgproto3.DataRow{Values: data}); err != nil {
				panic(err)
			}
			rowCount++
			portal.rowsSoFar++
		}
	}

	if !portal.exhausted && maxRows != 0 {
		h.mustSend(&pgproto3.PortalSuspended{})
		return
	}

	tag := statementTag(portal.SourceStatement)
	h.mustSend(&pgproto3.CommandComplete{CommandTag: []byte(commandTag(tag, portal.rowsSoFar))})
}

func (h *ConnectionHandler) handleClose(msg *pgproto3.Close) {
	switch msg.ObjectType {
	case 'S':
		if stmt, ok := h.preparedStatements[msg.Name]; ok {
			stmt.Closed = true
			delete(h.preparedStatements, msg.Name)
		}
	case 'P':
		if p, ok := h.portals[msg.Name]; ok {
			closePortal(p)
			delete(h.portals, msg.Name)
		}
	}
	h.mustSend(&pgproto3.CloseComplete{})
}

func closePortal(p *Portal) {
	p.Closed = true
	if p.iterator != nil {
		_ = p.iterator.Close()
	}
}

// ---- shared encode/decode helpers ----

func formatCodeAt(codes []int16, i int) int16 {
	if len(codes) == 0 {
		return 0
	}
	if len(codes) == 1 {
		return codes[0]
	}
	if i < len(codes) {
		return codes[i]
	}
	return 0
}

func decodeBindParam(reg *typecodec.Registry, raw []byte, oid uint32, formatCode int16) (any, error) {
	if raw == nil {
		return nil, nil
	}
	codec, ok := reg.Lookup(oid)
	if !ok {
		return string(raw), nil
	}
	if formatCode == 1 {
		if codec.BinaryDecode == nil {
			return raw, nil
		}
		v, err := codec.BinaryDecode(raw)
		if err != nil {
			return nil, err
		}
		return valueToDriverArg(v), nil
	}
	if codec.TextDecode == nil {
		return string(raw), nil
	}
	v, err := codec.TextDecode(string(raw))
	if err != nil {
		return nil, err
	}
	return valueToDriverArg(v), nil
}

func valueToDriverArg(v typecodec.Value) any {
	switch v.Kind {
	case typecodec.KindNull:
		return nil
	case typecodec.KindBool:
		return v.Bool
	case typecodec.KindInt:
		return v.Int
	case typecodec.KindFloat:
		return v.Float
	case typecodec.KindBytes:
		return v.Bytes
	case typecodec.KindTimestamp:
		return typecodec.PGMicrosToTime(v.Timestamp)
	case typecodec.KindDate:
		return typecodec.PGDaysToTime(v.Date)
	default:
		return v.String()
	}
}

func columnFieldDescriptions(descs []backend.ColumnDescriptor, resultFormatCodes []int16) []pgproto3.FieldDescription {
	out := make([]pgproto3.FieldDescription, len(descs))
	for i, d := range descs {
		out[i] = pgproto3.FieldDescription{
			Name:         []byte(d.Name),
			DataTypeOID:  d.OID,
			DataTypeSize: typeSize(d.OID),
			TypeModifier: -1,
			Format:       formatCodeAt(resultFormatCodes, i),
		}
	}
	return out
}

func catalogFieldDescriptions(cols []catalog.Column) []pgproto3.FieldDescription {
	out := make([]pgproto3.FieldDescription, len(cols))
	for i, c := range cols {
		out[i] = pgproto3.FieldDescription{
			Name:         []byte(c.Name),
			DataTypeOID:  c.OID,
			DataTypeSize: typeSize(c.OID),
			TypeModifier: -1,
		}
	}
	return out
}

func typeSize(oid uint32) int16 {
	switch oid {
	case typecodec.OIDBool:
		return 1
	case typecodec.OIDInt2:
		return 2
	case typecodec.OIDInt4, typecodec.OIDFloat4, typecodec.OIDDate:
		return 4
	case typecodec.OIDInt8, typecodec.OIDFloat8, typecodec.OIDTimestamp, typecodec.OIDTimestamptz:
		return 8
	default:
		return -1
	}
}

func (h *ConnectionHandler) encodeRow(vals []typecodec.Value, fields []pgproto3.FieldDescription, resultFormatCodes []int16) ([][]byte, error) {
	reg := h.server.typeRegistry
	out := make([][]byte, len(vals))
	for i, v := range vals {
		oid := uint32(typecodec.OIDText)
		if i < len(fields) {
			oid = fields[i].DataTypeOID
		}
		fc := formatCodeAt(resultFormatCodes, i)
		var (
			b   []byte
			err error
		)
		if fc == 1 {
			b, err = reg.EncodeBinary(oid, v)
			if err != nil {
				// No binary encoder for this OID: fall back to text
				// rather than faulting the whole row (documented
				// simplification; numeric/time remain text-only).
				b, err = reg.EncodeText(oid, v)
			}
		} else {
			b, err = reg.EncodeText(oid, v)
		}
		if err != nil {
			return nil, pgerr.Wrap(pgerr.InternalError, err, "encoding result value")
		}
		out[i] = b
	}
	return out, nil
}

var (
	vectorColumnRe = regexp.MustCompile(`(?i)VECTOR_(?:COSINE|DOT_PRODUCT)\(\s*([A-Za-z_][A-Za-z0-9_.]*)\s*,\s*TO_VECTOR\(`)
	fromTableRe    = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_][A-Za-z0-9_.]*)`)
)

// vectorColumnType resolves the declared IRIS vector element type of the
// column being ordered by TO_VECTOR($n, TYPE), so vectoropt.Rewrite can
// catch a client-declared TYPE that doesn't match the column (spec
// §4.5). It looks up the portal's target table (the first FROM operand)
// and the column being compared (the left argument of the
// VECTOR_COSINE/VECTOR_DOT_PRODUCT call the translator already produced
// from the pgvector operator) against IRIS's own INFORMATION_SCHEMA.
// Returns "" - vectoropt's mismatch check is then skipped rather than
// failing the query - whenever the statement has no such ORDER BY
// clause, or the lookup can't resolve a column.
func (h *ConnectionHandler) vectorColumnType(stmt *PreparedStatement) string {
	sql := stmt.Translated.SQL
	if !strings.Contains(strings.ToUpper(sql), "TO_VECTOR(") {
		return ""
	}
	colMatch := vectorColumnRe.FindStringSubmatch(sql)
	tableMatch := fromTableRe.FindStringSubmatch(sql)
	if colMatch == nil || tableMatch == nil {
		return ""
	}
	column := lastIdentSegment(colMatch[1])
	table := lastIdentSegment(tableMatch[1])

	rows, err := h.server.pool.QueryRows(h.ctx, fmt.Sprintf(
		"SELECT DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = '%s' AND COLUMN_NAME = '%s'",
		table, column))
	if err != nil || len(rows) == 0 {
		return ""
	}
	return vectorElementType(rows[0]["DATA_TYPE"])
}

// lastIdentSegment strips a schema qualifier off a possibly-qualified
// identifier, e.g. "SQLUser.docs" -> "docs".
func lastIdentSegment(ident string) string {
	if i := strings.LastIndexByte(ident, '.'); i >= 0 {
		return ident[i+1:]
	}
	return ident
}

// vectorElementType pulls the element type out of IRIS's VECTOR(TYPE,n)
// column type descriptor, e.g. "VECTOR(DOUBLE,768)" -> "DOUBLE".
func vectorElementType(dataType string) string {
	dataType = strings.ToUpper(strings.TrimSpace(dataType))
	open := strings.IndexByte(dataType, '(')
	if open < 0 {
		return ""
	}
	inner := dataType[open+1:]
	if comma := strings.IndexByte(inner, ','); comma >= 0 {
		inner = inner[:comma]
	} else if close := strings.IndexByte(inner, ')'); close >= 0 {
		inner = inner[:close]
	}
	return strings.TrimSpace(inner)
}

// statementTag guesses the PostgreSQL command tag keyword for a raw SQL
// statement without a SQL parser: the first token, upper-cased. Good
// enough for CommandComplete's tag prefix; row-count suffixing is
// handled by commandTag.
func statementTag(sql string) string {
	trimmed := strings.TrimSpace(sql)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// commandTag appends the row-count suffix PostgreSQL clients expect for
// each command tag (spec §4.10 CommandComplete).
func commandTag(tag string, rows int64) string {
	switch tag {
	case "INSERT":
		return fmt.Sprintf("INSERT 0 %d", rows)
	case "SELECT", "FETCH", "UPDATE", "DELETE", "MERGE":
		return fmt.Sprintf("%s %d", tag, rows)
	case "":
		return "OK"
	default:
		return tag
	}
}

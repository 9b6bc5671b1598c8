// Package catalog intercepts queries against pg_catalog and
// information_schema relations and synthesizes PostgreSQL-shaped result
// sets from IRIS's own INFORMATION_SCHEMA (spec §4.6). Detection is a
// token-level scan for the relation names rather than full SQL parsing,
// the same approach the teacher's catalog-detection pattern follows
// (ha1tch-aulsql's storage.SystemCatalog.IsSystemQuery).
package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/intersystems-community/iris-pgwire-sub007/oidgen"
	"github.com/intersystems-community/iris-pgwire-sub007/pgerr"
	"github.com/intersystems-community/iris-pgwire-sub007/schemamap"
	"github.com/intersystems-community/iris-pgwire-sub007/typecodec"
)

// relationNames is the minimum relation coverage from spec §4.6.
var relationNames = []string{
	"pg_namespace",
	"pg_class",
	"pg_attribute",
	"pg_type",
	"pg_constraint",
	"pg_index",
	"pg_attrdef",
	"pg_depend",
	"information_schema.tables",
	"information_schema.columns",
	"information_schema.table_constraints",
	"information_schema.key_column_usage",
	"information_schema.referential_constraints",
}

// IsCatalogQuery reports whether sql references any emulated relation.
// Per spec §4.6, mixed joins across emulated and real tables are not
// supported. The connection handler routes every query this reports
// true for to the emulator; a query that also names real tables is
// answered from the emulated relation alone, and the real tables are
// not read.
func IsCatalogQuery(sql string) bool {
	normalized := strings.ToLower(sql)
	for _, name := range relationNames {
		if strings.Contains(normalized, name) {
			return true
		}
	}
	return false
}

// Row is one synthesized catalog row, column-ordered to match the
// relation's declared Column list.
type Row []typecodec.Value

// Column describes one output column of an emulated relation.
type Column struct {
	Name string
	OID  uint32
}

// ResultSet is a synthesized relation's shape and data.
type ResultSet struct {
	Columns []Column
	Rows    []Row
}

// Backend is the minimal query surface the catalog emulator needs from
// the backend executor: plain string-keyed rows from IRIS's own
// INFORMATION_SCHEMA, the source data every row producer below
// reshapes into PostgreSQL's catalog column layout.
type Backend interface {
	QueryRows(ctx context.Context, sql string) ([]map[string]string, error)
}

// Emulator owns the OID generator used to assign stable OIDs to IRIS
// objects that have none (namespaces, tables, columns, constraints,
// indexes) and dispatches relation queries to the matching row
// producer.
type Emulator struct {
	oids    *oidgen.Generator
	backend Backend
}

// New builds an Emulator backed by the given IRIS query surface.
func New(backend Backend, oids *oidgen.Generator) *Emulator {
	return &Emulator{backend: backend, oids: oids}
}

// Execute answers a catalog query. sql is used only for relation
// detection (which relation(s) it mentions); row producers issue their
// own fixed queries against IRIS INFORMATION_SCHEMA rather than
// attempting to translate the caller's predicates, matching spec §4.6's
// "For each supported relation the emulator owns a schema and a row
// producer."
func (e *Emulator) Execute(ctx context.Context, sql string) (*ResultSet, error) {
	normalized := strings.ToLower(sql)

	switch {
	case strings.Contains(normalized, "information_schema.columns"):
		return e.informationSchemaColumns(ctx)
	case strings.Contains(normalized, "information_schema.table_constraints"):
		return e.informationSchemaTableConstraints(ctx)
	case strings.Contains(normalized, "information_schema.key_column_usage"):
		return e.informationSchemaKeyColumnUsage(ctx)
	case strings.Contains(normalized, "information_schema.referential_constraints"):
		return e.informationSchemaReferentialConstraints(ctx)
	case strings.Contains(normalized, "information_schema.tables"):
		return e.informationSchemaTables(ctx)
	case strings.Contains(normalized, "pg_namespace"):
		return e.pgNamespace(ctx)
	case strings.Contains(normalized, "pg_attribute"):
		return e.pgAttribute(ctx)
	case strings.Contains(normalized, "pg_class"):
		return e.pgClass(ctx)
	case strings.Contains(normalized, "pg_type"):
		return e.pgType(ctx)
	case strings.Contains(normalized, "pg_constraint"):
		return e.pgConstraint(ctx)
	case strings.Contains(normalized, "pg_index"):
		return e.pgIndex(ctx)
	case strings.Contains(normalized, "pg_attrdef"):
		return e.pgAttrdef(ctx)
	case strings.Contains(normalized, "pg_depend"):
		return e.pgDepend(ctx)
	}
	return nil, pgerr.FeatureNotSupportedf("unrecognized catalog relation in query")
}

func textVal(s string) typecodec.Value  { return typecodec.Value{Kind: typecodec.KindText, Text: s} }
func intVal(n int64) typecodec.Value    { return typecodec.Value{Kind: typecodec.KindInt, Int: n} }
func boolVal(b bool) typecodec.Value    { return typecodec.Value{Kind: typecodec.KindBool, Bool: b} }
func nullVal() typecodec.Value          { return typecodec.Value{Kind: typecodec.KindNull} }

// rewriteSchema applies the SQLUser -> public output mapping (spec
// §4.6's "schema names SQLUser are rewritten to public") to a single
// schema-name cell.
func rewriteSchema(name string) string {
	rows := [][]string{{name}}
	schemamap.TranslateOutputRows(rows, []string{"nspname"})
	return rows[0][0]
}

func (e *Emulator) pgNamespace(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "oid", OID: typecodec.OIDInt4},
		{Name: "nspname", OID: typecodec.OIDText},
		{Name: "nspowner", OID: typecodec.OIDInt4},
	}}
	for _, ns := range []string{"public", "%SYS"} {
		iris := ns
		if ns == "public" {
			iris = "SQLUser"
		}
		oid := e.oids.OID("", oidgen.KindNamespace, iris)
		rs.Rows = append(rs.Rows, Row{intVal(int64(oid)), textVal(rewriteSchema(iris)), intVal(0)})
	}
	return rs, nil
}

func (e *Emulator) pgClass(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "oid", OID: typecodec.OIDInt4},
		{Name: "relname", OID: typecodec.OIDText},
		{Name: "relnamespace", OID: typecodec.OIDInt4},
		{Name: "relkind", OID: typecodec.OIDText},
		{Name: "relnatts", OID: typecodec.OIDInt2},
	}}
	tables, err := e.backend.QueryRows(ctx, `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.TABLES")
	}
	nsOID := e.oids.OID("", oidgen.KindNamespace, "SQLUser")
	for _, t := range tables {
		name := t["TABLE_NAME"]
		kind := "r"
		if strings.EqualFold(t["TABLE_TYPE"], "VIEW") {
			kind = "v"
		}
		oid := e.oids.OID("SQLUser", oidgen.KindTable, name)
		natts := e.columnCount(ctx, name)
		rs.Rows = append(rs.Rows, Row{intVal(int64(oid)), textVal(name), intVal(int64(nsOID)), textVal(kind), intVal(int64(natts))})
	}
	return rs, nil
}

func (e *Emulator) columnCount(ctx context.Context, table string) int {
	rows, err := e.backend.QueryRows(ctx, `SELECT COUNT(*) AS N FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = 'SQLUser' AND TABLE_NAME = '`+table+`'`)
	if err != nil || len(rows) == 0 {
		return 0
	}
	n := 0
	for _, c := range rows[0]["N"] {
		n = n*10 + int(c-'0')
	}
	return n
}

func (e *Emulator) pgAttribute(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "attrelid", OID: typecodec.OIDInt4},
		{Name: "attname", OID: typecodec.OIDText},
		{Name: "atttypid", OID: typecodec.OIDInt4},
		{Name: "attnum", OID: typecodec.OIDInt2},
		{Name: "attnotnull", OID: typecodec.OIDBool},
	}}
	cols, err := e.backend.QueryRows(ctx, `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, ORDINAL_POSITION, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.COLUMNS")
	}
	for _, c := range cols {
		tableOID := e.oids.OID("SQLUser", oidgen.KindTable, c["TABLE_NAME"])
		typeOID := pgTypeOIDForIRISType(c["DATA_TYPE"])
		notNull := strings.EqualFold(c["IS_NULLABLE"], "NO")
		pos := atoi(c["ORDINAL_POSITION"])
		rs.Rows = append(rs.Rows, Row{
			intVal(int64(tableOID)), textVal(c["COLUMN_NAME"]), intVal(int64(typeOID)),
			intVal(int64(pos)), boolVal(notNull),
		})
	}
	return rs, nil
}

func (e *Emulator) pgType(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "oid", OID: typecodec.OIDInt4},
		{Name: "typname", OID: typecodec.OIDText},
		{Name: "typnamespace", OID: typecodec.OIDInt4},
	}}
	pgNS := e.oids.OID("", oidgen.KindNamespace, "pg_catalog")
	for _, t := range []struct {
		oid  uint32
		name string
	}{
		{typecodec.OIDBool, "bool"}, {typecodec.OIDInt2, "int2"}, {typecodec.OIDInt4, "int4"},
		{typecodec.OIDInt8, "int8"}, {typecodec.OIDText, "text"}, {typecodec.OIDVarchar, "varchar"},
		{typecodec.OIDFloat4, "float4"}, {typecodec.OIDFloat8, "float8"}, {typecodec.OIDDate, "date"},
		{typecodec.OIDTimestamp, "timestamp"}, {typecodec.OIDTimestamptz, "timestamptz"},
		{typecodec.OIDNumeric, "numeric"}, {typecodec.OIDUUID, "uuid"}, {typecodec.VectorOID, "vector"},
	} {
		rs.Rows = append(rs.Rows, Row{intVal(int64(t.oid)), textVal(t.name), intVal(int64(pgNS))})
	}
	return rs, nil
}

func (e *Emulator) pgConstraint(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "oid", OID: typecodec.OIDInt4},
		{Name: "conname", OID: typecodec.OIDText},
		{Name: "conrelid", OID: typecodec.OIDInt4},
		{Name: "contype", OID: typecodec.OIDText},
	}}
	cons, err := e.backend.QueryRows(ctx, `SELECT CONSTRAINT_NAME, TABLE_NAME, CONSTRAINT_TYPE FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.TABLE_CONSTRAINTS")
	}
	for _, c := range cons {
		name := c["CONSTRAINT_NAME"]
		if name == "" {
			// IRIS leaves some constraints (e.g. inline PRIMARY KEY
			// clauses) unnamed; PostgreSQL's pg_constraint.conname is
			// NOT NULL, so an unnamed constraint needs a synthesized
			// surrogate rather than an empty string.
			name = "anon_constraint_" + uuid.New().String()
		}
		oid := e.oids.OID("SQLUser", oidgen.KindConstraint, name)
		tableOID := e.oids.OID("SQLUser", oidgen.KindTable, c["TABLE_NAME"])
		rs.Rows = append(rs.Rows, Row{intVal(int64(oid)), textVal(name), intVal(int64(tableOID)), textVal(constraintTypeCode(c["CONSTRAINT_TYPE"]))})
	}
	return rs, nil
}

func constraintTypeCode(irisType string) string {
	switch strings.ToUpper(irisType) {
	case "PRIMARY KEY":
		return "p"
	case "FOREIGN KEY":
		return "f"
	case "UNIQUE":
		return "u"
	case "CHECK":
		return "c"
	default:
		return "x"
	}
}

// pgIndex has no reliable IRIS source (spec §4.6: "where IRIS lacks
// data... returns a conservative empty set"); %Dictionary.CompiledIndex
// access requires embedded-mode privileges this gateway does not assume.
func (e *Emulator) pgIndex(ctx context.Context) (*ResultSet, error) {
	return &ResultSet{Columns: []Column{
		{Name: "indexrelid", OID: typecodec.OIDInt4},
		{Name: "indrelid", OID: typecodec.OIDInt4},
		{Name: "indisunique", OID: typecodec.OIDBool},
		{Name: "indisprimary", OID: typecodec.OIDBool},
	}}, nil
}

func (e *Emulator) pgAttrdef(ctx context.Context) (*ResultSet, error) {
	return &ResultSet{Columns: []Column{
		{Name: "oid", OID: typecodec.OIDInt4},
		{Name: "adrelid", OID: typecodec.OIDInt4},
		{Name: "adnum", OID: typecodec.OIDInt2},
		{Name: "adsrc", OID: typecodec.OIDText},
	}}, nil
}

func (e *Emulator) pgDepend(ctx context.Context) (*ResultSet, error) {
	return &ResultSet{Columns: []Column{
		{Name: "classid", OID: typecodec.OIDInt4},
		{Name: "objid", OID: typecodec.OIDInt4},
		{Name: "refclassid", OID: typecodec.OIDInt4},
		{Name: "refobjid", OID: typecodec.OIDInt4},
	}}, nil
}

func (e *Emulator) informationSchemaTables(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "table_catalog", OID: typecodec.OIDText},
		{Name: "table_schema", OID: typecodec.OIDText},
		{Name: "table_name", OID: typecodec.OIDText},
		{Name: "table_type", OID: typecodec.OIDText},
	}}
	tables, err := e.backend.QueryRows(ctx, `SELECT TABLE_CATALOG, TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.TABLES")
	}
	for _, t := range tables {
		rs.Rows = append(rs.Rows, Row{
			textVal(t["TABLE_CATALOG"]), textVal(rewriteSchema(t["TABLE_SCHEMA"])),
			textVal(t["TABLE_NAME"]), textVal(t["TABLE_TYPE"]),
		})
	}
	return rs, nil
}

func (e *Emulator) informationSchemaColumns(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "table_schema", OID: typecodec.OIDText},
		{Name: "table_name", OID: typecodec.OIDText},
		{Name: "column_name", OID: typecodec.OIDText},
		{Name: "data_type", OID: typecodec.OIDText},
		{Name: "is_nullable", OID: typecodec.OIDText},
		{Name: "ordinal_position", OID: typecodec.OIDInt4},
	}}
	cols, err := e.backend.QueryRows(ctx, `SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE, ORDINAL_POSITION FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.COLUMNS")
	}
	for _, c := range cols {
		rs.Rows = append(rs.Rows, Row{
			textVal(rewriteSchema(c["TABLE_SCHEMA"])), textVal(c["TABLE_NAME"]), textVal(c["COLUMN_NAME"]),
			textVal(pgTypeNameForIRISType(c["DATA_TYPE"])), textVal(c["IS_NULLABLE"]), intVal(int64(atoi(c["ORDINAL_POSITION"]))),
		})
	}
	return rs, nil
}

func (e *Emulator) informationSchemaTableConstraints(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "table_schema", OID: typecodec.OIDText},
		{Name: "table_name", OID: typecodec.OIDText},
		{Name: "constraint_name", OID: typecodec.OIDText},
		{Name: "constraint_type", OID: typecodec.OIDText},
	}}
	cons, err := e.backend.QueryRows(ctx, `SELECT TABLE_SCHEMA, TABLE_NAME, CONSTRAINT_NAME, CONSTRAINT_TYPE FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.TABLE_CONSTRAINTS")
	}
	for _, c := range cons {
		rs.Rows = append(rs.Rows, Row{
			textVal(rewriteSchema(c["TABLE_SCHEMA"])), textVal(c["TABLE_NAME"]),
			textVal(c["CONSTRAINT_NAME"]), textVal(c["CONSTRAINT_TYPE"]),
		})
	}
	return rs, nil
}

func (e *Emulator) informationSchemaKeyColumnUsage(ctx context.Context) (*ResultSet, error) {
	rs := &ResultSet{Columns: []Column{
		{Name: "table_schema", OID: typecodec.OIDText},
		{Name: "table_name", OID: typecodec.OIDText},
		{Name: "column_name", OID: typecodec.OIDText},
		{Name: "constraint_name", OID: typecodec.OIDText},
		{Name: "ordinal_position", OID: typecodec.OIDInt4},
	}}
	rows, err := e.backend.QueryRows(ctx, `SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, CONSTRAINT_NAME, ORDINAL_POSITION FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = 'SQLUser'`)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.InternalError, err, "querying INFORMATION_SCHEMA.KEY_COLUMN_USAGE")
	}
	for _, c := range rows {
		rs.Rows = append(rs.Rows, Row{
			textVal(rewriteSchema(c["TABLE_SCHEMA"])), textVal(c["TABLE_NAME"]), textVal(c["COLUMN_NAME"]),
			textVal(c["CONSTRAINT_NAME"]), intVal(int64(atoi(c["ORDINAL_POSITION"]))),
		})
	}
	return rs, nil
}

// informationSchemaReferentialConstraints has no dependable IRIS
// equivalent for the unique_constraint_name/match_option/update_rule
// columns, so it returns an empty, correctly-shaped result set, the
// same conservative fallback pg_index uses.
func (e *Emulator) informationSchemaReferentialConstraints(ctx context.Context) (*ResultSet, error) {
	return &ResultSet{Columns: []Column{
		{Name: "constraint_schema", OID: typecodec.OIDText},
		{Name: "constraint_name", OID: typecodec.OIDText},
		{Name: "unique_constraint_name", OID: typecodec.OIDText},
		{Name: "update_rule", OID: typecodec.OIDText},
		{Name: "delete_rule", OID: typecodec.OIDText},
	}}, nil
}

func pgTypeOIDForIRISType(irisType string) uint32 {
	switch strings.ToUpper(irisType) {
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
	case "VARCHAR", "VARCHAR2":
		return typecodec.OIDVarchar
	case "DATE":
		return typecodec.OIDDate
	case "TIMESTAMP":
		return typecodec.OIDTimestamp
	case "NUMERIC", "DECIMAL":
		return typecodec.OIDNumeric
	case "VECTOR":
		return typecodec.VectorOID
	case "BIT", "BOOLEAN":
		return typecodec.OIDBool
	default:
		return typecodec.OIDText
	}
}

func pgTypeNameForIRISType(irisType string) string {
	switch strings.ToUpper(irisType) {
	case "BIGINT":
		return "bigint"
	case "INTEGER", "INT":
		return "integer"
	case "SMALLINT", "TINYINT":
		return "smallint"
	case "DOUBLE", "DOUBLE PRECISION":
		return "double precision"
	case "REAL", "FLOAT":
		return "real"
	case "VARCHAR", "VARCHAR2":
		return "character varying"
	case "DATE":
		return "date"
	case "TIMESTAMP":
		return "timestamp without time zone"
	case "NUMERIC", "DECIMAL":
		return "numeric"
	case "VECTOR":
		return "vector"
	case "BIT", "BOOLEAN":
		return "boolean"
	default:
		return "text"
	}
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

var _ = nullVal

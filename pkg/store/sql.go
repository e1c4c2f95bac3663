package store

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cuemby/caravan/pkg/types"
)

// Catalog queries over information_schema. Declared constraints only.
const (
	listTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`

	listColumnsSQL = `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	listPrimaryKeySQL = `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = $1
  AND tc.table_name = $2
  AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`

	listForeignKeysSQL = `
SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name
 AND tc.table_schema = ccu.table_schema
WHERE tc.table_schema = $1
  AND tc.table_name = $2
  AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY tc.constraint_name, kcu.ordinal_position`
)

// LogicalTypeOf maps an information_schema data_type to the staging
// type vocabulary. Unrecognized types stage as strings.
func LogicalTypeOf(dataType string) types.LogicalType {
	switch strings.ToLower(dataType) {
	case "smallint", "integer", "bigint":
		return types.TypeInt
	case "real", "double precision", "numeric", "decimal", "money":
		return types.TypeFloat
	case "boolean":
		return types.TypeBool
	case "timestamp without time zone", "timestamp with time zone":
		return types.TypeTimestamp
	case "date":
		return types.TypeDate
	case "bytea":
		return types.TypeBinary
	default:
		return types.TypeString
	}
}

func quoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// SelectFilteredSQL builds the tenant-scoped read for one table. With
// an empty path the filter column must be on the table itself;
// otherwise the path is rendered as INNER JOINs from the table out to
// the ancestor carrying the column. Each hop joins its parent on the
// parent's id column.
func SelectFilteredSQL(table types.TableSchema, filterKey string, path []types.JoinHop) string {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = "t." + quoteIdent(c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s t",
		strings.Join(cols, ", "), quoteIdent(table.Schema, table.Name))

	prev := "t"
	for i, hop := range path {
		alias := fmt.Sprintf("j%d", i+1)
		fmt.Fprintf(&b, " JOIN %s %s ON %s.%s = %s.%s",
			quoteIdent(table.Schema, hop.Table), alias,
			prev, quoteIdent(hop.FKColumn),
			alias, quoteIdent("id"))
		prev = alias
	}

	fmt.Fprintf(&b, " WHERE %s.%s = $1", prev, quoteIdent(filterKey))
	return b.String()
}

// InsertSQL builds a plain single-row INSERT with positional
// placeholders in column order
func InsertSQL(schema, table string, columns []string) string {
	quoted := make([]string, len(columns))
	holders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		holders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(schema, table), strings.Join(quoted, ", "), strings.Join(holders, ", "))
}

// UpsertSQL builds the conflict-tolerant variant: ON CONFLICT on the
// conflict columns, updating every other column from EXCLUDED. With
// nothing left to update it degrades to DO NOTHING.
func UpsertSQL(schema, table string, columns, conflictColumns []string) string {
	conflict := make(map[string]bool, len(conflictColumns))
	quotedConflict := make([]string, len(conflictColumns))
	for i, c := range conflictColumns {
		conflict[c] = true
		quotedConflict[i] = quoteIdent(c)
	}

	var sets []string
	for _, c := range columns {
		if conflict[c] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}

	base := InsertSQL(schema, table, columns)
	if len(sets) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", base, strings.Join(quotedConflict, ", "))
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		base, strings.Join(quotedConflict, ", "), strings.Join(sets, ", "))
}

// DeleteByTenantSQL builds the rollback delete for one table
func DeleteByTenantSQL(schema, table, filterKey string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		quoteIdent(schema, table), quoteIdent(filterKey))
}

// ConflictColumns picks the upsert conflict target: the declared
// primary key, falling back to a lone id column
func ConflictColumns(table types.TableSchema) []string {
	if len(table.PrimaryKey) > 0 {
		return table.PrimaryKey
	}
	if table.HasColumn("id") {
		return []string{"id"}
	}
	return nil
}

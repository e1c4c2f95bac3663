package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// Postgres implements Relational over a pgx connection pool
type Postgres struct {
	pool   *pgxpool.Pool
	store  string
	logger zerolog.Logger
}

// ConnectPostgres opens and pings a pool for one store
func ConnectPostgres(ctx context.Context, storeID string, creds config.Credentials) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, creds.DSN())
	if err != nil {
		return nil, errtag.Connection.New("connecting to %s: %v", storeID, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errtag.Connection.New("pinging %s at %s: %v", storeID, creds.Host, err)
	}
	return &Postgres{
		pool:   pool,
		store:  storeID,
		logger: log.WithStore(storeID),
	}, nil
}

// Close releases the pool
func (p *Postgres) Close() { p.pool.Close() }

// Introspect reads tables, columns, primary keys, and declared foreign
// keys for one schema
func (p *Postgres) Introspect(ctx context.Context, schema string) ([]types.TableSchema, error) {
	rows, err := p.pool.Query(ctx, listTablesSQL, schema)
	if err != nil {
		return nil, errtag.Schema.New("%s: listing tables: %v", p.store, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errtag.Schema.New("%s: listing tables: %v", p.store, err)
	}

	tables := make([]types.TableSchema, 0, len(names))
	for _, name := range names {
		t, err := p.introspectTable(ctx, schema, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	p.logger.Debug().Str("schema", schema).Int("tables", len(tables)).Msg("Introspection complete")
	return tables, nil
}

func (p *Postgres) introspectTable(ctx context.Context, schema, name string) (types.TableSchema, error) {
	t := types.TableSchema{Store: p.store, Schema: schema, Name: name}

	rows, err := p.pool.Query(ctx, listColumnsSQL, schema, name)
	if err != nil {
		return t, errtag.Schema.New("%s.%s: reading columns: %v", p.store, name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var col, dataType, nullable string
		if err := rows.Scan(&col, &dataType, &nullable); err != nil {
			return t, errtag.Schema.New("%s.%s: reading columns: %v", p.store, name, err)
		}
		t.Columns = append(t.Columns, types.ColumnSchema{
			Name:     col,
			Type:     LogicalTypeOf(dataType),
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return t, errtag.Schema.New("%s.%s: reading columns: %v", p.store, name, err)
	}

	pkRows, err := p.pool.Query(ctx, listPrimaryKeySQL, schema, name)
	if err != nil {
		return t, errtag.Schema.New("%s.%s: reading primary key: %v", p.store, name, err)
	}
	t.PrimaryKey, err = pgx.CollectRows(pkRows, pgx.RowTo[string])
	if err != nil {
		return t, errtag.Schema.New("%s.%s: reading primary key: %v", p.store, name, err)
	}

	fkRows, err := p.pool.Query(ctx, listForeignKeysSQL, schema, name)
	if err != nil {
		return t, errtag.Schema.New("%s.%s: reading foreign keys: %v", p.store, name, err)
	}
	defer fkRows.Close()

	// Multi-column FKs arrive as multiple rows per constraint name
	byConstraint := make(map[string]*types.ForeignKey)
	var order []string
	for fkRows.Next() {
		var constraint, fromCol, toTable, toCol string
		if err := fkRows.Scan(&constraint, &fromCol, &toTable, &toCol); err != nil {
			return t, errtag.Schema.New("%s.%s: reading foreign keys: %v", p.store, name, err)
		}
		fk, ok := byConstraint[constraint]
		if !ok {
			fk = &types.ForeignKey{ToTable: fmt.Sprintf("%s.%s.%s", p.store, schema, toTable)}
			byConstraint[constraint] = fk
			order = append(order, constraint)
		}
		fk.FromColumns = append(fk.FromColumns, fromCol)
		fk.ToColumns = append(fk.ToColumns, toCol)
	}
	if err := fkRows.Err(); err != nil {
		return t, errtag.Schema.New("%s.%s: reading foreign keys: %v", p.store, name, err)
	}
	for _, c := range order {
		t.ForeignKeys = append(t.ForeignKeys, *byConstraint[c])
	}
	return t, nil
}

// ReadFiltered streams the tenant's rows of one table into a staging
// table. Cancellation is observed between rows.
func (p *Postgres) ReadFiltered(ctx context.Context, table types.TableSchema, filter types.TenantFilter, path []types.JoinHop) (*stage.Table, error) {
	if !table.HasColumn(filter.Key) && len(path) == 0 {
		return nil, errtag.Filter.New("%s.%s has no %s column and no join path", p.store, table.Name, filter.Key)
	}

	query := SelectFilteredSQL(table, filter.Key, path)
	rows, err := p.pool.Query(ctx, query, filter.Value)
	if err != nil {
		return nil, errtag.Data.New("%s.%s: reading rows: %v", p.store, table.Name, err)
	}
	defer rows.Close()

	out := stage.NewTable(table.Columns)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errtag.Cancelled.Wrap(err)
		}
		values, err := rows.Values()
		if err != nil {
			return nil, errtag.Data.New("%s.%s: scanning row %d: %v", p.store, table.Name, out.Rows(), err)
		}
		for i, v := range values {
			values[i], err = coerceValue(table.Columns[i].Type, v)
			if err != nil {
				return nil, errtag.Data.New("%s.%s column %s: %v", p.store, table.Name, table.Columns[i].Name, err)
			}
		}
		if err := out.AppendRow(values); err != nil {
			return nil, errtag.Data.New("%s.%s: %v", p.store, table.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errtag.Data.New("%s.%s: reading rows: %v", p.store, table.Name, err)
	}
	return out, nil
}

// Begin opens the store's write transaction
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, errtag.Connection.New("%s: opening transaction: %v", p.store, err)
	}
	return &pgTx{tx: tx, store: p.store, logger: p.logger}, nil
}

type pgTx struct {
	tx     pgx.Tx
	store  string
	logger zerolog.Logger
}

func (t *pgTx) WriteBulk(ctx context.Context, table types.TableSchema, data *stage.Table, strategy types.LoadStrategy) (int64, error) {
	if data.Rows() == 0 {
		return 0, nil
	}

	columns := data.ColumnNames()
	var query string
	switch strategy {
	case types.LoadInsert:
		query = InsertSQL(table.Schema, table.Name, columns)
	case types.LoadUpsert, types.LoadMerge:
		conflict := ConflictColumns(table)
		if len(conflict) == 0 {
			return 0, errtag.Data.New("%s.%s: no conflict target for %s load", t.store, table.Name, strategy)
		}
		query = UpsertSQL(table.Schema, table.Name, columns, conflict)
	default:
		return 0, errtag.Data.New("unknown load strategy %q", strategy)
	}

	var written int64
	for i := 0; i < data.Rows(); i++ {
		if err := ctx.Err(); err != nil {
			return written, errtag.Cancelled.Wrap(err)
		}
		tag, err := t.tx.Exec(ctx, query, data.Row(i)...)
		if err != nil {
			return written, errtag.Data.New("%s.%s row %d: %v", t.store, table.Name, i, err)
		}
		written += tag.RowsAffected()
	}

	t.logger.Debug().Str("table", table.Name).Int64("rows", written).Msg("Bulk write applied")
	return written, nil
}

func (t *pgTx) DeleteByTenant(ctx context.Context, table types.TableSchema, filter types.TenantFilter) (int64, error) {
	tag, err := t.tx.Exec(ctx, DeleteByTenantSQL(table.Schema, table.Name, filter.Key), filter.Value)
	if err != nil {
		return 0, errtag.Data.New("%s.%s: deleting tenant rows: %v", t.store, table.Name, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// coerceValue maps driver values into the staging cell domain
func coerceValue(typ types.LogicalType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case types.TypeFloat:
		if n, ok := v.(pgtype.Numeric); ok {
			f, err := n.Float64Value()
			if err != nil {
				return nil, err
			}
			if !f.Valid {
				return nil, nil
			}
			return f.Float64, nil
		}
	case types.TypeDate:
		if ts, ok := v.(time.Time); ok {
			return ts, nil
		}
	case types.TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case [16]byte: // uuid columns scan as raw bytes
			u := x
			return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16]), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
	return v, nil
}

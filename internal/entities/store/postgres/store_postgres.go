// Package postgres implements the entity Model contract over database/sql.
// Each Table handles one entity table; column names come from payloads and
// are always quoted.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"cardkeep/internal/entities/store"
	"cardkeep/pkg/platform/sentinel"
	"cardkeep/pkg/platform/tx"
)

const (
	pgUniqueViolation   = "23505"
	pgNotNullViolation  = "23502"
	pgCheckViolation    = "23514"
	pgUndefinedColumn   = "42703"
	pgInvalidTextFormat = "22P02"
	pgInvalidDatetime   = "22007"
	pgNumericOutOfRange = "22003"
)

// Table persists rows of one entity in PostgreSQL.
type Table struct {
	db            *sql.DB
	name          string
	ident         string
	updatedColumn string
}

// Option configures a Table.
type Option func(*Table)

// WithUpdatedColumn names a timestamp column refreshed on every update that
// does not set it explicitly.
func WithUpdatedColumn(col string) Option {
	return func(t *Table) {
		t.updatedColumn = col
	}
}

// NewTable constructs a Model for the named table.
func NewTable(db *sql.DB, name string, opts ...Option) *Table {
	t := &Table{db: db, name: name, ident: pq.QuoteIdentifier(name)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// conn joins the caller's transaction when one is in ctx.
func (t *Table) conn(ctx context.Context) tx.Querier {
	return tx.Conn(ctx, t.db)
}

func (t *Table) FindMany(ctx context.Context, q store.Query) ([]store.Row, error) {
	where, args, err := compileWhere(q.Where)
	if err != nil {
		return nil, fmt.Errorf("find many %s: %w", t.name, err)
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(t.ident)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if q.Order != nil {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(pq.QuoteIdentifier(q.Order.Field))
		if q.Order.Descending {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	if q.Limit != nil && *q.Limit >= 0 {
		args = append(args, *q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := t.conn(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find many %s: %w", t.name, classify(err))
	}
	defer rows.Close()
	return scanRows(rows)
}

func (t *Table) FindUnique(ctx context.Context, id int64) (store.Row, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE "id" = $1`, t.ident)
	rows, err := t.conn(ctx).QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("find %s by id: %w", t.name, classify(err))
	}
	defer rows.Close()
	return firstRow(rows)
}

func (t *Table) Create(ctx context.Context, data store.Row) (store.Row, error) {
	cols, vals, err := columnsAndValues(data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t.name, err)
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", t.ident)
	} else {
		phs := make([]string, len(cols))
		for i := range cols {
			phs[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			t.ident, strings.Join(cols, ", "), strings.Join(phs, ", "))
	}

	rows, err := t.conn(ctx).QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t.name, classify(err))
	}
	defer rows.Close()
	return firstRow(rows)
}

func (t *Table) Update(ctx context.Context, id int64, data store.Row) (store.Row, error) {
	cols, vals, err := columnsAndValues(data)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", t.name, err)
	}
	if len(cols) == 0 {
		return t.FindUnique(ctx, id)
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	if _, explicit := data[t.updatedColumn]; t.updatedColumn != "" && !explicit {
		sets = append(sets, pq.QuoteIdentifier(t.updatedColumn)+" = NOW()")
	}
	vals = append(vals, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE "id" = $%d RETURNING *`,
		t.ident, strings.Join(sets, ", "), len(vals))

	rows, err := t.conn(ctx).QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", t.name, classify(err))
	}
	defer rows.Close()
	return firstRow(rows)
}

func (t *Table) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE "id" = $1`, t.ident)
	res, err := t.conn(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.name, classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// columnsAndValues returns quoted column names in sorted order with their
// encoded values. The id column is never written.
func columnsAndValues(data store.Row) ([]string, []any, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "id" {
			return nil, nil, fmt.Errorf("id is assigned by the store: %w", sentinel.ErrInvalidColumn)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		encoded, err := encodeValue(data[k])
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", k, err)
		}
		cols[i] = pq.QuoteIdentifier(k)
		vals[i] = encoded
	}
	return cols, vals, nil
}

func firstRow(rows *sql.Rows) (store.Row, error) {
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return out[0], nil
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	out := []store.Row{}
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(store.Row, len(types))
		for i, ct := range types {
			row[ct.Name()] = decodeValue(ct.DatabaseTypeName(), values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", classify(err))
	}
	return out, nil
}

func decodeValue(dbType string, v any) any {
	var raw []byte
	switch val := v.(type) {
	case []byte:
		raw = val
	case string:
		raw = []byte(val)
	default:
		return v
	}
	if dbType != "JSON" && dbType != "JSONB" {
		return string(raw)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.Message, sentinel.ErrConflict)
	case pgUndefinedColumn, pgInvalidTextFormat, pgNotNullViolation, pgCheckViolation,
		pgInvalidDatetime, pgNumericOutOfRange:
		return fmt.Errorf("%s: %w", pgErr.Message, sentinel.ErrInvalidColumn)
	default:
		return err
	}
}

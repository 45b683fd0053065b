package vecadmin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/viant/sqlite-kdtree/vec"
	"modernc.org/sqlite/vtab"
)

// Module provides administrative operations via a virtual table.
// Usage:
//
//	CREATE VIRTUAL TABLE vec_admin USING vec_admin(op);
//	SELECT op FROM vec_admin WHERE op MATCH 'main._vec_docs';
//
// The MATCH rebuilds the index of every dataset of the shadow table with the
// kind and options its vec table declares, persists it and drops cached
// copies. It returns one row,
// op='reindexed:<rows>'.
type Module struct{ db *sql.DB }

// Table is a vec_admin virtual table instance.
type Table struct{ db *sql.DB }

// Cursor holds the result of a single admin operation.
type Cursor struct {
	table *Table
	rows  []string
	pos   int
}

// Register registers the vec_admin module with db.
func Register(db *sql.DB) error {
	if err := vtab.RegisterModule(db, "vec_admin", &Module{db: db}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	return nil
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec_admin: need at least 3 args")
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op)", args[2])); err != nil {
		return nil, err
	}
	return &Table{db: m.db}, nil
}

func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if c.Usable && c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 1
			break
		}
	}
	return nil
}

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }
func (t *Table) Disconnect() error           { return nil }
func (t *Table) Destroy() error              { return nil }

func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows, c.pos = nil, 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	shadow, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("vec_admin: MATCH expects shadow table name as TEXT")
	}
	n, err := Reindex(context.Background(), c.table.db, shadow)
	if err != nil {
		return err
	}
	c.rows = []string{fmt.Sprintf("reindexed:%d", n)}
	return nil
}

func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vec_admin: Column out of range")
	}
	if col == 0 {
		return c.rows[c.pos], nil
	}
	return nil, nil
}

func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }

func (c *Cursor) Close() error {
	c.rows, c.pos = nil, 0
	return nil
}

// Reindex rebuilds and persists the index of every dataset of the shadow
// table and returns the number of indexed rows. Index kind and kd options
// are those declared by the vec table owning shadow.
func Reindex(ctx context.Context, db *sql.DB, shadow string) (int, error) {
	if err := vec.EnsureStorage(ctx, db); err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	builder, err := vec.NewIndexBuilder(ctx, tx, shadow)
	if err != nil {
		return 0, err
	}
	datasets, err := listDatasets(ctx, tx, shadow)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, dataset := range datasets {
		ids, vecs, err := vec.LoadDataset(ctx, tx, shadow, dataset)
		if err != nil {
			return 0, err
		}
		idx, err := builder.Build(ids, vecs)
		if err != nil {
			return 0, fmt.Errorf("vec_admin: build %s/%s: %w", shadow, dataset, err)
		}
		data, err := idx.MarshalBinary()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO vector_storage(shadow_table_name, dataset_id, "index") VALUES(?, ?, ?)`, shadow, dataset, data); err != nil {
			return 0, err
		}
		total += len(ids)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	for _, dataset := range datasets {
		vec.InvalidateCache(shadow, dataset)
	}
	return total, nil
}

func listDatasets(ctx context.Context, q vec.Querier, shadow string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT dataset_id FROM %s ORDER BY dataset_id", shadow))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dataset string
		if err := rows.Scan(&dataset); err != nil {
			return nil, err
		}
		out = append(out, dataset)
	}
	return out, rows.Err()
}

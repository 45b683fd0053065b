package vec

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

// Module implements vtab.Module for the vec virtual table. It creates a
// per-table shadow store and supports MATCH-based similarity scans.
type Module struct {
	db *sql.DB
}

// Table represents a single vec virtual table instance.
type Table struct {
	db        *sql.DB
	dbName    string
	tableName string
	shadow    string // qualified shadow table name (e.g. "main._vec_docs")

	dbPathOnce sync.Once
	dbPathErr  error
	dbPath     string

	options indexOptions
}

// Column positions of the declared schema.
const (
	columnDataset = iota
	columnID
	columnScore
	columnK
)

// Plan flags packed into IndexInfo.IdxNum. Filter arguments follow the
// order of the flags.
const (
	planDataset = 1 << iota
	planMatch
	planScore
	planK
)

var registerInvalidateOnce sync.Once

// Register registers the vec virtual table module with the provided *sql.DB.
func Register(db *sql.DB) error {
	// vec_invalidate must exist before the first connection runs a trigger.
	registerInvalidateOnce.Do(func() { _ = sqlite.RegisterDeterministicScalarFunction("vec_invalidate", 2, invalidateFunc) })
	if err := vtab.RegisterModule(db, "vec", &Module{db: db}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	return nil
}

// Create initializes a vec table instance. Shadow and storage tables are
// created on first use.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.declare(ctx, "CREATE", args)
}

// Connect attaches to an existing vec table instance.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.declare(ctx, "CONNECT", args)
}

// declare parses USING vec(column, key=value...) and declares
// (dataset_id, column, match_score HIDDEN, match_k HIDDEN).
func (m *Module) declare(ctx vtab.Context, op string, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec: %s expects at least 3 args, got %d", op, len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("vec: EnableConstraintSupport failed: %w", err)
	}
	col, optArgs := splitModuleArgs(args[3:])
	opts, err := parseIndexOptions(optArgs)
	if err != nil {
		return nil, err
	}
	schema := fmt.Sprintf("CREATE TABLE %s(dataset_id TEXT, %s TEXT, match_score REAL HIDDEN, match_k INTEGER HIDDEN)", args[2], col)
	if err := ctx.Declare(schema); err != nil {
		return nil, err
	}
	t := &Table{db: m.db, dbName: args[1], tableName: args[2], options: opts}
	t.shadow = t.qualifiedShadow()
	return t, nil
}

// BestIndex pushes down dataset_id equality, MATCH on the id column,
// match_score lower bounds and match_k.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	var dataset, match, score, k *vtab.Constraint
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		switch {
		case c.Column == columnDataset && c.Op == vtab.OpEQ:
			dataset = c
		case c.Column == columnID && c.Op == vtab.OpMATCH:
			match = c
		case c.Column == columnScore && (c.Op == vtab.OpGE || c.Op == vtab.OpGT):
			score = c
		case c.Column == columnK && c.Op == vtab.OpEQ:
			k = c
		}
	}
	if dataset == nil {
		if match != nil {
			return fmt.Errorf("vec: dataset_id constraint is required with MATCH")
		}
		return fmt.Errorf("vec: dataset_id constraint required")
	}

	next := 0
	use := func(c *vtab.Constraint) {
		c.ArgIndex = next
		c.Omit = true
		next++
	}
	info.IdxNum = planDataset
	use(dataset)
	if match != nil {
		info.IdxNum |= planMatch
		use(match)
		if score != nil {
			info.IdxNum |= planScore
			use(score)
			// SQLite re-checks the bound, so > stays exact.
			score.Omit = false
		}
		if k != nil {
			info.IdxNum |= planK
			use(k)
		}
	}
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect cleans up per-connection resources.
func (t *Table) Disconnect() error { return nil }

// Destroy drops nothing; the shadow table persists.
func (t *Table) Destroy() error { return nil }

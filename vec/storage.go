package vec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	idxapi "github.com/viant/sqlite-kdtree/index"
	"github.com/viant/sqlite-kdtree/vector"
	"modernc.org/sqlite/vtab"
)

// Prepare creates the shadow table, its invalidation triggers and the shared
// storage tables of the vec virtual table named table in the main schema.
// The vec module does the same lazily on first use.
func Prepare(ctx context.Context, db *sql.DB, table string) error {
	if err := ensureShadow(ctx, db, "main._vec_"+table); err != nil {
		return err
	}
	return EnsureStorage(ctx, db)
}

// EnsureStorage creates vector_storage and vector_storage_locks.
func EnsureStorage(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("vec: db is nil")
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS vector_storage (
    shadow_table_name TEXT NOT NULL,
    dataset_id        TEXT NOT NULL DEFAULT '',
    "index"           BLOB,
    PRIMARY KEY (shadow_table_name, dataset_id)
)`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS vector_storage_locks (
    shadow_table_name TEXT NOT NULL,
    dataset_id        TEXT NOT NULL DEFAULT '',
    owner             TEXT NOT NULL,
    locked_at         INTEGER NOT NULL,
    PRIMARY KEY (shadow_table_name, dataset_id)
)`)
	return err
}

// ensureShadow creates the shadow table and triggers that drop the persisted
// index and the cached one whenever a dataset changes.
func ensureShadow(ctx context.Context, db *sql.DB, shadow string) error {
	if db == nil {
		return fmt.Errorf("vec: db is nil")
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    dataset_id TEXT NOT NULL,
    id TEXT NOT NULL,
    content TEXT,
    meta TEXT,
    embedding BLOB,
    PRIMARY KEY(dataset_id, id)
);
`, shadow)); err != nil {
		return err
	}
	if err := EnsureStorage(ctx, db); err != nil {
		return err
	}
	trigger := sanitizeName("trg_vec_" + shadow)
	lit := quoteLiteral(shadow)
	invalidate := func(ref string) string {
		return `DELETE FROM vector_storage WHERE shadow_table_name = ` + lit + ` AND dataset_id = ` + ref + `.dataset_id; ` +
			`SELECT vec_invalidate(` + lit + `, ` + ref + `.dataset_id);`
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ins AFTER INSERT ON %s BEGIN %s END;`, trigger, shadow, invalidate("NEW")),
		// Updates may move a row between datasets.
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_upd AFTER UPDATE ON %s BEGIN %s %s END;`, trigger, shadow, invalidate("NEW"), invalidate("OLD")),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_del AFTER DELETE ON %s BEGIN %s END;`, trigger, shadow, invalidate("OLD")),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// preparedShadows records shadow tables whose DDL already ran in this process.
var preparedShadows sync.Map

// prepare runs ensureShadow once per database file, shadow table and process.
func (t *Table) prepare(ctx context.Context) error {
	key := t.cachedDbPath(ctx) + "|" + t.shadow
	if _, ok := preparedShadows.Load(key); ok {
		return nil
	}
	if err := ensureShadow(ctx, t.db, t.shadow); err != nil {
		return err
	}
	preparedShadows.Store(key, struct{}{})
	return nil
}

// qualifiedShadow returns a fully-qualified shadow table name.
func (t *Table) qualifiedShadow() string {
	base := "_vec_" + t.tableName
	if strings.TrimSpace(t.dbName) == "" {
		return base
	}
	return t.dbName + "." + base
}

func tableNameFromShadow(shadow string) string {
	if i := strings.Index(shadow, "._vec_"); i >= 0 {
		return shadow[i+len("._vec_"):]
	}
	if strings.HasPrefix(shadow, "_vec_") {
		return strings.TrimPrefix(shadow, "_vec_")
	}
	return ""
}

func resolveDbPath(ctx context.Context, db *sql.DB, dbName string) (string, error) {
	if dbName == "" {
		dbName = "main"
	}
	rows, err := db.QueryContext(ctx, `SELECT name, file FROM pragma_database_list`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	for rows.Next() {
		var name, file string
		if err := rows.Scan(&name, &file); err != nil {
			return "", err
		}
		if name == dbName {
			if file == "" {
				return name, nil
			}
			return file, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return dbName, nil
}

func (t *Table) cachedDbPath(ctx context.Context) string {
	t.dbPathOnce.Do(func() {
		path, err := resolveDbPath(ctx, t.db, t.dbName)
		if err != nil {
			t.dbPathErr = err
			path = t.dbName
			if path == "" {
				path = "main"
			}
		}
		t.dbPath = path
	})
	return t.dbPath
}

// scanDataset lists the rows of one dataset in rowid order.
func (t *Table) scanDataset(ctx context.Context, dataset string) ([]row, error) {
	if err := t.prepare(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT rowid, dataset_id, id FROM %s WHERE dataset_id = ? ORDER BY rowid", t.shadow)
	rows, err := t.db.QueryContext(ctx, q, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rowid, &r.dataset, &r.id); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *Table) loadPersistedIndex(ctx context.Context, dataset string) (idxapi.Index, bool, error) {
	var blob []byte
	err := t.db.QueryRowContext(ctx, `SELECT "index" FROM vector_storage WHERE shadow_table_name = ? AND dataset_id = ?`, t.shadow, dataset).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(blob) == 0 {
		return nil, false, nil
	}
	idx, err := t.options.decodeIndex(blob)
	if err != nil {
		// Unreadable blobs are rebuilt from the shadow table.
		return nil, false, nil
	}
	return idx, true, nil
}

const (
	lockRetryDelay = 50 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

var lockOwnerID = "pid:" + strconv.Itoa(os.Getpid()) + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)

// acquireIndexBuildLock takes the cross-process build lock of a dataset.
// Locks older than lockStaleAfter are taken over.
func acquireIndexBuildLock(ctx context.Context, db *sql.DB, shadow, dataset string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		owner, err := tryLock(ctx, db, shadow, dataset)
		if err != nil {
			return nil, err
		}
		if owner == lockOwnerID {
			return func() {
				_, _ = db.ExecContext(context.Background(), `DELETE FROM vector_storage_locks WHERE shadow_table_name = ? AND dataset_id = ? AND owner = ?`, shadow, dataset, lockOwnerID)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

func tryLock(ctx context.Context, db *sql.DB, shadow, dataset string) (string, error) {
	now := time.Now().Unix()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO vector_storage_locks(shadow_table_name, dataset_id, owner, locked_at) VALUES(?, ?, ?, ?)`, shadow, dataset, lockOwnerID, now); err != nil {
		return "", err
	}
	var owner string
	var lockedAt int64
	if err := tx.QueryRowContext(ctx, `SELECT owner, locked_at FROM vector_storage_locks WHERE shadow_table_name = ? AND dataset_id = ?`, shadow, dataset).Scan(&owner, &lockedAt); err != nil {
		return "", err
	}
	if owner != lockOwnerID && lockedAt <= time.Now().Add(-lockStaleAfter).Unix() {
		res, err := tx.ExecContext(ctx, `UPDATE vector_storage_locks SET owner = ?, locked_at = ? WHERE shadow_table_name = ? AND dataset_id = ? AND locked_at = ?`, lockOwnerID, now, shadow, dataset, lockedAt)
		if err != nil {
			return "", err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			owner = lockOwnerID
		}
	}
	return owner, tx.Commit()
}

// ensureIndex returns the dataset index from the process cache, from
// vector_storage or by building it from the shadow table and persisting it.
func (t *Table) ensureIndex(ctx context.Context, dataset string) (idxapi.Index, error) {
	if strings.TrimSpace(dataset) == "" {
		return nil, fmt.Errorf("vec: dataset_id is required")
	}
	if err := t.prepare(ctx); err != nil {
		return nil, err
	}
	entry := getCacheEntry(cacheKey(t.cachedDbPath(ctx), t.tableName, dataset))
	if idx := entry.get(); idx != nil {
		return idx, nil
	}
	if idx := entry.acquire(); idx != nil {
		return idx, nil
	}
	defer entry.release()

	if idx, ok, err := t.loadPersistedIndex(ctx, dataset); err != nil {
		return nil, err
	} else if ok {
		entry.set(idx)
		return idx, nil
	}

	unlock, err := acquireIndexBuildLock(ctx, t.db, t.shadow, dataset)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another process may have built it while we waited for the lock.
	if idx, ok, err := t.loadPersistedIndex(ctx, dataset); err != nil {
		return nil, err
	} else if ok {
		entry.set(idx)
		return idx, nil
	}

	ids, vecs, err := LoadDataset(ctx, t.db, t.shadow, dataset)
	if err != nil {
		return nil, err
	}
	built, err := t.options.build(ids, vecs)
	if err != nil {
		return nil, fmt.Errorf("vec: build index for %s/%s: %w", t.shadow, dataset, err)
	}
	if data, err := built.MarshalBinary(); err == nil {
		_, _ = t.db.ExecContext(ctx, `INSERT OR REPLACE INTO vector_storage(shadow_table_name, dataset_id, "index") VALUES(?, ?, ?)`, t.shadow, dataset, data)
	}
	entry.set(built)
	return built, nil
}

// Querier is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadDataset reads the ids and embeddings of a dataset from a shadow table,
// skipping rows without an embedding.
func LoadDataset(ctx context.Context, db Querier, shadow, dataset string) ([]string, [][]float32, error) {
	q := fmt.Sprintf("SELECT id, embedding FROM %s WHERE dataset_id = ? AND embedding IS NOT NULL ORDER BY rowid", shadow)
	rows, err := db.QueryContext(ctx, q, dataset)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var emb []byte
		if err := rows.Scan(&id, &emb); err != nil {
			return nil, nil, err
		}
		if len(emb) == 0 {
			continue
		}
		v, err := vector.DecodeEmbedding(emb)
		if err != nil {
			return nil, nil, fmt.Errorf("vec: %s/%s: %w", dataset, id, err)
		}
		ids = append(ids, id)
		vecs = append(vecs, v)
	}
	return ids, vecs, rows.Err()
}

// lookupRow resolves the rowid of a dataset/id pair, 0 when the row is gone.
func (t *Table) lookupRow(ctx context.Context, dataset, id string) (int64, error) {
	q := fmt.Sprintf("SELECT rowid FROM %s WHERE dataset_id = ? AND id = ?", t.shadow)
	var rid int64
	if err := t.db.QueryRowContext(ctx, q, dataset, id).Scan(&rid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return rid, nil
}

func asFloat(v vtab.Value) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case []byte:
		return parseFloat(string(val))
	case string:
		return parseFloat(val)
	default:
		return 0, fmt.Errorf("vec: unsupported numeric type %T", v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("vec: cannot parse number %q: %w", s, err)
	}
	return f, nil
}

func asString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case nil:
		return "", fmt.Errorf("vec: dataset_id is nil")
	default:
		return "", fmt.Errorf("vec: unsupported dataset_id type %T", v)
	}
}

// sanitizeName converts a qualified name into a safe identifier for triggers.
func sanitizeName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

// quoteLiteral returns s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}


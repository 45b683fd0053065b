package vec

import (
	"database/sql/driver"
	"strings"
	"sync"

	idxapi "github.com/viant/sqlite-kdtree/index"
	sqlite "modernc.org/sqlite"
)

// indexCache is shared by every connection of the process and keyed by
// db path, table and dataset.
var indexCache = struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}{entries: make(map[string]*cacheEntry)}

// cacheEntry holds one dataset's index. building serializes concurrent
// builds within the process; other goroutines wait on cond.
type cacheEntry struct {
	mu       sync.Mutex
	idx      idxapi.Index
	building bool
	cond     *sync.Cond
}

func newCacheEntry() *cacheEntry {
	e := &cacheEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *cacheEntry) get() idxapi.Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx
}

func (e *cacheEntry) set(idx idxapi.Index) {
	e.mu.Lock()
	e.idx = idx
	e.mu.Unlock()
}

// acquire returns the cached index, or claims the build and returns nil.
// A caller that claimed the build must call release.
func (e *cacheEntry) acquire() idxapi.Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.building {
		e.cond.Wait()
	}
	if e.idx != nil {
		return e.idx
	}
	e.building = true
	return nil
}

func (e *cacheEntry) release() {
	e.mu.Lock()
	e.building = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

func cacheKey(dbPath, tableName, dataset string) string {
	return dbPath + "|" + tableName + "|" + dataset
}

func getCacheEntry(key string) *cacheEntry {
	indexCache.mu.RLock()
	entry := indexCache.entries[key]
	indexCache.mu.RUnlock()
	if entry != nil {
		return entry
	}
	indexCache.mu.Lock()
	defer indexCache.mu.Unlock()
	if entry = indexCache.entries[key]; entry == nil {
		entry = newCacheEntry()
		indexCache.entries[key] = entry
	}
	return entry
}

// InvalidateCache drops cached indexes of a shadow table, for one dataset or
// for all of them when dataset is empty. It returns the number of entries
// cleared.
func InvalidateCache(shadow, dataset string) int {
	tableName := tableNameFromShadow(shadow)
	if tableName == "" {
		tableName = shadow
	}
	indexCache.mu.RLock()
	defer indexCache.mu.RUnlock()
	count := 0
	for k, entry := range indexCache.entries {
		var hit bool
		if dataset == "" {
			hit = strings.Contains(k, "|"+tableName+"|")
		} else {
			hit = strings.HasSuffix(k, "|"+tableName+"|"+dataset)
		}
		if hit {
			entry.set(nil)
			count++
		}
	}
	return count
}

// invalidateFunc implements vec_invalidate(shadow TEXT, dataset TEXT) -> INT.
func invalidateFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 || args[0] == nil {
		return int64(0), nil
	}
	shadow, err := asString(args[0])
	if err != nil {
		return int64(0), nil
	}
	var dataset string
	if args[1] != nil {
		if dataset, err = asString(args[1]); err != nil {
			return int64(0), nil
		}
	}
	return int64(InvalidateCache(shadow, dataset)), nil
}

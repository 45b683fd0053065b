package vec

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	idxapi "github.com/viant/sqlite-kdtree/index"
	"github.com/viant/sqlite-kdtree/index/bruteforce"
	"github.com/viant/sqlite-kdtree/index/kdtree"
)

// Index kinds accepted by USING vec(..., index=<kind>).
const (
	IndexAuto   = "auto"
	IndexKDTree = "kdtree"
	IndexBrute  = "brute"
)

// autoKDTreeMaxDim is the largest dimensionality for which auto picks the
// kd-tree; above it box pruning rarely beats a scan.
const autoKDTreeMaxDim = 32

type indexOptions struct {
	kind          string
	bucketSize    int
	seed          uint64
	seeded        bool
	splitAttempts int
}

// splitModuleArgs separates the optional id column name from the key=value
// options of USING vec(...).
func splitModuleArgs(args []string) (string, []string) {
	if len(args) > 0 {
		if a := strings.TrimSpace(args[0]); a != "" && !strings.Contains(a, "=") {
			return a, args[1:]
		}
	}
	return "doc_id", args
}

func parseIndexOptions(args []string) (indexOptions, error) {
	opts := indexOptions{kind: IndexAuto}
	for _, raw := range args {
		a := strings.TrimSpace(raw)
		if a == "" {
			continue
		}
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.Trim(strings.TrimSpace(val), `'"`)
		switch key {
		case "index":
			switch kind := strings.ToLower(val); kind {
			case IndexAuto, IndexKDTree, IndexBrute:
				opts.kind = kind
			case "kd":
				opts.kind = IndexKDTree
			default:
				return opts, fmt.Errorf("vec: unsupported index kind %q", val)
			}
		case "kd_bucket":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return opts, fmt.Errorf("vec: invalid kd_bucket %q", val)
			}
			opts.bucketSize = n
		case "kd_seed":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return opts, fmt.Errorf("vec: invalid kd_seed %q: %w", val, err)
			}
			opts.seed, opts.seeded = n, true
		case "kd_split_attempts":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("vec: invalid kd_split_attempts %q", val)
			}
			opts.splitAttempts = n
		}
	}
	return opts, nil
}

func (o indexOptions) kdOptions() []kdtree.Option {
	var out []kdtree.Option
	if o.bucketSize > 0 {
		out = append(out, kdtree.WithBucketSize(o.bucketSize))
	}
	if o.seeded {
		out = append(out, kdtree.WithSeed(o.seed))
	}
	if o.splitAttempts > 0 {
		out = append(out, kdtree.WithMaxSplitAttempts(o.splitAttempts))
	}
	return out
}

// resolveKind picks the concrete index for a dataset of the given
// dimensionality.
func (o indexOptions) resolveKind(dim int) string {
	switch o.kind {
	case IndexKDTree, IndexBrute:
		return o.kind
	}
	if dim > 0 && dim <= autoKDTreeMaxDim {
		return IndexKDTree
	}
	return IndexBrute
}

func (o indexOptions) newIndex(kind string) idxapi.Index {
	if kind == IndexKDTree {
		return kdtree.New(o.kdOptions()...)
	}
	return &bruteforce.Index{}
}

// build creates the index for a dataset and loads the points into it.
func (o indexOptions) build(ids []string, vecs [][]float32) (idxapi.Index, error) {
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	idx := o.newIndex(o.resolveKind(dim))
	if err := idx.Build(ids, vecs); err != nil {
		return nil, err
	}
	return idx, nil
}

// decodeIndex restores a persisted blob; the kind is taken from its prefix.
func (o indexOptions) decodeIndex(blob []byte) (idxapi.Index, error) {
	kind := IndexBrute
	if kdtree.IsBlob(blob) {
		kind = IndexKDTree
	}
	idx := o.newIndex(kind)
	if err := idx.UnmarshalBinary(blob); err != nil {
		return nil, err
	}
	return idx, nil
}

var declarationArgs = regexp.MustCompile(`(?is)\busing\s+\w+\s*\((.*)\)`)

// parseDeclaration extracts the index options of a
// CREATE VIRTUAL TABLE ... USING vec(...) statement. A declaration without
// arguments gets the defaults.
func parseDeclaration(stmt string) (indexOptions, error) {
	m := declarationArgs.FindStringSubmatch(stmt)
	if m == nil {
		return indexOptions{kind: IndexAuto}, nil
	}
	_, optArgs := splitModuleArgs(strings.Split(m[1], ","))
	return parseIndexOptions(optArgs)
}

// declaredOptions reads the index options of the vec table owning shadow
// from the schema. A shadow table without a vec table gets the defaults.
func declaredOptions(ctx context.Context, q Querier, shadow string) (indexOptions, error) {
	table := tableNameFromShadow(shadow)
	if table == "" {
		return indexOptions{kind: IndexAuto}, nil
	}
	schema := "main"
	if i := strings.Index(shadow, "._vec_"); i > 0 {
		schema = shadow[:i]
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT sql FROM %s.sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, schema), table)
	if err != nil {
		return indexOptions{}, err
	}
	defer rows.Close()
	var stmt sql.NullString
	found := rows.Next()
	if found {
		if err := rows.Scan(&stmt); err != nil {
			return indexOptions{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return indexOptions{}, err
	}
	if !found || !stmt.Valid {
		return indexOptions{kind: IndexAuto}, nil
	}
	return parseDeclaration(stmt.String)
}

// IndexBuilder builds dataset indexes the way the vec table owning a shadow
// table declares them.
type IndexBuilder struct {
	options indexOptions
}

// NewIndexBuilder reads the declaration of the vec table owning shadow.
func NewIndexBuilder(ctx context.Context, q Querier, shadow string) (*IndexBuilder, error) {
	opts, err := declaredOptions(ctx, q, shadow)
	if err != nil {
		return nil, fmt.Errorf("vec: read declaration of %s: %w", shadow, err)
	}
	return &IndexBuilder{options: opts}, nil
}

// Kind returns the index kind used for vectors of dimensionality dim.
func (b *IndexBuilder) Kind(dim int) string { return b.options.resolveKind(dim) }

// Build creates the index of one dataset from its points.
func (b *IndexBuilder) Build(ids []string, vecs [][]float32) (idxapi.Index, error) {
	return b.options.build(ids, vecs)
}

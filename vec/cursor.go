package vec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/sqlite-kdtree/vector"
	"modernc.org/sqlite/vtab"
)

type row struct {
	rowid   int64
	dataset string
	id      string
	score   float64
}

// Cursor scans results from a vec table.
type Cursor struct {
	table *Table
	rows  []row
	pos   int
	k     int64
}

// Filter computes the result set for the plan encoded in idxNum.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows, c.pos, c.k = nil, 0, 0
	if c.table == nil || c.table.db == nil {
		return nil
	}
	if idxNum&planDataset == 0 || len(vals) == 0 || vals[0] == nil {
		return fmt.Errorf("vec: dataset_id argument is required")
	}
	dataset, err := asString(vals[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	if idxNum&planMatch == 0 {
		c.rows, err = c.table.scanDataset(ctx, dataset)
		return err
	}

	arg := 1
	next := func(name string) (vtab.Value, error) {
		if arg >= len(vals) || vals[arg] == nil {
			return nil, fmt.Errorf("vec: missing %s argument", name)
		}
		arg++
		return vals[arg-1], nil
	}
	v, err := next("MATCH")
	if err != nil {
		return err
	}
	query, err := decodeMatchArg(v)
	if err != nil {
		return err
	}
	var minScore *float64
	if idxNum&planScore != 0 {
		if v, err = next("match_score"); err != nil {
			return err
		}
		s, err := asFloat(v)
		if err != nil {
			return err
		}
		minScore = &s
	}
	k := 0
	if idxNum&planK != 0 {
		if v, err = next("match_k"); err != nil {
			return err
		}
		n, err := asFloat(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("vec: match_k must be non-negative, got %v", n)
		}
		k = int(n)
		c.k = int64(k)
		if k == 0 {
			return nil
		}
	}

	idx, err := c.table.ensureIndex(ctx, dataset)
	if err != nil {
		return err
	}
	ids, scores, err := idx.Query(query, k)
	if err != nil {
		return fmt.Errorf("vec: query %s: %w", dataset, err)
	}
	out := make([]row, 0, len(ids))
	for i, id := range ids {
		var score float64
		if i < len(scores) {
			score = scores[i]
		}
		if minScore != nil && score < *minScore {
			continue
		}
		rid, err := c.table.lookupRow(ctx, dataset, id)
		if err != nil {
			return err
		}
		if rid == 0 {
			continue
		}
		out = append(out, row{rowid: rid, dataset: dataset, id: id, score: score})
	}
	c.rows = out
	return nil
}

func decodeMatchArg(v vtab.Value) ([]float32, error) {
	switch val := v.(type) {
	case []byte:
		return vector.DecodeEmbedding(val)
	case string:
		return decodeMatchString(val)
	default:
		return nil, fmt.Errorf("vec: expected MATCH arg as BLOB or string, got %T", v)
	}
}

// decodeMatchString accepts a JSON array, a base64 embedding blob or a
// comma separated list of floats.
func decodeMatchString(raw string) ([]float32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("vec: MATCH string is empty")
	}
	if strings.HasPrefix(s, "[") {
		var floats []float32
		if err := json.Unmarshal([]byte(s), &floats); err != nil {
			return nil, fmt.Errorf("vec: invalid MATCH JSON: %w", err)
		}
		return floats, nil
	}
	if strings.Contains(s, ",") {
		return ParseVector(s)
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		if vec, err := vector.DecodeEmbedding(b); err == nil && len(vec) > 0 {
			return vec, nil
		}
	}
	return ParseVector(s)
}

// ParseVector parses a comma separated list of floats such as "1,2.5,-3".
func ParseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("vec: invalid MATCH float %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("vec: MATCH string must be base64-encoded embedding or JSON/CSV float list")
	}
	return vec, nil
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vec: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	r := c.rows[c.pos]
	switch col {
	case columnDataset:
		return r.dataset, nil
	case columnID:
		return r.id, nil
	case columnScore:
		return r.score, nil
	case columnK:
		return c.k, nil
	}
	return nil, fmt.Errorf("vec: unsupported column %d", col)
}

// Rowid returns the current rowid.
func (c *Cursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0, fmt.Errorf("vec: Rowid out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	return c.rows[c.pos].rowid, nil
}

// Close releases resources.
func (c *Cursor) Close() error {
	c.rows, c.pos = nil, 0
	return nil
}

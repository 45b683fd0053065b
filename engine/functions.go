package engine

import (
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

// RegisterVectorFunctions registers vec_cosine, vec_l2 and vec_l2sq with the
// driver. Only connections opened after this call see them.
func RegisterVectorFunctions(_ *sql.DB) error {
	// The driver rejects duplicate registrations; repeated calls are fine.
	_ = sqlite.RegisterDeterministicScalarFunction("vec_cosine", 2, pairFunc("vec_cosine", cosine))
	_ = sqlite.RegisterDeterministicScalarFunction("vec_l2", 2, pairFunc("vec_l2", l2))
	_ = sqlite.RegisterDeterministicScalarFunction("vec_l2sq", 2, pairFunc("vec_l2sq", l2sq))
	return nil
}

type pairKernel func(a, b []float32) (float64, error)

// pairFunc adapts a kernel over two embedding BLOBs to a scalar function.
// NULL or empty arguments yield NULL.
func pairFunc(name string, kernel pairKernel) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
		}
		a, err := asEmbedding(args[0])
		if err != nil {
			return nil, err
		}
		b, err := asEmbedding(args[1])
		if err != nil {
			return nil, err
		}
		if a == nil || b == nil {
			return nil, nil
		}
		v, err := kernel(a, b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
}

func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decodeEmbedding(v)
	default:
		return nil, fmt.Errorf("vec: unsupported argument type %T for embedding; want BLOB", arg)
	}
}

// decodeEmbedding mirrors vector.DecodeEmbedding; vector's tests import this
// package.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vec: invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dim mismatch %d vs %d", len(a), len(b))
	}
	var dot, na2, nb2 float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

func l2sq(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dim mismatch %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum, nil
}

func l2(a, b []float32) (float64, error) {
	sum, err := l2sq(a, b)
	return math.Sqrt(sum), err
}

package database

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"modernc.org/sqlite"
)

// DistanceFunction is the SQL scalar function ranking chunks against a query
// vector: cosine distance, 0 for identical direction, up to 2 for opposite.
const DistanceFunction = "vec_distance_cosine"

var (
	registerOnce sync.Once
	registerErr  error
)

// registerVectorFunctions makes vec_distance_cosine available on every
// connection opened after the call.
func registerVectorFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(DistanceFunction, 2, vecDistanceCosine)
	})
	return registerErr
}

func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: expected 2 arguments, got %d", DistanceFunction, len(args))
	}

	a, err := embeddingArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := embeddingArg(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}

	d, ok := CosineDistance(a, b)
	if !ok {
		return nil, nil
	}
	return d, nil
}

func embeddingArg(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return DecodeEmbedding(v)
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T, want BLOB", DistanceFunction, arg)
	}
}

// CosineDistance returns 1 - cosine similarity of a and b. ok is false when
// the dimensions differ or either vector has zero magnitude; such chunks are
// left out of rankings.
func CosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}

	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0, false
	}

	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
}

// EncodeEmbedding stores a vector as little-endian IEEE 754 float32 values.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

package domain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NormEpsilon is the floor applied to vector norms during normalization.
const NormEpsilon = 1e-10

// Normalize returns v scaled to unit L2 length. Norms below NormEpsilon are
// floored, so a zero vector comes back as a zero vector.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Max(math.Sqrt(sum), NormEpsilon)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CheckVector rejects vectors of the wrong length or with non-finite components.
func CheckVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("got %d components, want %d: %w", len(v), dim, ErrVectorDimMismatch)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("component %d is %v: %w", i, x, ErrMalformedVector)
		}
	}
	return nil
}

// EncodeVector serializes v as little-endian float32 values without a length prefix.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector parses a blob written by EncodeVector. The blob is not
// self-describing, so its length must be exactly dim*4 bytes.
func DecodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != dim*4 {
		return nil, fmt.Errorf("blob of %d bytes for dimension %d: %w", len(b), dim, ErrVectorDimMismatch)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

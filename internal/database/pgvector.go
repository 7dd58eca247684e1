package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// HalfVector wraps a float32 slice for use as a PostgreSQL HALFVEC column
// value. It implements sql.Scanner and driver.Valuer to convert between Go
// and the pgvector text format "[1.0,2.0,3.0]". Embeddings are stored at
// half precision; float32 is the closest Go representation and round-trips
// the wire format without loss the model would notice.
type HalfVector struct {
	floats []float32
}

// NewHalfVector creates a HalfVector from a float32 slice. The input is
// defensively copied so later mutations of the source slice have no effect.
func NewHalfVector(floats []float32) HalfVector {
	cp := make([]float32, len(floats))
	copy(cp, floats)
	return HalfVector{floats: cp}
}

// Floats returns a defensive copy of the underlying float32 slice.
// Returns nil if the vector was never initialized (e.g. scanned from NULL).
func (v HalfVector) Floats() []float32 {
	if v.floats == nil {
		return nil
	}
	cp := make([]float32, len(v.floats))
	copy(cp, v.floats)
	return cp
}

// Dimension returns the number of elements in the vector.
func (v HalfVector) Dimension() int {
	return len(v.floats)
}

// IsZero reports whether the vector holds no elements.
func (v HalfVector) IsZero() bool {
	return len(v.floats) == 0
}

// Scan implements sql.Scanner. It parses the pgvector text format
// "[1.0,2.0,3.0]" from either a string or []byte value.
func (v *HalfVector) Scan(value any) error {
	if value == nil {
		v.floats = nil
		return nil
	}

	var raw string
	switch val := value.(type) {
	case string:
		raw = val
	case []byte:
		raw = string(val)
	default:
		return fmt.Errorf("cannot scan %T into HalfVector", value)
	}

	raw = strings.TrimSpace(raw)
	if raw == "[]" || raw == "" {
		v.floats = []float32{}
		return nil
	}

	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")

	parts := strings.Split(raw, ",")
	floats := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("parse element %d: %w", i, err)
		}
		floats[i] = float32(f)
	}

	v.floats = floats
	return nil
}

// Value implements driver.Valuer. It serializes the vector to the pgvector
// text format "[1.0,2.0,3.0]".
func (v HalfVector) Value() (driver.Value, error) {
	return v.String(), nil
}

// String returns the pgvector literal "[1.0,2.0,3.0]".
func (v HalfVector) String() string {
	var b strings.Builder
	b.Grow(len(v.floats)*10 + 2)
	b.WriteByte('[')
	for i, f := range v.floats {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

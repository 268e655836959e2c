package table

import (
	"cmp"
	"encoding/binary"
	"math"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
)

// Compare orders two values of type t. Missing values sort first. Floats order
// NaN after every number and treat -0 and +0 as equal, so Compare is coarser
// than Equal for floats.
func Compare(t ValueType, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch t {
	case TypeString:
		return strings.Compare(a.(string), b.(string))
	case TypeInt64:
		return cmp.Compare(a.(int64), b.(int64))
	case TypeFloat64:
		return compareFloat(a.(float64), b.(float64))
	case TypeBool:
		return compareBool(a.(bool), b.(bool))
	}
	return 0
}

func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// Equal reports exact value identity: floats compare bit-wise, so -0 and +0
// differ and identical NaNs are equal.
func Equal(t ValueType, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if t == TypeFloat64 {
		return math.Float64bits(a.(float64)) == math.Float64bits(b.(float64))
	}
	return a == b
}

// CompareAt compares the cells at the given column ordinals of two rows,
// column by column, returning the first non-zero result.
func CompareAt(columns []int, types []ValueType, a, b Row) int {
	for i, c := range columns {
		if r := Compare(types[i], a.Values[c], b.Values[c]); r != 0 {
			return r
		}
	}
	return 0
}

// Value tags written before each hashed value.
const (
	hashTagMissing byte = iota
	hashTagString
	hashTagInt64
	hashTagFloat64
	hashTagFalse
	hashTagTrue
)

// HashValue writes an encoding of v consistent with Equal into d.
func HashValue(d *xxhash.Digest, v any) {
	var buf [9]byte
	switch val := v.(type) {
	case nil:
		buf[0] = hashTagMissing
		_, _ = d.Write(buf[:1])
	case string:
		buf[0] = hashTagString
		binary.LittleEndian.PutUint64(buf[1:], uint64(len(val)))
		_, _ = d.Write(buf[:])
		_, _ = d.WriteString(val)
	case int64:
		buf[0] = hashTagInt64
		binary.LittleEndian.PutUint64(buf[1:], uint64(val))
		_, _ = d.Write(buf[:])
	case float64:
		buf[0] = hashTagFloat64
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(val))
		_, _ = d.Write(buf[:])
	case bool:
		buf[0] = hashTagFalse
		if val {
			buf[0] = hashTagTrue
		}
		_, _ = d.Write(buf[:1])
	}
}

// Package table defines the row model the filter and grouping engines consume:
// schemas with typed columns, rows with a row key, sequential row sources with an
// optional known size, row sinks, and the per-type comparators. MemTable is the
// Apache Arrow backed implementation of a random-access source.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// ValueType is the declared type of a column.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt64
	TypeFloat64
	TypeBool
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseValueType parses the names returned by ValueType.String.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(s) {
	case "string", "utf8":
		return TypeString, nil
	case "int64", "int", "long":
		return TypeInt64, nil
	case "float64", "double", "float":
		return TypeFloat64, nil
	case "bool", "boolean":
		return TypeBool, nil
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ValueType) UnmarshalText(text []byte) error {
	parsed, err := ParseValueType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Numeric reports whether values of t are ordered numbers.
func (t ValueType) Numeric() bool {
	return t == TypeInt64 || t == TypeFloat64
}

// ArrowType returns the Arrow data type storing values of t.
func (t ValueType) ArrowType() arrow.DataType {
	switch t {
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// TypeFromArrow maps an Arrow data type to a ValueType. Narrower integer and
// float types widen to int64 and float64.
func TypeFromArrow(dt arrow.DataType) (ValueType, error) {
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		return TypeString, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return TypeInt64, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return TypeFloat64, nil
	case arrow.BOOL:
		return TypeBool, nil
	}
	return 0, fmt.Errorf("unsupported arrow type: %s", dt)
}

// Coerce converts v to the Go representation of t: string, int64, float64 or bool.
// Comparison values decoded from YAML or JSON arrive as int, float64 or string
// and are converted here. nil stays nil.
func Coerce(t ValueType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString:
		switch val := v.(type) {
		case string:
			return val, nil
		case fmt.Stringer:
			return val.String(), nil
		default:
			return fmt.Sprint(val), nil
		}
	case TypeInt64:
		switch val := v.(type) {
		case int64:
			return val, nil
		case int:
			return int64(val), nil
		case int32:
			return int64(val), nil
		case uint64:
			if val > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows int64", val)
			}
			return int64(val), nil
		case float64:
			if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
				return nil, fmt.Errorf("value %v is not an integer", val)
			}
			if val < float64(math.MinInt64) || val >= float64(math.MaxInt64) {
				return nil, fmt.Errorf("value %v overflows int64", val)
			}
			return int64(val), nil
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not an integer", val)
			}
			return parsed, nil
		}
	case TypeFloat64:
		switch val := v.(type) {
		case float64:
			return val, nil
		case float32:
			return float64(val), nil
		case int:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a number", val)
			}
			return parsed, nil
		}
	case TypeBool:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("value %q is not a boolean", val)
			}
			return parsed, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

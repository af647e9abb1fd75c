package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

var (
	// ErrUnknownOperator is returned for operators outside = != > < >= <=.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrIncomparable is returned when an ordering operator is applied to non-numeric values.
	ErrIncomparable = errors.New("values are not comparable")
)

// Compare applies op to the device value and the configured value.
// Numeric values (including numeric strings) compare as numbers, booleans
// compare as "on"/"off", everything else compares as strings.
func Compare(actual any, op domain.Operator, expected any) (bool, error) {
	switch op {
	case domain.OpEqual, domain.OpNotEqual, domain.OpGreater, domain.OpLess,
		domain.OpGreaterOrEqual, domain.OpLessOrEqual:
	default:
		return false, fmt.Errorf("%q: %w", op, ErrUnknownOperator)
	}

	a, aNum := toFloat(actual)
	b, bNum := toFloat(expected)

	if aNum && bNum {
		return compareFloat(a, op, b), nil
	}

	as, bs := toText(actual), toText(expected)

	switch op {
	case domain.OpEqual:
		return as == bs, nil
	case domain.OpNotEqual:
		return as != bs, nil
	default:
		return false, fmt.Errorf("%q %s %q: %w", as, op, bs, ErrIncomparable)
	}
}

func compareFloat(a float64, op domain.Operator, b float64) bool {
	switch op {
	case domain.OpEqual:
		return a == b
	case domain.OpNotEqual:
		return a != b
	case domain.OpGreater:
		return a > b
	case domain.OpLess:
		return a < b
	case domain.OpGreaterOrEqual:
		return a >= b
	default:
		return a <= b
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return string(domain.LevelOn)
		}

		return string(domain.LevelOff)
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

package aql

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// convertValue checks value against the type of the compared field.
func convertValue(typ valueType, cmp Comparator, value interface{}) (interface{}, error) {
	if (cmp == Matches || cmp == NotMatches) && typ != typeString {
		return nil, fmt.Errorf("%s only applies to text fields", cmp)
	}

	switch typ {
	case typeString:
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		default:
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		if cmp == Matches || cmp == NotMatches {
			return likePattern(s), nil
		}
		return s, nil
	case typeInt:
		return toInt(value)
	case typeTime:
		return toTime(value)
	default:
		return nil, fmt.Errorf("unsupported value type %d", typ)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`, `?`, `_`)

// likePattern turns a wildcard pattern using * and ? into a LIKE pattern.
func likePattern(s string) string {
	return likeEscaper.Replace(s)
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}

func toTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, v)
	default:
		return time.Time{}, fmt.Errorf("expected an RFC 3339 timestamp, got %T", value)
	}
}

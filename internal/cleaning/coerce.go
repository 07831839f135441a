package cleaning

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// coerce converts v to kind. A value that cannot be represented yields
// (nil, true); null tokens yield (nil, false).
func coerce(v any, kind tabular.Kind, nullTokens map[string]bool) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		t := strings.TrimSpace(x)
		if nullTokens[strings.ToLower(t)] {
			return nil, false
		}
		return fromString(x, t, kind)
	case int64:
		switch kind {
		case tabular.KindInt:
			return x, false
		case tabular.KindFloat:
			return float64(x), false
		case tabular.KindString:
			return strconv.FormatInt(x, 10), false
		case tabular.KindBool:
			if x == 0 || x == 1 {
				return x == 1, false
			}
		}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, true
		}
		switch kind {
		case tabular.KindInt:
			return integral(x)
		case tabular.KindFloat:
			return x, false
		case tabular.KindString:
			return strconv.FormatFloat(x, 'g', -1, 64), false
		}
	case bool:
		switch kind {
		case tabular.KindBool:
			return x, false
		case tabular.KindString:
			return strconv.FormatBool(x), false
		case tabular.KindInt:
			if x {
				return int64(1), false
			}
			return int64(0), false
		}
	}
	return nil, true
}

func fromString(raw, t string, kind tabular.Kind) (any, bool) {
	switch kind {
	case tabular.KindString:
		return raw, false
	case tabular.KindInt:
		num := strings.ReplaceAll(t, ",", "")
		if n, err := strconv.ParseInt(num, 10, 64); err == nil {
			return n, false
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return integral(f)
	case tabular.KindFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(t, ",", ""), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return f, false
	case tabular.KindBool:
		switch strings.ToLower(t) {
		case "true", "t", "yes", "y", "1":
			return true, false
		case "false", "f", "no", "n", "0":
			return false, false
		}
	}
	return nil, true
}

func integral(f float64) (any, bool) {
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, true
	}
	return int64(f), false
}

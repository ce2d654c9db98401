package protocol

import (
	"fmt"
	"math/big"
	"strings"

	pickle "github.com/kisielk/og-rek"
)

// Tuple marks a sequence that should be pickled as a Python tuple
type Tuple = pickle.Tuple

// coerce maps a token to something the pickle encoder can represent.
// Anything that is not a primitive, sequence or mapping becomes a string.
func coerce(v any) any {
	switch x := v.(type) {
	case nil:
		return "None"
	case string, bool, float64, int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = coerce(item)
		}
		return out
	case Command:
		return coerce([]any(x))
	case Tuple:
		out := make(Tuple, len(x))
		for i, item := range x {
			out[i] = coerce(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[any]any, len(x))
		for k, item := range x {
			out[k] = coerce(item)
		}
		return out
	case map[string]struct{}:
		// sets travel as lists
		out := make([]any, 0, len(x))
		for k := range x {
			out = append(out, k)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// normalize converts decoder output into strings, int64, float64, bool,
// nil, []any and map[string]any
func normalize(v any) any {
	switch x := v.(type) {
	case nil, pickle.None:
		return nil
	case string, bool, float64, int64:
		return x
	case int:
		return int64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case []any:
		return normalizeSlice(x)
	case pickle.Tuple:
		return normalizeSlice(x)
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[fmt.Sprint(normalize(k))] = normalize(item)
		}
		return out
	case pickle.Call:
		return describeCall(x)
	case pickle.Class:
		return x.Name
	default:
		return fmt.Sprint(x)
	}
}

func normalizeSlice(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = normalize(item)
	}
	return out
}

// describeCall renders a reduced Python object, usually an exception, as
// "Name: arg, arg"
func describeCall(call pickle.Call) string {
	if len(call.Args) == 0 {
		return call.Callable.Name
	}
	args := make([]string, len(call.Args))
	for i, arg := range call.Args {
		args[i] = fmt.Sprint(normalize(arg))
	}
	return call.Callable.Name + ": " + strings.Join(args, ", ")
}

// Int extracts an integer from a decoded value
func Int(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case int:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// List extracts a sequence from a decoded value
func List(v any) ([]any, bool) {
	items, ok := v.([]any)
	return items, ok
}

// Strings extracts a sequence of strings from a decoded value
func Strings(v any) ([]string, bool) {
	items, ok := List(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Pair returns the second element of a (label, value) pair
func Pair(v any) (any, bool) {
	items, ok := List(v)
	if !ok || len(items) < 2 {
		return nil, false
	}
	return items[1], true
}

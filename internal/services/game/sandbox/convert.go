package sandbox

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Shopify/go-lua"
)

// pushValue pushes a decoded JSON value onto the Lua stack. Maps become
// tables keyed by string, slices become sequences indexed from 1.
func pushValue(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case string:
		l.PushString(v)
	case float64:
		l.PushNumber(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushNumber(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			l.PushString(v.String())
			return
		}
		l.PushNumber(f)
	case map[string]any:
		l.NewTable()
		for key, item := range v {
			pushValue(l, item)
			l.SetField(-2, key)
		}
	case []any:
		l.NewTable()
		for i, item := range v {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	default:
		l.PushString(fmt.Sprintf("%v", v))
	}
}

// valueAt reads the Lua value at index back into plain Go data. Tables whose
// keys are the contiguous integers 1..n come back as slices, everything else
// as string-keyed maps. Whole numbers come back as ints so they survive a
// round trip through JSON without picking up a decimal point.
func valueAt(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return normalizeNumber(n)
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		return tableAt(l, index)
	default:
		return nil
	}
}

func tableAt(l *lua.State, index int) any {
	index = l.AbsIndex(index)

	count := 0
	maxIndex := 0
	isArray := true
	l.PushNil()
	for l.Next(index) {
		count++
		if l.TypeOf(-2) == lua.TypeNumber {
			k, _ := l.ToNumber(-2)
			if k != math.Trunc(k) || k < 1 {
				isArray = false
			} else if int(k) > maxIndex {
				maxIndex = int(k)
			}
		} else {
			isArray = false
		}
		l.Pop(1)
	}

	if isArray && count > 0 && count == maxIndex {
		items := make([]any, 0, count)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			items = append(items, valueAt(l, -1))
			l.Pop(1)
		}
		return items
	}

	result := make(map[string]any, count)
	l.PushNil()
	for l.Next(index) {
		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
		case lua.TypeNumber:
			k, _ := l.ToNumber(-2)
			key = formatNumberKey(k)
		default:
			l.Pop(1)
			continue
		}
		result[key] = valueAt(l, -1)
		l.Pop(1)
	}
	return result
}

func normalizeNumber(v float64) any {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return int(v)
	}
	return v
}

func formatNumberKey(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%g", v)
}

// decodeDocument unmarshals a JSON document for the trip into Lua. Empty or
// absent documents decode to an empty object so validator code can index
// fields without nil checks.
func decodeDocument(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	if value == nil {
		return map[string]any{}, nil
	}
	return value, nil
}

// encodeDocument marshals a value read back out of Lua into a JSON document.
func encodeDocument(value any) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

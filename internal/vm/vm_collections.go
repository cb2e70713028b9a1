package vm

import (
	"fmt"
	"strings"
)

// maxRangeSize bounds the list materialized by range
const maxRangeSize = 1 << 24

// normalizeIndex wraps a negative index and bounds-checks it.
func normalizeIndex(key Value, n int, what string) (int, error) {
	if !key.IsInt() {
		return 0, fmt.Errorf("%s indices must be integers, not '%s'", what, key.TypeName())
	}
	i := key.AsInt()
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, fmt.Errorf("%s index out of range", what)
	}
	return int(i), nil
}

func index(coll, key Value) (Value, error) {
	switch c := coll.Obj.(type) {
	case *ObjList:
		i, err := normalizeIndex(key, len(c.Elements), "list")
		if err != nil {
			return NilVal(), err
		}
		return c.Elements[i], nil
	case *ObjTuple:
		i, err := normalizeIndex(key, len(c.Elements), "tuple")
		if err != nil {
			return NilVal(), err
		}
		return c.Elements[i], nil
	case *ObjString:
		runes := c.Runes()
		i, err := normalizeIndex(key, len(runes), "string")
		if err != nil {
			return NilVal(), err
		}
		return StringVal(string(runes[i])), nil
	case *ObjDict:
		k, ok := key.AsString()
		if !ok {
			return NilVal(), fmt.Errorf("dict keys must be str, not '%s'", key.TypeName())
		}
		v, found := c.Get(k)
		if !found {
			return NilVal(), fmt.Errorf("KeyError: %s", quoteString(k))
		}
		return v, nil
	}
	return NilVal(), fmt.Errorf("'%s' object is not subscriptable", coll.TypeName())
}

// setIndex returns a copy of coll with key set to value
func setIndex(coll, key, value Value) (Value, error) {
	switch c := coll.Obj.(type) {
	case *ObjList:
		if !key.IsInt() {
			return NilVal(), fmt.Errorf("list indices must be integers, not '%s'", key.TypeName())
		}
		i := key.AsInt()
		if i < 0 || i >= int64(len(c.Elements)) {
			return NilVal(), fmt.Errorf("list assignment index out of range")
		}
		elems := make([]Value, len(c.Elements))
		copy(elems, c.Elements)
		elems[i] = value
		return ListVal(elems), nil
	case *ObjDict:
		k, ok := key.AsString()
		if !ok {
			return NilVal(), fmt.Errorf("dict keys must be str, not '%s'", key.TypeName())
		}
		return ObjVal(c.With(k, value)), nil
	}
	return NilVal(), fmt.Errorf("'%s' object does not support item assignment", coll.TypeName())
}

// appendValue returns a new list; other aliases of the old list are
// unaffected.
func appendValue(list, value Value) (Value, error) {
	l, ok := list.Obj.(*ObjList)
	if !ok {
		return NilVal(), fmt.Errorf("'%s' object has no attribute 'append'", list.TypeName())
	}
	elems := make([]Value, len(l.Elements), len(l.Elements)+1)
	copy(elems, l.Elements)
	return ListVal(append(elems, value)), nil
}

func rangeList(a, b Value) (Value, error) {
	if !a.IsInt() || !b.IsInt() {
		return NilVal(), fmt.Errorf("range() arguments must be integers, not '%s' and '%s'", a.TypeName(), b.TypeName())
	}
	start, end := a.AsInt(), b.AsInt()
	if end <= start {
		return ListVal(nil), nil
	}
	if end-start > maxRangeSize || end-start < 0 {
		return NilVal(), fmt.Errorf("range() too large: %d elements", end-start)
	}
	elems := make([]Value, 0, end-start)
	for i := start; i < end; i++ {
		elems = append(elems, IntVal(i))
	}
	return ListVal(elems), nil
}

// sliceBound resolves an optional slice bound the way Python does:
// negative values count from the end and results are clamped.
func sliceBound(v Value, n, step int, isStart bool) (int, error) {
	if v.IsNil() {
		switch {
		case step > 0 && isStart:
			return 0, nil
		case step > 0:
			return n, nil
		case isStart:
			return n - 1, nil
		default:
			return -1, nil
		}
	}
	if !v.IsInt() {
		return 0, fmt.Errorf("slice indices must be integers or None, not '%s'", v.TypeName())
	}
	i := v.AsInt()
	if i < 0 {
		i += int64(n)
		if i < 0 {
			if step < 0 {
				return -1, nil
			}
			return 0, nil
		}
	}
	if i >= int64(n) {
		if step < 0 {
			return n - 1, nil
		}
		return n, nil
	}
	return int(i), nil
}

func sliceRange(n int, start, end, step Value) ([]int, error) {
	st := 1
	if !step.IsNil() {
		if !step.IsInt() {
			return nil, fmt.Errorf("slice indices must be integers or None, not '%s'", step.TypeName())
		}
		st = int(step.AsInt())
		if st == 0 {
			return nil, fmt.Errorf("slice step cannot be zero")
		}
	}
	s, err := sliceBound(start, n, st, true)
	if err != nil {
		return nil, err
	}
	e, err := sliceBound(end, n, st, false)
	if err != nil {
		return nil, err
	}

	var idx []int
	if st > 0 {
		for i := s; i < e; i += st {
			idx = append(idx, i)
		}
	} else {
		for i := s; i > e; i += st {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

func slice(coll, start, end, step Value) (Value, error) {
	var elems []Value
	switch c := coll.Obj.(type) {
	case *ObjList:
		elems = c.Elements
	case *ObjTuple:
		elems = c.Elements
	case *ObjString:
		runes := c.Runes()
		idx, err := sliceRange(len(runes), start, end, step)
		if err != nil {
			return NilVal(), err
		}
		out := make([]rune, len(idx))
		for j, i := range idx {
			out[j] = runes[i]
		}
		return StringVal(string(out)), nil
	default:
		return NilVal(), fmt.Errorf("'%s' object is not subscriptable", coll.TypeName())
	}

	idx, err := sliceRange(len(elems), start, end, step)
	if err != nil {
		return NilVal(), err
	}
	out := make([]Value, len(idx))
	for j, i := range idx {
		out[j] = elems[i]
	}
	if coll.Obj.Type() == TUPLE_OBJ {
		return TupleVal(out), nil
	}
	return ListVal(out), nil
}

func length(v Value) (int, error) {
	switch o := v.Obj.(type) {
	case *ObjString:
		return o.Len(), nil
	case *ObjList:
		return len(o.Elements), nil
	case *ObjTuple:
		return len(o.Elements), nil
	case *ObjDict:
		return len(o.Entries), nil
	}
	return 0, fmt.Errorf("object of type '%s' has no len()", v.TypeName())
}

// iterElement returns element i of an iterable, or false past the end.
func iterElement(coll Value, i int) (Value, bool, error) {
	switch c := coll.Obj.(type) {
	case *ObjList:
		if i < len(c.Elements) {
			return c.Elements[i], true, nil
		}
		return NilVal(), false, nil
	case *ObjTuple:
		if i < len(c.Elements) {
			return c.Elements[i], true, nil
		}
		return NilVal(), false, nil
	case *ObjString:
		runes := c.Runes()
		if i < len(runes) {
			return StringVal(string(runes[i])), true, nil
		}
		return NilVal(), false, nil
	}
	return NilVal(), false, fmt.Errorf("'%s' object is not iterable", coll.TypeName())
}

// iterValues materializes an iterable
func iterValues(v Value) ([]Value, error) {
	switch c := v.Obj.(type) {
	case *ObjList:
		return c.Elements, nil
	case *ObjTuple:
		out := make([]Value, len(c.Elements))
		copy(out, c.Elements)
		return out, nil
	case *ObjString:
		runes := c.Runes()
		out := make([]Value, len(runes))
		for i, r := range runes {
			out[i] = StringVal(string(r))
		}
		return out, nil
	}
	return nil, fmt.Errorf("'%s' object is not iterable", v.TypeName())
}

// zip pairs up iterables, stopping at the shortest. Arguments whose bit
// is set in mask are sequences of iterables spliced in place.
func zip(args []Value, mask int) (Value, error) {
	var sources [][]Value
	for i, arg := range args {
		if mask&(1<<i) != 0 {
			group, err := iterValues(arg)
			if err != nil {
				return NilVal(), err
			}
			for _, g := range group {
				elems, err := iterValues(g)
				if err != nil {
					return NilVal(), err
				}
				sources = append(sources, elems)
			}
			continue
		}
		elems, err := iterValues(arg)
		if err != nil {
			return NilVal(), err
		}
		sources = append(sources, elems)
	}

	if len(sources) == 0 {
		return ListVal(nil), nil
	}
	n := len(sources[0])
	for _, s := range sources[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		tuple := make([]Value, len(sources))
		for j, s := range sources {
			tuple[j] = s[i]
		}
		out[i] = TupleVal(tuple)
	}
	return ListVal(out), nil
}

// contains implements "needle in haystack"
func contains(needle, haystack Value) (bool, error) {
	switch h := haystack.Obj.(type) {
	case *ObjString:
		s, ok := needle.AsString()
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %s", needle.TypeName())
		}
		return strings.Contains(h.Value, s), nil
	case *ObjList:
		return containsValue(h.Elements, needle), nil
	case *ObjTuple:
		return containsValue(h.Elements, needle), nil
	case *ObjDict:
		k, ok := needle.AsString()
		if !ok {
			return false, nil
		}
		_, found := h.Get(k)
		return found, nil
	}
	return false, fmt.Errorf("argument of type '%s' is not iterable", haystack.TypeName())
}

func containsValue(elems []Value, v Value) bool {
	for _, e := range elems {
		if e.Equals(v) {
			return true
		}
	}
	return false
}

// buildDict builds a dict from alternating keys and values. Later
// duplicates overwrite earlier ones in place.
func buildDict(pairs []Value) (*ObjDict, error) {
	dict := &ObjDict{Entries: make([]DictEntry, 0, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].AsString()
		if !ok {
			return nil, fmt.Errorf("dict keys must be str, not '%s'", pairs[i].TypeName())
		}
		if _, dup := dict.Get(k); dup {
			dict = dict.With(k, pairs[i+1])
			continue
		}
		dict.Entries = append(dict.Entries, DictEntry{Key: k, Value: pairs[i+1]})
	}
	return dict, nil
}

package ctrace

import (
	"fmt"
	"math"
	"strconv"
)

// TagKind identifies which variant a TagValue holds.
type TagKind uint8

const (
	// StringTag holds a string.
	StringTag TagKind = iota + 1
	// BoolTag holds a boolean.
	BoolTag
	// IntTag holds a signed integer.
	IntTag
	// FloatTag holds a floating point number.
	FloatTag
)

// TagValue is a span tag value: exactly one of string, bool or number.
// The zero value is invalid and never stored.
type TagValue struct {
	s    string
	f    float64
	i    int64
	kind TagKind
	b    bool
}

// StringValue returns a string TagValue.
func StringValue(v string) TagValue { return TagValue{kind: StringTag, s: v} }

// BoolValue returns a boolean TagValue.
func BoolValue(v bool) TagValue { return TagValue{kind: BoolTag, b: v} }

// IntValue returns an integer TagValue.
func IntValue(v int64) TagValue { return TagValue{kind: IntTag, i: v} }

// FloatValue returns a floating point TagValue. NaN and the infinities are
// kept but encode as quoted strings; NewTagValue rejects them.
func FloatValue(v float64) TagValue { return TagValue{kind: FloatTag, f: v} }

// NewTagValue converts v into a TagValue. Strings, booleans and the builtin
// numeric types are accepted; anything else yields ErrUnsupportedTagType, as
// do unsigned values above math.MaxInt64 and non-finite floats.
func NewTagValue(v any) (TagValue, error) {
	switch x := v.(type) {
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case uint64:
		return uintValue(x)
	case float32:
		return finiteValue(float64(x))
	case float64:
		return finiteValue(x)
	case TagValue:
		if x.kind == 0 {
			return TagValue{}, fmt.Errorf("%w: empty TagValue", ErrUnsupportedTagType)
		}
		return x, nil
	default:
		return TagValue{}, fmt.Errorf("%w: %T", ErrUnsupportedTagType, v)
	}
}

func uintValue(x uint64) (TagValue, error) {
	if x > math.MaxInt64 {
		return TagValue{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedTagType, x)
	}
	return IntValue(int64(x)), nil
}

func finiteValue(x float64) (TagValue, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return TagValue{}, fmt.Errorf("%w: non-finite float %v", ErrUnsupportedTagType, x)
	}
	return FloatValue(x), nil
}

// Kind reports which variant v holds.
func (v TagValue) Kind() TagKind { return v.kind }

// Interface returns the held value as string, bool, int64 or float64.
func (v TagValue) Interface() any {
	switch v.kind {
	case StringTag:
		return v.s
	case BoolTag:
		return v.b
	case IntTag:
		return v.i
	case FloatTag:
		return v.f
	}
	return nil
}

// String renders the value without quoting.
func (v TagValue) String() string {
	return string(v.appendRaw(nil))
}

// appendRaw appends the unquoted textual form of v.
func (v TagValue) appendRaw(dst []byte) []byte {
	switch v.kind {
	case StringTag:
		return append(dst, v.s...)
	case BoolTag:
		return strconv.AppendBool(dst, v.b)
	case IntTag:
		return strconv.AppendInt(dst, v.i, 10)
	case FloatTag:
		return strconv.AppendFloat(dst, v.f, 'g', -1, 64)
	}
	return dst
}

// Tag is one key/value pair of a span's tag set.
type Tag struct {
	Key   string
	Value TagValue
}

// tagSet is an insertion-ordered map; overwriting a key keeps its position.
type tagSet struct {
	index map[string]int
	tags  []Tag
}

func (ts *tagSet) set(key string, value TagValue) {
	if i, ok := ts.index[key]; ok {
		ts.tags[i].Value = value
		return
	}
	if ts.index == nil {
		ts.index = make(map[string]int)
	}
	ts.index[key] = len(ts.tags)
	ts.tags = append(ts.tags, Tag{Key: key, Value: value})
}

func (ts *tagSet) get(key string) (TagValue, bool) {
	i, ok := ts.index[key]
	if !ok {
		return TagValue{}, false
	}
	return ts.tags[i].Value, true
}

// snapshot returns a copy safe to hand to readers, or nil when empty.
func (ts *tagSet) snapshot() []Tag {
	if len(ts.tags) == 0 {
		return nil
	}
	out := make([]Tag, len(ts.tags))
	copy(out, ts.tags)
	return out
}

func (ts *tagSet) clone() tagSet {
	if len(ts.tags) == 0 {
		return tagSet{}
	}
	c := tagSet{
		index: make(map[string]int, len(ts.index)),
		tags:  make([]Tag, len(ts.tags)),
	}
	copy(c.tags, ts.tags)
	for k, v := range ts.index {
		c.index[k] = v
	}
	return c
}

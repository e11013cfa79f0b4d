package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// segmentEscaper keeps user supplied values (ids, search terms) from
// introducing separators. Without it "a:b" as a search term would produce
// the same key as two distinct segments and prefix invalidation would stop
// matching on segment boundaries.
var segmentEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	",", "%2C",
	"=", "%3D",
	"{", "%7B",
	"}", "%7D",
)

// escapeSegment encodes a single key segment.
func escapeSegment(s string) string {
	return segmentEscaper.Replace(s)
}

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Maps are emitted with sorted keys and structs with their exported fields in
// declaration order so two logically identical arguments always produce the same key.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from a namespace and args.
// The namespace is trusted (it is one of our own constants) and is not escaped.
func (s *defaultKeySerializer) SerializeKey(namespace string, args ...any) string {
	if len(args) == 0 {
		return namespace
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, namespace)

	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

// serializeValue handles individual argument serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch tv := v.(type) {
	case Segment:
		return string(tv)
	case string:
		return escapeSegment(tv)
	case time.Time:
		return escapeSegment(tv.UTC().Format(time.RFC3339Nano))
	case time.Duration:
		return tv.String()
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice{}"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map{}"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.String:
		// named string types (Entity, Status, ...)
		return escapeSegment(rv.String())
	}

	if isBasicKind(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

// serializeList handles slices and arrays recursively. The length prefix
// keeps []string{"a,b"} and []string{"a", "b"} apart even before escaping.
func (s *defaultKeySerializer) serializeList(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("%s[%d]{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap handles map serialization with sorted keys for determinism
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		k := s.serializeValue(iter.Key().Interface())
		v := s.serializeValue(iter.Value().Interface())
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct handles struct serialization with field names
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+"="+s.serializeValue(fieldValue.Interface()))
	}

	return fmt.Sprintf("struct{%s}", strings.Join(parts, ","))
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// jsonFallback provides JSON serialization as a last resort
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback(" + escapeSegment(reflect.TypeOf(v).String()) + ")"
	}
	return "json" + escapeSegment(string(data))
}

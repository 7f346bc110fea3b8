package querycache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator delimits the segments of a serialized cache key.
const KeySeparator = "::"

// MaxKeyLength bounds serialized keys. Anything longer is collapsed to the
// query name plus an xxhash digest of the full serialization, so filter
// payloads of any size produce usable keys.
const MaxKeyLength = 160

// KeySerializer builds a cache key from a query name plus arbitrary args.
// Implementations must produce stable keys across calls: two argument sets
// that are equal must always serialize to the same key.
type KeySerializer interface {
	SerializeKey(query string, args ...any) string
}

// defaultKeySerializer serializes arguments with reflection: maps get
// sorted keys, structs contribute exported fields, and anything exotic
// falls back to JSON. Long keys are digested with xxhash.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

func (s *defaultKeySerializer) SerializeKey(query string, args ...any) string {
	if len(args) == 0 {
		return query
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, query)
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	key := strings.Join(parts, KeySeparator)
	if len(key) <= MaxKeyLength {
		return key
	}
	return query + KeySeparator + "h:" + strconv.FormatUint(xxhash.Sum64String(key), 16)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v)

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)

	case reflect.Array:
		return s.serializeList("array", rv)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)

	case reflect.Struct:
		return s.serializeStruct(rv)

	case reflect.Func, reflect.Chan:
		// Pointer formatting is only stable within one process lifetime,
		// which is all an in-memory cache needs.
		return fmt.Sprintf("%s:%p", rv.Kind(), v)

	default:
		return s.jsonFallback(v)
	}
}

func (s *defaultKeySerializer) serializeList(label string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", label, len(parts), strings.Join(parts, ","))
}

func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
	}
	// Map iteration order is random; sorting the rendered pairs makes the
	// key deterministic.
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Stability over perfection: an unserializable argument still
		// yields a usable, type-scoped key.
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

// Package fingerprint derives cache keys from the semantically relevant
// parts of a request.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Circular replaces a value that refers back to one of its ancestors.
const Circular = "[Circular]"

// Input holds the request fields that determine a cache key.
type Input struct {
	Task            string
	Context         any
	ShapeID         string
	Temperature     float64
	MaxTokens       int
	ProviderOptions map[string]any
}

// Compute returns the hex sha256 of the canonical form of in.
func Compute(in Input) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.Task))
	b.WriteByte(0)
	b.WriteString(Canonical(in.Context))
	b.WriteByte(0)
	b.WriteString(in.ShapeID)
	b.WriteByte(0)
	b.WriteString(strconv.FormatFloat(in.Temperature, 'g', -1, 64))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(in.MaxTokens))
	b.WriteByte(0)
	b.WriteString(Canonical(in.ProviderOptions))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Canonical serializes v as compact JSON with object keys sorted. Cycles
// become the Circular marker and func, chan and unsafe pointer values are
// omitted, so equal values always serialize identically.
func Canonical(v any) string {
	var b strings.Builder
	w := &writer{b: &b, seen: map[uintptr]bool{}}
	w.value(reflect.ValueOf(v))
	return b.String()
}

type writer struct {
	b    *strings.Builder
	seen map[uintptr]bool
}

var marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

func skippable(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	case reflect.Interface:
		return !v.IsNil() && skippable(v.Elem())
	}
	return false
}

func (w *writer) value(v reflect.Value) {
	if !v.IsValid() {
		w.b.WriteString("null")
		return
	}
	if v.Type().Implements(marshalerType) && (v.Kind() != reflect.Pointer || !v.IsNil()) {
		if data, err := v.Interface().(json.Marshaler).MarshalJSON(); err == nil {
			var decoded any
			if json.Unmarshal(data, &decoded) == nil {
				w.value(reflect.ValueOf(decoded))
				return
			}
		}
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		w.value(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		if w.enter(v.Pointer()) {
			return
		}
		defer w.leave(v.Pointer())
		w.value(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		if w.enter(v.Pointer()) {
			return
		}
		defer w.leave(v.Pointer())
		w.mapValue(v)
	case reflect.Slice:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			w.str(string(v.Bytes()))
			return
		}
		if w.enter(v.Pointer()) {
			return
		}
		defer w.leave(v.Pointer())
		w.list(v)
	case reflect.Array:
		w.list(v)
	case reflect.Struct:
		w.structValue(v)
	case reflect.String:
		w.str(v.String())
	case reflect.Bool:
		w.b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		w.float(v.Float())
	case reflect.Complex64, reflect.Complex128:
		w.str(strconv.FormatComplex(v.Complex(), 'g', -1, 128))
	default:
		w.b.WriteString("null")
	}
}

// enter reports true and writes the marker when p is already on the path.
func (w *writer) enter(p uintptr) bool {
	if w.seen[p] {
		w.str(Circular)
		return true
	}
	w.seen[p] = true
	return false
}

func (w *writer) leave(p uintptr) {
	delete(w.seen, p)
}

func (w *writer) float(f float64) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		w.b.WriteString("null")
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		w.b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	default:
		w.b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

func (w *writer) str(s string) {
	data, _ := json.Marshal(s)
	w.b.Write(data)
}

func (w *writer) list(v reflect.Value) {
	w.b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			w.b.WriteByte(',')
		}
		elem := v.Index(i)
		if skippable(elem) {
			w.b.WriteString("null")
			continue
		}
		w.value(elem)
	}
	w.b.WriteByte(']')
}

func (w *writer) mapValue(v reflect.Value) {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		if skippable(iter.Value()) {
			continue
		}
		entries = append(entries, entry{key: mapKey(iter.Key()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	w.b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.str(e.key)
		w.b.WriteByte(':')
		w.value(e.val)
	}
	w.b.WriteByte('}')
}

func mapKey(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10)
	default:
		return Canonical(k.Interface())
	}
}

func (w *writer) structValue(v reflect.Value) {
	t := v.Type()
	type entry struct {
		key string
		val reflect.Value
	}
	var entries []entry
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		omitEmpty := false
		if tag, ok := f.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" && len(parts) == 1 {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := v.Field(i)
		if skippable(fv) || (omitEmpty && fv.IsZero()) {
			continue
		}
		entries = append(entries, entry{key: name, val: fv})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	w.b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.str(e.key)
		w.b.WriteByte(':')
		w.value(e.val)
	}
	w.b.WriteByte('}')
}

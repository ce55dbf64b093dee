/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package serialize

import (
	"context"
	"encoding"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// Encoded marker values.
const (
	TypeKey     = "_type"
	TypeOpRef   = "OpRef"
	TypeBlob    = "CustomBlob"
	TypeFloat   = "float"
	defaultMIME = "application/octet-stream"
)

var (
	mapType        = reflect.TypeFor[*Map]()
	dictifierType  = reflect.TypeFor[Dictifier]()
	referencerType = reflect.TypeFor[Referencer]()
	ctxRefType     = reflect.TypeFor[ContextReferencer]()
	blobType       = reflect.TypeFor[Blob]()
	textType       = reflect.TypeFor[encoding.TextMarshaler]()
	errorType      = reflect.TypeFor[error]()
)

// DefaultRules returns the built-in dispatch table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "primitive", Match: isPrimitive, Encode: encodePrimitive},
		{Name: "mapping", Match: isMapping, Encode: encodeMapping},
		{Name: "sequence", Match: isSequence, Encode: encodeSequence},
		{Name: "dict", Match: implements(dictifierType), Encode: encodeDict},
		{Name: "opref", Match: isRef, Encode: encodeRef},
		{Name: "blob", Match: isBlob, Encode: encodeBlob},
		{Name: "text", Match: implements(textType), Encode: encodeText},
		{Name: "error", Match: implements(errorType), Encode: encodeError},
		{Name: "pointer", Match: isPointer, Encode: encodePointer},
		{Name: "record", Match: isRecord, Encode: encodeRecord},
		{Name: "fallback", Match: func(reflect.Value) bool { return true }, Encode: encodeFallback},
	}
}

func isPrimitive(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func encodePrimitive(_ context.Context, _ *Serializer, v reflect.Value, _ int) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	default:
		if u := v.Uint(); u <= math.MaxInt64 {
			return int64(u), nil
		}
		return v.Uint(), nil
	}
}

func isMapping(v reflect.Value) bool {
	return v.Kind() == reflect.Map || v.Type() == mapType
}

func encodeMapping(ctx context.Context, s *Serializer, v reflect.Value, depth int) (any, error) {
	if v.IsNil() {
		return nil, nil
	}
	out := NewMap()
	if v.Type() == mapType {
		for pair := v.Interface().(*Map).Oldest(); pair != nil; pair = pair.Next() {
			ev, err := s.EncodeChild(ctx, pair.Key, reflect.ValueOf(pair.Value), depth)
			if err != nil {
				return nil, err
			}
			out.Set(pair.Key, ev)
		}
		return out, nil
	}

	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: keyString(iter.Key()), val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })
	for _, e := range entries {
		ev, err := s.EncodeChild(ctx, e.key, e.val, depth)
		if err != nil {
			return nil, err
		}
		out.Set(e.key, ev)
	}
	return out, nil
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return Repr(k)
}

func isByteSeq(v reflect.Value) bool {
	k := v.Kind()
	return (k == reflect.Slice || k == reflect.Array) && v.Type().Elem().Kind() == reflect.Uint8
}

func isSequence(v reflect.Value) bool {
	k := v.Kind()
	return (k == reflect.Slice || k == reflect.Array) && !isByteSeq(v)
}

func encodeSequence(ctx context.Context, s *Serializer, v reflect.Value, depth int) (any, error) {
	if v.Kind() == reflect.Slice && v.IsNil() {
		return nil, nil
	}
	out := make([]any, v.Len())
	for i := range out {
		ev, err := s.encode(ctx, v.Index(i), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// implements matches values whose type has the capability, skipping nil
// pointers so they encode as null rather than panicking in a method call.
func implements(t reflect.Type) func(reflect.Value) bool {
	return func(v reflect.Value) bool {
		if !v.Type().Implements(t) || !v.CanInterface() {
			return false
		}
		return v.Kind() != reflect.Pointer || !v.IsNil()
	}
}

func encodeDict(ctx context.Context, s *Serializer, v reflect.Value, depth int) (any, error) {
	return s.encode(ctx, reflect.ValueOf(v.Interface().(Dictifier).ToDict()), depth+1)
}

func isRef(v reflect.Value) bool {
	return implements(referencerType)(v) || implements(ctxRefType)(v)
}

func encodeRef(ctx context.Context, _ *Serializer, v reflect.Value, _ int) (any, error) {
	var ref string
	switch r := v.Interface().(type) {
	case Referencer:
		ref = r.Ref()
	case ContextReferencer:
		ref = r.Ref(ctx)
	}
	if ref == "" {
		return Repr(v), nil
	}
	out := NewMap()
	out.Set(TypeKey, TypeOpRef)
	out.Set("ref", ref)
	return out, nil
}

func isBlob(v reflect.Value) bool {
	return isByteSeq(v) || implements(blobType)(v)
}

func encodeBlob(ctx context.Context, s *Serializer, v reflect.Value, _ int) (any, error) {
	var (
		data []byte
		mime = defaultMIME
	)
	if b, ok := v.Interface().(Blob); ok && v.Type().Implements(blobType) {
		var err error
		if data, err = b.BlobBytes(); err != nil {
			return nil, fmt.Errorf("reading blob %T: %w", b, err)
		}
		if ct := b.ContentType(); ct != "" {
			mime = ct
		}
	} else {
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		data = make([]byte, v.Len())
		reflect.Copy(reflect.ValueOf(data), v)
	}

	ref, err := s.blobs.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("storing blob: %w", err)
	}
	out := NewMap()
	out.Set(TypeKey, TypeBlob)
	out.Set("digest", ref.Digest)
	out.Set("path", ref.Path)
	out.Set("size", int64(ref.Size))
	out.Set("content_type", mime)
	return out, nil
}

func encodeText(_ context.Context, _ *Serializer, v reflect.Value, _ int) (any, error) {
	b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return Repr(v), nil
	}
	return string(b), nil
}

func encodeError(_ context.Context, _ *Serializer, v reflect.Value, _ int) (any, error) {
	return v.Interface().(error).Error(), nil
}

func isPointer(v reflect.Value) bool {
	return v.Kind() == reflect.Pointer
}

func encodePointer(ctx context.Context, s *Serializer, v reflect.Value, depth int) (any, error) {
	if v.IsNil() {
		return nil, nil
	}
	return s.encode(ctx, v.Elem(), depth+1)
}

func isRecord(v reflect.Value) bool {
	return v.Kind() == reflect.Struct && len(recordFields(v.Type())) > 0
}

type field struct {
	name  string
	index []int
}

// recordFields lists the exported fields of t by their json names, flattening
// untagged embedded structs.
func recordFields(t reflect.Type) []field {
	var out []field
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" && !strings.Contains(tag, ",") {
			continue
		}
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			for _, inner := range recordFields(f.Type) {
				out = append(out, field{name: inner.name, index: append([]int{i}, inner.index...)})
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		out = append(out, field{name: name, index: []int{i}})
	}
	return out
}

// Fields binds the exported fields of a struct to their names in declaration
// order without encoding them. It reports false for anything but a struct or
// a non-nil pointer to one.
func Fields(v any) (*Map, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	out := NewMap()
	for _, f := range recordFields(rv.Type()) {
		out.Set(f.name, rv.FieldByIndex(f.index).Interface())
	}
	return out, true
}

func encodeRecord(ctx context.Context, s *Serializer, v reflect.Value, depth int) (any, error) {
	out := NewMap()
	for _, f := range recordFields(v.Type()) {
		ev, err := s.EncodeChild(ctx, f.name, v.FieldByIndex(f.index), depth)
		if err != nil {
			return nil, err
		}
		out.Set(f.name, ev)
	}
	return out, nil
}

func encodeFallback(_ context.Context, _ *Serializer, v reflect.Value, _ int) (any, error) {
	return Repr(v), nil
}

// Repr is the stable, human-readable string used for values no rule can
// encode. It cannot be decoded back into the original value.
func Repr(v reflect.Value) string {
	if !v.IsValid() {
		return "<nil>"
	}
	if v.CanInterface() {
		if st, ok := v.Interface().(fmt.Stringer); ok && (v.Kind() != reflect.Pointer || !v.IsNil()) {
			return st.String()
		}
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Struct,
		reflect.Pointer, reflect.Map, reflect.Interface:
		return fmt.Sprintf("<%s>", v.Type())
	}
	if v.CanInterface() {
		return fmt.Sprint(v.Interface())
	}
	return fmt.Sprintf("<%s>", v.Type())
}

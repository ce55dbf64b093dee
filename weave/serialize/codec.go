/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package serialize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/wandb/weave-sub009/weave/blobstore"
)

// Special float tokens.
const (
	tokenNaN    = "NaN"
	tokenPosInf = "Infinity"
	tokenNegInf = "-Infinity"
)

// OpRef is the decoded form of an op reference. Every occurrence of the same
// ref in one decoded payload is the same *OpRef.
type OpRef struct {
	URI string
}

// Ref implements Referencer so a decoded ref encodes back to the same node.
func (r *OpRef) Ref() string { return r.URI }

// Marshal writes an encoded tree as JSON, replacing NaN and infinities with
// special float tokens.
func Marshal(tree any) ([]byte, error) {
	return json.Marshal(escapeFloats(tree))
}

func escapeFloats(v any) any {
	switch t := v.(type) {
	case float64:
		if tok, ok := floatToken(t); ok {
			m := NewMap()
			m.Set(TypeKey, TypeFloat)
			m.Set("value", tok)
			return m
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = escapeFloats(e)
		}
		return out
	case *Map:
		if t == nil {
			return t
		}
		out := NewMap()
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, escapeFloats(pair.Value))
		}
		return out
	default:
		return v
	}
}

func floatToken(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return tokenNaN, true
	case math.IsInf(f, 1):
		return tokenPosInf, true
	case math.IsInf(f, -1):
		return tokenNegInf, true
	default:
		return "", false
	}
}

// Unmarshal decodes JSON written by Marshal. Objects decode as *Map in
// document order, integers as int64 (or uint64 when too large), other
// numbers as float64, special float tokens as NaN or infinities, and op refs
// as shared *OpRef nodes. Containers are always fresh.
func Unmarshal(data []byte) (any, error) {
	d := &decoder{
		dec:  json.NewDecoder(bytes.NewReader(data)),
		refs: map[string]*OpRef{},
	}
	d.dec.UseNumber()
	v, err := d.value()
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	if _, err := d.dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decoding: trailing data after value")
	}
	return v, nil
}

type decoder struct {
	dec  *json.Decoder
	refs map[string]*OpRef
}

func (d *decoder) value() (any, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return d.object()
		case '[':
			return d.array()
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		return parseNumber(t)
	default:
		// string, bool or nil
		return t, nil
	}
}

func (d *decoder) object() (any, error) {
	m := NewMap()
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key %v is not a string", tok)
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, err
	}
	return d.revive(m), nil
}

func (d *decoder) array() (any, error) {
	out := []any{}
	for d.dec.More() {
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// revive turns marker objects back into the values they stand for.
func (d *decoder) revive(m *Map) any {
	typ, _ := m.Value(TypeKey).(string)
	switch typ {
	case TypeFloat:
		switch m.Value("value") {
		case tokenNaN:
			return math.NaN()
		case tokenPosInf:
			return math.Inf(1)
		case tokenNegInf:
			return math.Inf(-1)
		}
	case TypeOpRef:
		uri, ok := m.Value("ref").(string)
		if !ok || m.Len() != 2 {
			return m
		}
		if r, ok := d.refs[uri]; ok {
			return r
		}
		r := &OpRef{URI: uri}
		d.refs[uri] = r
		return r
	}
	return m
}

func parseNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u, nil
	}
	return n.Float64()
}

// IsBlobRef reports whether an encoded node is a blob reference.
func IsBlobRef(node any) bool {
	m, ok := node.(*Map)
	return ok && m.Value(TypeKey) == TypeBlob
}

// LoadBlob reads the bytes behind an encoded blob reference.
func LoadBlob(ctx context.Context, store blobstore.Store, node any) ([]byte, error) {
	if !IsBlobRef(node) {
		return nil, fmt.Errorf("%T is not a blob reference", node)
	}
	digest, _ := node.(*Map).Value("digest").(string)
	return store.Get(ctx, digest)
}

// Plain converts an encoded tree into builtin maps and slices, which is
// convenient for comparisons and templating. Order of mappings is lost.
func Plain(tree any) any {
	switch t := tree.(type) {
	case *Map:
		if t == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, t.Len())
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = Plain(pair.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Plain(e)
		}
		return out
	default:
		return tree
	}
}

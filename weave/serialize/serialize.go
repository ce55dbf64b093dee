/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package serialize

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/wandb/weave-sub009/weave/blobstore"
)

// Redacted replaces the value of every sensitive name.
const Redacted = "REDACTED"

const defaultMaxDepth = 32

// DefaultRedactKeys are the names redacted unless overridden.
var DefaultRedactKeys = []string{
	"api_key",
	"auth_headers",
	"authorization",
	"password",
	"secret",
	"token",
	"access_token",
	"refresh_token",
	"client_secret",
}

// Map is the encoded form of every mapping.
type Map = orderedmap.OrderedMap[string, any]

// NewMap returns an empty encoded mapping.
func NewMap() *Map { return orderedmap.New[string, any]() }

// Dictifier is implemented by values that know their own mapping form.
type Dictifier interface {
	ToDict() map[string]any
}

// Referencer is implemented by values that persist as a ref, such as
// decoded op refs.
type Referencer interface {
	Ref() string
}

// ContextReferencer is implemented by values whose ref depends on the
// client carried by the encoding context, such as ops. An empty ref means
// the value is not published and it falls back to its string form.
type ContextReferencer interface {
	Ref(ctx context.Context) string
}

// Blob is implemented by binary payloads such as images or audio.
type Blob interface {
	BlobBytes() ([]byte, error)
	ContentType() string
}

// Rule is one entry of the encoder's dispatch table.
type Rule struct {
	Name   string
	Match  func(v reflect.Value) bool
	Encode func(ctx context.Context, s *Serializer, v reflect.Value, depth int) (any, error)
}

// Serializer encodes values according to its rules.
type Serializer struct {
	redact   map[string]struct{}
	blobs    blobstore.Store
	rules    []Rule
	maxDepth int
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithRedactKeys replaces the sensitive name set. Matching is case-insensitive.
func WithRedactKeys(keys ...string) Option {
	return func(s *Serializer) {
		s.redact = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			s.redact[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
		}
	}
}

// WithBlobStore sets where binary payloads are written.
func WithBlobStore(store blobstore.Store) Option {
	return func(s *Serializer) { s.blobs = store }
}

// WithRule adds a custom rule ahead of the default rules.
func WithRule(r Rule) Option {
	return func(s *Serializer) { s.rules = append([]Rule{r}, s.rules...) }
}

// WithMaxDepth bounds recursion; deeper values fall back to a string.
func WithMaxDepth(depth int) Option {
	return func(s *Serializer) { s.maxDepth = depth }
}

// New returns a Serializer with the default rules.
func New(opts ...Option) *Serializer {
	s := &Serializer{
		blobs:    blobstore.NewMemory(),
		rules:    DefaultRules(),
		maxDepth: defaultMaxDepth,
	}
	WithRedactKeys(DefaultRedactKeys...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the dispatch table in evaluation order.
func (s *Serializer) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// IsSensitive reports whether values bound to name are redacted. Names
// are compared case-insensitively and in snake_case form, so APIKey and
// apiKey both match api_key.
func (s *Serializer) IsSensitive(name string) bool {
	if _, ok := s.redact[strings.ToLower(name)]; ok {
		return true
	}
	_, ok := s.redact[SnakeCase(name)]
	return ok
}

// SnakeCase lower-cases name and splits its camel-case words with
// underscores. Acronyms stay one word: APIKey becomes api_key.
func SnakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			acronymEnd := i > 0 && i+1 < len(runes) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1])
			if prevLower || acronymEnd {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Encode converts v into a JSON-safe tree. Errors come only from panicking
// user hooks and failing blob writes; unknown types never fail.
func (s *Serializer) Encode(ctx context.Context, v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("serializing %T: panic: %v", v, r)
		}
	}()
	return s.encode(ctx, reflect.ValueOf(v), 0)
}

// EncodeNamed encodes v as the value bound to name, redacting it when the
// name is sensitive.
func (s *Serializer) EncodeNamed(ctx context.Context, name string, v any) (any, error) {
	if s.IsSensitive(name) {
		return Redacted, nil
	}
	return s.Encode(ctx, v)
}

// EncodeInputs encodes a bound argument mapping, keeping parameter order.
// Every argument is attempted; the first failure is returned alongside a
// mapping in which failed arguments hold their fallback string.
func (s *Serializer) EncodeInputs(ctx context.Context, in *Map) (*Map, error) {
	out := NewMap()
	if in == nil {
		return out, nil
	}
	var firstErr error
	for pair := in.Oldest(); pair != nil; pair = pair.Next() {
		v, err := s.EncodeNamed(ctx, pair.Key, pair.Value)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("input %q: %w", pair.Key, err)
			}
			v = Repr(reflect.ValueOf(pair.Value))
		}
		out.Set(pair.Key, v)
	}
	return out, firstErr
}

func (s *Serializer) encode(ctx context.Context, v reflect.Value, depth int) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if depth > s.maxDepth {
		return Repr(v), nil
	}
	for _, r := range s.rules {
		if r.Match(v) {
			return r.Encode(ctx, s, v, depth)
		}
	}
	return Repr(v), nil
}

// EncodeChild encodes a value nested one level below depth and bound to key.
// Custom rules use it to recurse.
func (s *Serializer) EncodeChild(ctx context.Context, key string, v reflect.Value, depth int) (any, error) {
	if s.IsSensitive(key) {
		return Redacted, nil
	}
	return s.encode(ctx, v, depth+1)
}

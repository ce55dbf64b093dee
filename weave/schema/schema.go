/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema derives JSON schemas for op signatures.
package schema

import (
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// Generator reflects Go types into JSON schemas.
type Generator struct {
	reflector jsonschema.Reflector
}

// NewGenerator returns a generator that inlines every nested type. Inlined
// schemas are easy to read and to hand to a model, but reflecting a
// recursive type with them never terminates.
func NewGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
		},
	}
}

// NewReferencingGenerator returns a generator that describes the root type
// inline and keeps nested named types under $defs, so any Go type can be
// reflected.
func NewReferencingGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			AllowAdditionalProperties:  true,
		},
	}
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.ReflectType(reflect.TypeOf(v))
}

// ReflectType returns the JSON schema of t, or nil when the reflector cannot
// describe it.
func (g *Generator) ReflectType(t reflect.Type) (s *jsonschema.Schema) {
	defer func() {
		if recover() != nil {
			s = nil
		}
	}()
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return g.reflector.ReflectFromType(t)
}

// Reflect derives the inlined JSON schema for the provided value.
func Reflect(v any) *jsonschema.Schema {
	return NewGenerator().Reflect(v)
}

// ReflectType reflects T with inlined nested types.
func ReflectType[T any]() *jsonschema.Schema {
	return NewGenerator().ReflectType(reflect.TypeFor[T]())
}

// Signature is the recorded shape of an op.
type Signature struct {
	Input  *jsonschema.Schema `json:"input,omitempty"`
	Output *jsonschema.Schema `json:"output,omitempty"`
	// Params lists input parameter names in declaration order. It is empty
	// when the input is not a struct.
	Params []string `json:"params,omitempty"`
}

var signatures = NewReferencingGenerator()

// SignatureOf reflects the input and output types of an op. Types the
// reflector cannot describe leave the corresponding schema nil.
func SignatureOf[In, Out any]() Signature {
	in := inline(signatures.ReflectType(reflect.TypeFor[In]()))
	return Signature{
		Input:  in,
		Output: inline(signatures.ReflectType(reflect.TypeFor[Out]())),
		Params: ParamNames(in),
	}
}

// ParamNames returns the property names of an object schema in order.
func ParamNames(s *jsonschema.Schema) []string {
	if s == nil || s.Properties == nil {
		return nil
	}
	names := make([]string, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// inline replaces a root $ref with the definition it points at. The
// definitions stay attached so nested references still resolve.
func inline(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil || s.Ref == "" || s.Definitions == nil {
		return s
	}
	name, ok := strings.CutPrefix(s.Ref, "#/$defs/")
	if !ok {
		return s
	}
	def, ok := s.Definitions[name]
	if !ok || def == nil {
		return s
	}
	root := *def
	root.Version = s.Version
	root.ID = s.ID
	root.Definitions = s.Definitions
	return &root
}

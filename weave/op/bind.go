/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package op

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/go-viper/mapstructure/v2"

	"github.com/wandb/weave-sub009/weave/serialize"
)

// InputKey names the single parameter of ops whose input is neither a
// struct nor a map.
const InputKey = "input"

// SelfKey names the receiver of a method op.
const SelfKey = "self"

// bind maps an op input to parameter names in declaration order. Struct
// fields bind by json name, string-keyed maps by sorted key, and anything
// else binds as a single "input" parameter.
func bind(in any) *serialize.Map {
	if m, ok := in.(*serialize.Map); ok && m != nil {
		out := serialize.NewMap()
		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
		return out
	}
	if m, ok := serialize.Fields(in); ok {
		return m
	}

	out := serialize.NewMap()
	rv := reflect.ValueOf(in)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		for _, k := range keys {
			out.Set(k, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
		}
		return out
	}
	out.Set(InputKey, in)
	return out
}

// Decode binds name-keyed arguments to an op input. Struct fields are
// matched by json name, missing names keep their zero value and unknown
// names are ignored, so one row can feed ops that declare different
// parameters. Inputs that are neither structs nor maps take args["input"].
func Decode[T any](args map[string]any) (T, error) {
	var out T
	if v, ok := any(args).(T); ok {
		return v, nil
	}

	var src any = args
	base := reflect.TypeFor[T]()
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct && base.Kind() != reflect.Map {
		src = args[InputKey]
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Squash:           true,
		Result:           &out,
	})
	if err != nil {
		return out, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(src); err != nil {
		return out, fmt.Errorf("decoding %T: %w", out, err)
	}
	return out, nil
}

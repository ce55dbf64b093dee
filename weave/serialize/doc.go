/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package serialize turns arbitrary Go values into JSON-safe trees for
// transport and storage, and decodes the common cases back.
//
// Encoding walks an ordered list of rules and uses the first that matches.
// Values bound to a sensitive name (a map key, struct field or op parameter
// such as "api_key") are replaced by the Redacted marker before any rule runs.
// The default rules, in priority order:
//
//   - primitive: nil, booleans, integers, floats and strings pass through
//     (integers widen to int64, floats to float64)
//   - mapping: maps recurse with stringified keys; ordered maps keep their
//     order and Go maps are emitted in sorted key order
//   - sequence: slices and arrays recurse elementwise ([]byte excluded)
//   - dict: values implementing Dictifier are replaced by ToDict()
//   - opref: values implementing Referencer or ContextReferencer encode as a
//     reference node; ops publish themselves through the context's client
//   - blob: []byte and Blob values are stored out of band and encoded as a
//     content-addressed reference
//   - text: encoding.TextMarshaler values become their text form
//   - pointer: non-nil pointers and interfaces are dereferenced
//   - record: structs with exported fields encode field by field, keyed by
//     their json names
//   - fallback: anything else becomes a stable string. This loses data on
//     purpose and does not decode back to the original value.
//
// The encoded tree only contains nil, bool, int64, uint64, float64, string,
// []any and *orderedmap.OrderedMap[string, any]. NaN and infinities are
// valid floats in the tree; Marshal writes them as special tokens that
// Unmarshal reads back.
package serialize

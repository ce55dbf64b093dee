/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"maps"
)

type attributesKey struct{}

// WithAttributes returns a context under which every created call carries
// attrs. Nested uses merge, with inner values winning.
func WithAttributes(ctx context.Context, attrs map[string]any) context.Context {
	merged := maps.Clone(Attributes(ctx))
	if merged == nil {
		merged = make(map[string]any, len(attrs))
	}
	maps.Copy(merged, attrs)
	return context.WithValue(ctx, attributesKey{}, merged)
}

// Attributes returns the attributes set on ctx with WithAttributes.
func Attributes(ctx context.Context) map[string]any {
	attrs, _ := ctx.Value(attributesKey{}).(map[string]any)
	return attrs
}

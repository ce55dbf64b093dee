/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package op_test

import "reflect"

func reflectValue(v any) reflect.Value { return reflect.ValueOf(v) }

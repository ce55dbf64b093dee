/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package testevals reports evaluation verdicts through the testing package,
// so a failing score fails the enclosing test.
//
//	eval := &evals.Evaluation{
//		Dataset: dataset,
//		Scorers: []op.Op{exactMatch},
//		Observe: testevals.Observe(t),
//	}
//	if _, err := eval.Evaluate(ctx, model); err != nil {
//		t.Fatal(err)
//	}
package testevals

/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders evaluation outcomes as text.
//
// Tree reports work on a NamespacedObserver of ResultCollectors, such as
// the one an Evaluation fills through evals.Namespaced. Simple prints every
// node; ByScorer assumes the /{model}/{example}/{scorer} layout and groups
// the results by scorer. Summary renders the mapping Evaluate returns.
package report

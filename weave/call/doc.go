/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package call holds the record of a single op invocation and the summary
// roll-up that folds finished children into their parent.
//
// A Call is created in the running state, collects the summaries of its
// children as they finish, and transitions to success or error exactly once:
//
//	c := call.New("project", "adder", parent)
//	// ... run the op ...
//	if err := c.Finish(output, "", time.Now()); err != nil {
//		// already finished
//	}
//	parent.AddChild(c)
//
// Children that are still running when their parent finishes are not part of
// the parent's summary. Fire-and-forget work therefore may be missing from
// the roll-up.
package call

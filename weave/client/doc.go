/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package client owns the process-wide tracing session.
//
// A Client ties together a trace server, a serializer and the call stack
// carried by context.Context. Ops ask FromContext for the client to trace
// with; when there is none they run untraced.
//
//	c, err := client.Init(ctx, "my-team/my-project")
//	if err != nil {
//		return err
//	}
//	defer client.Finish(ctx)
//
// Everything the client does on behalf of a traced call is best effort.
// Serialization and trace server failures are logged through clog, counted
// in weave_tracing_failures_total and otherwise ignored, so a broken backend
// never changes what the traced program computes.
//
// # Known limitations
//
// A parent's summary only includes children that finished before the parent
// did. Work started in a goroutine that outlives its parent is recorded as
// a child but is not folded into the parent's summary.
package client

/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package traceserver defines the boundary through which calls, feedback and
// op objects are persisted and queried.
package traceserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/feedback"
)

var (
	// ErrNotFound is returned when a referenced call or object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a call is started twice or finished twice.
	ErrConflict = errors.New("conflict")
)

// StartReq persists a new, running call.
type StartReq struct {
	Call call.Schema `json:"start"`
}

// EndReq marks a call complete.
type EndReq struct {
	Project   string         `json:"project_id"`
	ID        string         `json:"id"`
	Output    any            `json:"output,omitempty"`
	Exception string         `json:"exception,omitempty"`
	Summary   map[string]any `json:"summary,omitempty"`
	EndedAt   time.Time      `json:"ended_at"`
}

// Filter selects calls. Empty fields match everything.
type Filter struct {
	Project   string   `json:"project_id"`
	OpNames   []string `json:"op_names,omitempty"`
	TraceIDs  []string `json:"trace_ids,omitempty"`
	CallIDs   []string `json:"call_ids,omitempty"`
	ParentIDs []string `json:"parent_ids,omitempty"`
	// TraceRootsOnly keeps only calls without a parent.
	TraceRootsOnly bool `json:"trace_roots_only,omitempty"`
	// Offset and Limit page through the matches; Limit 0 means no limit.
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

// Match reports whether s passes the filter, ignoring paging.
func (f Filter) Match(s call.Schema) bool {
	switch {
	case f.Project != "" && s.Project != f.Project:
		return false
	case len(f.OpNames) > 0 && !slices.Contains(f.OpNames, s.OpName):
		return false
	case len(f.TraceIDs) > 0 && !slices.Contains(f.TraceIDs, s.TraceID):
		return false
	case len(f.CallIDs) > 0 && !slices.Contains(f.CallIDs, s.ID):
		return false
	case len(f.ParentIDs) > 0 && !slices.Contains(f.ParentIDs, s.ParentID):
		return false
	case f.TraceRootsOnly && s.ParentID != "":
		return false
	default:
		return true
	}
}

// Page applies Offset and Limit to an ordered result.
func (f Filter) Page(in []call.Schema) []call.Schema {
	if f.Offset >= len(in) {
		return nil
	}
	in = in[f.Offset:]
	if f.Limit > 0 && f.Limit < len(in) {
		in = in[:f.Limit]
	}
	return in
}

// Object is a versioned, content-addressed value such as an op definition.
type Object struct {
	Project string `json:"project_id"`
	// Kind is "op" for ops and "object" for everything else.
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Digest string `json:"digest"`
	Value  any    `json:"val"`
}

// Ref returns the weave:/// reference of the object.
func (o Object) Ref() string {
	return ObjectRef(o.Project, o.Kind, o.Name, o.Digest)
}

// ObjectRef builds a weave:///<project>/<kind>/<name>:<digest> reference.
func ObjectRef(project, kind, name, digest string) string {
	return fmt.Sprintf("weave:///%s/%s/%s:%s", project, kind, name, digest)
}

// Interface is what the tracing engine needs from a backend.
//
// CreateCall is issued before the traced function runs, so a crash leaves a
// running record behind. QueryCalls returns matches in the order their
// CreateCall was received.
type Interface interface {
	feedback.Sink

	CreateCall(ctx context.Context, req StartReq) error
	FinishCall(ctx context.Context, req EndReq) error
	QueryCalls(ctx context.Context, filter Filter) ([]call.Schema, error)
	QueryFeedback(ctx context.Context, callID string) ([]feedback.Record, error)
	CreateObject(ctx context.Context, obj Object) (string, error)
	ReadObject(ctx context.Context, ref string) (Object, error)
}

// Flusher is implemented by servers that buffer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package call

import "time"

// Schema is the persisted form of a call, as exchanged with a trace server.
type Schema struct {
	ID          string         `json:"id"`
	Project     string         `json:"project_id"`
	OpName      string         `json:"op_name"`
	OpRef       string         `json:"op_ref,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	TraceID     string         `json:"trace_id"`
	ParentID    string         `json:"parent_id,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Inputs      *Inputs        `json:"inputs"`
	Output      any            `json:"output,omitempty"`
	Exception   string         `json:"exception,omitempty"`
	Summary     map[string]any `json:"summary,omitempty"`
}

// Status derives the lifecycle state of the persisted call.
func (s Schema) Status() Status {
	if s.EndedAt == nil {
		return StatusRunning
	}
	return statusOf(*s.EndedAt, s.Exception)
}

// Schema snapshots the call for persistence.
func (c *Call) Schema() Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Schema{
		ID:          c.ID,
		Project:     c.Project,
		OpName:      c.OpName,
		OpRef:       c.OpRef,
		DisplayName: c.DisplayName,
		TraceID:     c.TraceID,
		ParentID:    c.ParentID,
		StartedAt:   c.StartedAt,
		Attributes:  c.Attributes,
		Inputs:      c.Inputs,
		Output:      c.output,
		Exception:   c.exception,
		Summary:     Clone(c.summary),
	}
	if !c.endedAt.IsZero() {
		ended := c.endedAt
		s.EndedAt = &ended
	}
	return s
}

// FromSchema rebuilds a call handle from its persisted form. The result has
// no children attached; use a trace server query to walk the tree.
func FromSchema(s Schema) *Call {
	c := &Call{
		ID:          s.ID,
		TraceID:     s.TraceID,
		ParentID:    s.ParentID,
		Project:     s.Project,
		OpName:      s.OpName,
		OpRef:       s.OpRef,
		DisplayName: s.DisplayName,
		Inputs:      s.Inputs,
		Attributes:  s.Attributes,
		StartedAt:   s.StartedAt,
		output:      s.Output,
		exception:   s.Exception,
		summary:     Clone(s.Summary),
	}
	if c.Inputs == nil {
		c.Inputs = NewInputs()
	}
	if s.EndedAt != nil {
		c.endedAt = *s.EndedAt
		c.finishing = true
	}
	return c
}

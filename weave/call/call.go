/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package call

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrAlreadyFinished is returned by Finish when the call has already ended.
var ErrAlreadyFinished = errors.New("call already finished")

// Inputs is the serialized argument mapping of a call, in declaration order.
type Inputs = orderedmap.OrderedMap[string, any]

// NewInputs returns an empty input mapping.
func NewInputs() *Inputs {
	return orderedmap.New[string, any]()
}

// Call is one recorded invocation of an op.
//
// Identity fields are fixed at creation. Everything that changes while the
// call runs is guarded by mu and read through accessors.
type Call struct {
	ID          string
	TraceID     string
	ParentID    string
	Project     string
	OpName      string
	OpRef       string
	DisplayName string
	Inputs      *Inputs
	Attributes  map[string]any
	StartedAt   time.Time

	mu        sync.Mutex
	finishing bool
	output    any
	exception string
	endedAt   time.Time
	summary   map[string]any
	contrib   map[string]any
	children  []*Call
	sink      feedbackSink
}

// New creates a running call for opName. A nil parent makes it the root of a
// new trace; otherwise it joins the parent's trace.
func New(project, opName string, parent *Call) *Call {
	c := &Call{
		ID:          newID(),
		Project:     project,
		OpName:      opName,
		DisplayName: opName,
		Inputs:      NewInputs(),
		Attributes:  map[string]any{},
		StartedAt:   time.Now(),
	}
	if parent == nil {
		c.TraceID = newID()
	} else {
		c.TraceID = parent.TraceID
		c.ParentID = parent.ID
	}
	return c
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Status derives the call state from its end time and exception.
func (c *Call) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return statusOf(c.endedAt, c.exception)
}

func statusOf(endedAt time.Time, exception string) Status {
	switch {
	case endedAt.IsZero():
		return StatusRunning
	case exception != "":
		return StatusError
	default:
		return StatusSuccess
	}
}

// Output returns the serialized output, nil while running.
func (c *Call) Output() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// Exception returns the recorded error description, empty on success.
func (c *Call) Exception() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exception
}

// EndedAt returns when the call finished, the zero time while running.
func (c *Call) EndedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endedAt
}

// Summary returns a copy of the finished call's summary.
func (c *Call) Summary() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Clone(c.summary)
}

// Children returns the direct children that finished under this call, in
// the order they finished.
func (c *Call) Children() []*Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Call, len(c.children))
	copy(out, c.children)
	return out
}

// AddSummary merges a custom contribution into the call's own summary. It is
// how finish handlers report things like token usage.
func (c *Call) AddSummary(contrib map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contrib = Merge(c.contrib, contrib)
}

// Contribution returns a copy of what AddSummary has merged so far, without
// the children's summaries.
func (c *Call) Contribution() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Clone(c.contrib)
}

// AddChild registers a finished child so its summary is folded into this
// call's summary when it finishes. Children added after this call finished
// are still recorded for navigation but do not change the summary.
func (c *Call) AddChild(child *Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = append(c.children, child)
}

// Finish transitions the call out of running. The summary becomes the merge
// of the call's own contribution with the summaries of every child already
// registered through AddChild.
func (c *Call) Finish(output any, exception string, endedAt time.Time) error {
	c.mu.Lock()
	if c.finishing {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyFinished, c.ID)
	}
	c.finishing = true
	contrib := Clone(c.contrib)
	children := make([]*Call, len(c.children))
	copy(children, c.children)
	c.mu.Unlock()

	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	status := statusOf(endedAt, exception)

	acc := Merge(nil, map[string]any{
		KeyLatencyMS:    float64(endedAt.Sub(c.StartedAt).Microseconds()) / 1000,
		KeyStatusCounts: map[string]any{string(status): int64(1)},
	})
	acc = Merge(acc, contrib)
	for _, child := range children {
		acc = Merge(acc, child.Summary())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = output
	c.exception = exception
	c.endedAt = endedAt
	c.summary = acc
	return nil
}

// Walk visits c and its finished descendants depth-first.
func (c *Call) Walk(fn func(c *Call, depth int)) {
	c.walk(fn, 0)
}

func (c *Call) walk(fn func(*Call, int), depth int) {
	fn(c, depth)
	for _, child := range c.Children() {
		child.walk(fn, depth+1)
	}
}

// String renders a one-line description for logs.
func (c *Call) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Call[%s] %s (trace=%s", c.ID, c.OpName, c.TraceID)
	if c.ParentID != "" {
		fmt.Fprintf(&sb, ", parent=%s", c.ParentID)
	}
	fmt.Fprintf(&sb, ") %s", c.Status())
	return sb.String()
}

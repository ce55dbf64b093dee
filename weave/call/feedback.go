/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wandb/weave-sub009/weave/feedback"
)

// ErrNoFeedbackSink is returned when feedback is added to a call that is not
// attached to a client.
var ErrNoFeedbackSink = errors.New("call is not attached to a feedback sink")

type feedbackSink = feedback.Sink

// BindFeedback attaches the sink that Feedback().Add writes through.
func (c *Call) BindFeedback(sink feedback.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Feedback returns the feedback handle for the call.
func (c *Call) Feedback() *Feedback {
	return &Feedback{call: c}
}

// Feedback attaches out-of-band judgments to a call.
type Feedback struct {
	call *Call
}

// Add validates and persists one piece of feedback, returning its id.
// Malformed types and bad annotation refs are rejected before anything is
// written.
func (f *Feedback) Add(ctx context.Context, feedbackType string, payload any, annotationRef string) (string, error) {
	if err := feedback.Validate(feedbackType, annotationRef); err != nil {
		return "", err
	}

	f.call.mu.Lock()
	sink := f.call.sink
	f.call.mu.Unlock()
	if sink == nil {
		return "", fmt.Errorf("%w: %s", ErrNoFeedbackSink, f.call.ID)
	}

	rec := feedback.Record{
		ID:            newID(),
		CallID:        f.call.ID,
		TraceID:       f.call.TraceID,
		Type:          feedbackType,
		Payload:       payload,
		AnnotationRef: annotationRef,
		CreatedAt:     time.Now(),
	}
	if err := sink.CreateFeedback(ctx, rec); err != nil {
		return "", fmt.Errorf("creating feedback for call %s: %w", f.call.ID, err)
	}
	return rec.ID, nil
}

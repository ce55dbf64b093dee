/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package feedback

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// annotationPrefix marks feedback types that must reference a published annotation object.
	annotationPrefix = "wandb.annotation."

	// refPrefix is the scheme every object reference carries.
	refPrefix = "weave:///"
)

var (
	// ErrInvalidType is returned when a feedback type string is malformed.
	ErrInvalidType = errors.New("invalid feedback type")

	// ErrInvalidAnnotationRef is returned when an annotation ref is missing, malformed,
	// or supplied for a feedback type that does not accept one.
	ErrInvalidAnnotationRef = errors.New("invalid annotation ref")

	typePattern = regexp.MustCompile(`^wandb\.[A-Za-z0-9_]+(\.[A-Za-z0-9_-]+)*$`)
	namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Record is a single piece of feedback attached to a call.
type Record struct {
	ID            string    `json:"id"`
	CallID        string    `json:"call_id"`
	TraceID       string    `json:"trace_id"`
	Type          string    `json:"feedback_type"`
	Payload       any       `json:"payload"`
	AnnotationRef string    `json:"annotation_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sink persists feedback records.
type Sink interface {
	CreateFeedback(ctx context.Context, rec Record) error
}

// Validate checks a feedback type and its optional annotation ref.
//
// Types take the form "wandb.<kind>[.<name>...]". Types under "wandb.annotation."
// must name an annotation and carry a "weave:///" object ref whose final path
// segment matches that name; every other type must not carry a ref.
func Validate(feedbackType, annotationRef string) error {
	if !typePattern.MatchString(feedbackType) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidType, feedbackType, typePattern)
	}

	name, isAnnotation := strings.CutPrefix(feedbackType, annotationPrefix)
	if !isAnnotation {
		if feedbackType == strings.TrimSuffix(annotationPrefix, ".") {
			return fmt.Errorf("%w: %q is missing an annotation name", ErrInvalidType, feedbackType)
		}
		if annotationRef != "" {
			return fmt.Errorf("%w: feedback type %q does not accept an annotation ref", ErrInvalidAnnotationRef, feedbackType)
		}
		return nil
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: annotation name %q must match %s", ErrInvalidType, name, namePattern)
	}
	if annotationRef == "" {
		return fmt.Errorf("%w: feedback type %q requires an annotation ref", ErrInvalidAnnotationRef, feedbackType)
	}
	return validateRef(name, annotationRef)
}

// validateRef checks refs of the form weave:///<entity>/<project>/object/<name>:<digest>.
func validateRef(name, ref string) error {
	rest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return fmt.Errorf("%w: %q must start with %s", ErrInvalidAnnotationRef, ref, refPrefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 4 || parts[len(parts)-2] != "object" {
		return fmt.Errorf("%w: %q is not an object ref", ErrInvalidAnnotationRef, ref)
	}
	objName, digest, ok := strings.Cut(parts[len(parts)-1], ":")
	if !ok || digest == "" {
		return fmt.Errorf("%w: %q is missing a version digest", ErrInvalidAnnotationRef, ref)
	}
	if objName != name {
		return fmt.Errorf("%w: ref names %q but feedback type names %q", ErrInvalidAnnotationRef, objName, name)
	}
	return nil
}

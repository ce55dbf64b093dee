/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wandb/weave-sub009/weave/feedback"
)

func TestStatusTransitions(t *testing.T) {
	c := New("p", "op", nil)
	if got := c.Status(); got != StatusRunning {
		t.Errorf("new call: got = %v, wanted = %v", got, StatusRunning)
	}
	if c.ParentID != "" {
		t.Errorf("root ParentID: got = %q, wanted empty", c.ParentID)
	}

	if err := c.Finish(5, "", time.Time{}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := c.Status(); got != StatusSuccess {
		t.Errorf("finished call: got = %v, wanted = %v", got, StatusSuccess)
	}
	if c.EndedAt().IsZero() {
		t.Error("EndedAt: got zero, wanted set")
	}

	if err := c.Finish(6, "again", time.Now()); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("second Finish: got = %v, wanted = %v", err, ErrAlreadyFinished)
	}
	if got := c.Output(); got != 5 {
		t.Errorf("Output after second Finish: got = %v, wanted = 5", got)
	}
}

func TestFinishExactlyOnceConcurrently(t *testing.T) {
	c := New("p", "op", nil)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 16 {
		wg.Go(func() {
			if err := c.Finish(i, "", time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("successful Finish calls: got = %d, wanted = 1", wins)
	}
}

func TestErrorStatus(t *testing.T) {
	c := New("p", "op", nil)
	if err := c.Finish(nil, "boom", time.Now()); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := c.Status(); got != StatusError {
		t.Errorf("Status: got = %v, wanted = %v", got, StatusError)
	}
	got, err := Lookup(c.Summary(), KeyStatusCounts, string(StatusError))
	if err != nil || got != int64(1) {
		t.Errorf("status_counts.error: got = %v (%v), wanted = 1", got, err)
	}
}

func TestUnfinishedChildExcluded(t *testing.T) {
	parent := New("p", "parent", nil)
	done := New("p", "done", parent)
	pending := New("p", "pending", parent)

	done.AddSummary(Usage("m", 1, 1, 1, 2))
	pending.AddSummary(Usage("m", 1, 100, 100, 200))

	if err := done.Finish(nil, "", time.Now()); err != nil {
		t.Fatal(err)
	}
	parent.AddChild(done)
	if err := parent.Finish(nil, "", time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := Lookup(parent.Summary(), KeyUsage, "m", "total_tokens")
	if err != nil || got != int64(2) {
		t.Errorf("total_tokens: got = %v (%v), wanted = 2", got, err)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	c := New("p", "op", nil)
	c.Inputs.Set("a", int64(1))
	if s := c.Schema(); s.Status() != StatusRunning || s.EndedAt != nil {
		t.Errorf("running schema: got status %v, ended %v", s.Status(), s.EndedAt)
	}
	if err := c.Finish("out", "", time.Now()); err != nil {
		t.Fatal(err)
	}

	back := FromSchema(c.Schema())
	if back.ID != c.ID || back.TraceID != c.TraceID {
		t.Errorf("identity: got = %s/%s, wanted = %s/%s", back.ID, back.TraceID, c.ID, c.TraceID)
	}
	if got := back.Status(); got != StatusSuccess {
		t.Errorf("Status: got = %v, wanted = %v", got, StatusSuccess)
	}
	if got := back.Output(); got != "out" {
		t.Errorf("Output: got = %v, wanted = out", got)
	}
	if v, _ := back.Inputs.Get("a"); v != int64(1) {
		t.Errorf("Inputs[a]: got = %v, wanted = 1", v)
	}
	if err := back.Finish(nil, "", time.Now()); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("Finish on rebuilt call: got = %v, wanted = %v", err, ErrAlreadyFinished)
	}
}

type recordingSink struct {
	records []feedback.Record
}

func (r *recordingSink) CreateFeedback(_ context.Context, rec feedback.Record) error {
	r.records = append(r.records, rec)
	return nil
}

func TestFeedbackAdd(t *testing.T) {
	ctx := context.Background()
	c := New("p", "op", nil)

	if _, err := c.Feedback().Add(ctx, "wandb.note", "hi", ""); !errors.Is(err, ErrNoFeedbackSink) {
		t.Errorf("unbound Add: got = %v, wanted = %v", err, ErrNoFeedbackSink)
	}

	sink := &recordingSink{}
	c.BindFeedback(sink)

	if _, err := c.Feedback().Add(ctx, "not-a-type", 1, ""); !errors.Is(err, feedback.ErrInvalidType) {
		t.Errorf("malformed type: got = %v, wanted = %v", err, feedback.ErrInvalidType)
	}
	if _, err := c.Feedback().Add(ctx, "wandb.annotation.quality", 1, ""); !errors.Is(err, feedback.ErrInvalidAnnotationRef) {
		t.Errorf("missing ref: got = %v, wanted = %v", err, feedback.ErrInvalidAnnotationRef)
	}
	if len(sink.records) != 0 {
		t.Fatalf("records after rejected feedback: got = %d, wanted = 0", len(sink.records))
	}

	id, err := c.Feedback().Add(ctx, "wandb.annotation.quality", 5, "weave:///e/p/object/quality:v1")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("records: got = %d, wanted = 1", len(sink.records))
	}
	if rec := sink.records[0]; rec.ID != id || rec.CallID != c.ID || rec.Payload != 5 {
		t.Errorf("record: got = %+v", rec)
	}
}

func TestWalk(t *testing.T) {
	root := New("p", "root", nil)
	a := New("p", "a", root)
	b := New("p", "b", a)
	for _, c := range []*Call{b, a, root} {
		if err := c.Finish(nil, "", time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	a.AddChild(b)
	root.AddChild(a)

	var got []string
	root.Walk(func(c *Call, depth int) {
		got = append(got, c.OpName+":"+string(rune('0'+depth)))
	})
	want := []string{"root:0", "a:1", "b:2"}
	if len(got) != len(want) {
		t.Fatalf("Walk: got = %v, wanted = %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Walk[%d]: got = %v, wanted = %v", i, got[i], want[i])
		}
	}
}

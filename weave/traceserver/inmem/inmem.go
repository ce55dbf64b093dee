/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package inmem provides an in-memory trace server.
//
// It keeps calls in the order they were created and is intended for tests,
// local development and evaluation runs that do not need durable storage.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/feedback"
	"github.com/wandb/weave-sub009/weave/traceserver"
)

// Server implements traceserver.Interface in memory.
type Server struct {
	mu       sync.RWMutex
	order    []string
	calls    map[string]*call.Schema
	feedback map[string][]feedback.Record
	objects  map[string]traceserver.Object
}

var _ traceserver.Interface = (*Server)(nil)

// New returns an empty server.
func New() *Server {
	return &Server{
		calls:    map[string]*call.Schema{},
		feedback: map[string][]feedback.Record{},
		objects:  map[string]traceserver.Object{},
	}
}

// CreateCall implements traceserver.Interface.
func (s *Server) CreateCall(_ context.Context, req traceserver.StartReq) error {
	c := req.Call
	if c.ID == "" || c.TraceID == "" {
		return fmt.Errorf("id and trace_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.ID]; ok {
		return fmt.Errorf("%w: call %s already exists", traceserver.ErrConflict, c.ID)
	}
	s.calls[c.ID] = &c
	s.order = append(s.order, c.ID)
	return nil
}

// FinishCall implements traceserver.Interface.
func (s *Server) FinishCall(_ context.Context, req traceserver.EndReq) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[req.ID]
	if !ok {
		return fmt.Errorf("%w: call %s", traceserver.ErrNotFound, req.ID)
	}
	if c.EndedAt != nil {
		return fmt.Errorf("%w: call %s already finished", traceserver.ErrConflict, req.ID)
	}
	ended := req.EndedAt
	c.EndedAt = &ended
	c.Output = req.Output
	c.Exception = req.Exception
	c.Summary = call.Clone(req.Summary)
	return nil
}

// QueryCalls implements traceserver.Interface.
func (s *Server) QueryCalls(_ context.Context, filter traceserver.Filter) ([]call.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []call.Schema
	for _, id := range s.order {
		c := s.calls[id]
		if filter.Match(*c) {
			cp := *c
			cp.Summary = call.Clone(c.Summary)
			out = append(out, cp)
		}
	}
	return filter.Page(out), nil
}

// CreateFeedback implements feedback.Sink.
func (s *Server) CreateFeedback(_ context.Context, rec feedback.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[rec.CallID]; !ok {
		return fmt.Errorf("%w: call %s", traceserver.ErrNotFound, rec.CallID)
	}
	s.feedback[rec.CallID] = append(s.feedback[rec.CallID], rec)
	return nil
}

// QueryFeedback implements traceserver.Interface.
func (s *Server) QueryFeedback(_ context.Context, callID string) ([]feedback.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]feedback.Record(nil), s.feedback[callID]...), nil
}

// CreateObject implements traceserver.Interface. Objects are immutable, so
// creating the same digest twice is a no-op.
func (s *Server) CreateObject(_ context.Context, obj traceserver.Object) (string, error) {
	if obj.Name == "" || obj.Digest == "" {
		return "", fmt.Errorf("object name and digest are required")
	}
	ref := obj.Ref()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[ref]; !ok {
		s.objects[ref] = obj
	}
	return ref, nil
}

// ReadObject implements traceserver.Interface.
func (s *Server) ReadObject(_ context.Context, ref string) (traceserver.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[ref]
	if !ok {
		return traceserver.Object{}, fmt.Errorf("%w: object %s", traceserver.ErrNotFound, ref)
	}
	return obj, nil
}

// Len reports the number of stored calls.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

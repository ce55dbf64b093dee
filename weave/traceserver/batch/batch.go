/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package batch buffers call writes in front of another trace server.
//
// Starts and ends share one FIFO queue, so a parent's start always reaches
// the backend before the starts of its children. The queue is flushed when
// it reaches the batch size, on every interval tick, on Flush and on Close.
// Writes that still fail after retries are logged and dropped.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/feedback"
	"github.com/wandb/weave-sub009/weave/metrics"
	"github.com/wandb/weave-sub009/weave/retry"
	"github.com/wandb/weave-sub009/weave/traceserver"
)

// Options tunes batching.
type Options struct {
	// MaxBatchSize triggers a flush once this many writes are queued.
	MaxBatchSize int
	// FlushInterval is the longest a write waits in the queue.
	FlushInterval time.Duration
	// Retry controls retries of individual writes.
	Retry retry.Config
}

// DefaultOptions returns the batching defaults.
func DefaultOptions() Options {
	return Options{
		MaxBatchSize:  50,
		FlushInterval: 2 * time.Second,
		Retry:         retry.DefaultConfig(),
	}
}

type item struct {
	start *traceserver.StartReq
	end   *traceserver.EndReq
}

// Server implements traceserver.Interface on top of another server.
type Server struct {
	next traceserver.Interface
	opts Options

	mu     sync.Mutex
	queue  []item
	closed bool

	// sendMu serializes flushes so batches reach the backend in queue order.
	sendMu sync.Mutex

	kick   chan struct{}
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

var (
	_ traceserver.Interface = (*Server)(nil)
	_ traceserver.Flusher   = (*Server)(nil)
)

// New starts a batching server in front of next. Close must be called to
// stop the background flusher and drain the queue.
func New(ctx context.Context, next traceserver.Interface, opts Options) (*Server, error) {
	if opts.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive, got %d", opts.MaxBatchSize)
	}
	if opts.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %v", opts.FlushInterval)
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	s := &Server{
		next:   next,
		opts:   opts,
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop(context.WithoutCancel(ctx))
	return s, nil
}

func (s *Server) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.kick:
		case <-s.stopCh:
			return
		}
		if err := s.Flush(ctx); err != nil {
			clog.FromContext(ctx).With("error", err).Warn("Background flush dropped trace writes")
		}
	}
}

func (s *Server) enqueue(ctx context.Context, it item) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.sendAfterClose(ctx, it)
	}
	s.queue = append(s.queue, it)
	n := len(s.queue)
	s.mu.Unlock()

	metrics.BatchQueueDepth.Set(float64(n))
	if n >= s.opts.MaxBatchSize {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// sendAfterClose writes it behind any flush still in flight and anything
// left in the queue.
func (s *Server) sendAfterClose(ctx context.Context, it item) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	pending := append(s.queue, it)
	s.queue = nil
	s.mu.Unlock()
	return s.send(ctx, pending)
}

// CreateCall queues the start of a call.
func (s *Server) CreateCall(ctx context.Context, req traceserver.StartReq) error {
	return s.enqueue(ctx, item{start: &req})
}

// FinishCall queues the end of a call.
func (s *Server) FinishCall(ctx context.Context, req traceserver.EndReq) error {
	return s.enqueue(ctx, item{end: &req})
}

// Flush writes everything queued so far, in order.
func (s *Server) Flush(ctx context.Context) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	metrics.BatchQueueDepth.Set(0)

	if len(pending) == 0 {
		return nil
	}
	return s.send(ctx, pending)
}

func (s *Server) send(ctx context.Context, items []item) error {
	var errs []error
	for _, it := range items {
		op, write := s.write(it)
		if _, err := retry.Do(ctx, s.opts.Retry, op, isRetryable, func() (struct{}, error) {
			return struct{}{}, write(ctx)
		}); err != nil {
			metrics.TracingFailures.WithLabelValues(metrics.StageFlush).Inc()
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		metrics.BatchFlushes.WithLabelValues("error").Inc()
		return err
	}
	metrics.BatchFlushes.WithLabelValues("ok").Inc()
	return nil
}

func (s *Server) write(it item) (string, func(context.Context) error) {
	if it.start != nil {
		return "create_call " + it.start.Call.ID, func(ctx context.Context) error {
			return s.next.CreateCall(ctx, *it.start)
		}
	}
	return "finish_call " + it.end.ID, func(ctx context.Context) error {
		return s.next.FinishCall(ctx, *it.end)
	}
}

// Conflicts and missing calls will not resolve by retrying.
func isRetryable(err error) bool {
	if errors.Is(err, traceserver.ErrConflict) || errors.Is(err, traceserver.ErrNotFound) {
		return false
	}
	return retry.IsRetryable(err)
}

// QueryCalls flushes pending writes and then queries the backend.
func (s *Server) QueryCalls(ctx context.Context, filter traceserver.Filter) ([]call.Schema, error) {
	if err := s.Flush(ctx); err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Flush before query dropped trace writes")
	}
	return s.next.QueryCalls(ctx, filter)
}

// CreateFeedback flushes pending writes so the call exists, then writes through.
func (s *Server) CreateFeedback(ctx context.Context, rec feedback.Record) error {
	if err := s.Flush(ctx); err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Flush before feedback dropped trace writes")
	}
	return s.next.CreateFeedback(ctx, rec)
}

// QueryFeedback writes through.
func (s *Server) QueryFeedback(ctx context.Context, callID string) ([]feedback.Record, error) {
	return s.next.QueryFeedback(ctx, callID)
}

// CreateObject writes through.
func (s *Server) CreateObject(ctx context.Context, obj traceserver.Object) (string, error) {
	return s.next.CreateObject(ctx, obj)
}

// ReadObject writes through.
func (s *Server) ReadObject(ctx context.Context, ref string) (traceserver.Object, error) {
	return s.next.ReadObject(ctx, ref)
}

// Pending reports the number of queued writes.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the background flusher and drains the queue. Writes issued
// after Close go straight to the backend.
func (s *Server) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.stopCh)
	})
	<-s.done

	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// Anything queued between the drain and closing is flushed here.
	return errors.Join(err, s.Flush(ctx))
}

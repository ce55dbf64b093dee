/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chainguard-dev/clog"

	"github.com/wandb/weave-sub009/weave/blobstore"
	"github.com/wandb/weave-sub009/weave/blobstore/gcs"
	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/metrics"
	"github.com/wandb/weave-sub009/weave/serialize"
	"github.com/wandb/weave-sub009/weave/traceserver"
	"github.com/wandb/weave-sub009/weave/traceserver/batch"
	"github.com/wandb/weave-sub009/weave/traceserver/inmem"
)

// Listener observes every call once it has finished and been handed to the
// trace server.
type Listener func(ctx context.Context, c *call.Call)

// Client records calls for one project.
type Client struct {
	cfg        Config
	server     traceserver.Interface
	batcher    *batch.Server
	serializer *serialize.Serializer
	blobs      blobstore.Store
	genai      *metrics.GenAI

	lmu       sync.RWMutex
	listeners []*listener

	// objects remembers the refs already published by this client.
	objects sync.Map
	closed  atomic.Bool
}

type listener struct {
	fn Listener
}

type options struct {
	cfg        *Config
	server     traceserver.Interface
	serializer *serialize.Serializer
	blobs      blobstore.Store
	genai      *metrics.GenAI
	listeners  []Listener
}

// Option configures a Client.
type Option func(*options)

// WithConfig uses cfg instead of reading the environment.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithServer sends calls to server instead of an in-memory server. When
// batching is enabled the client still batches in front of it.
func WithServer(server traceserver.Interface) Option {
	return func(o *options) { o.server = server }
}

// WithSerializer replaces the serializer built from the configuration.
func WithSerializer(s *serialize.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithBlobStore replaces the blob store built from the configuration.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) { o.blobs = store }
}

// WithGenAIMetrics records token usage reported by finished calls.
func WithGenAIMetrics(m *metrics.GenAI) Option {
	return func(o *options) { o.genai = m }
}

// WithCallListener registers a listener for every finished call.
func WithCallListener(l Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// New builds a client without installing it process-wide. A non-empty
// project overrides the configured one.
func New(ctx context.Context, project string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cfg Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		var err error
		if cfg, err = LoadConfig(ctx); err != nil {
			return nil, err
		}
	}
	if project != "" {
		cfg.Project = project
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		server:     o.server,
		serializer: o.serializer,
		blobs:      o.blobs,
		genai:      o.genai,
	}
	for _, l := range o.listeners {
		c.AddListener(l)
	}

	if c.blobs == nil {
		store, err := blobStoreFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.blobs = store
	}
	if c.serializer == nil {
		sopts := []serialize.Option{serialize.WithBlobStore(c.blobs)}
		if len(cfg.RedactKeys) > 0 {
			sopts = append(sopts, serialize.WithRedactKeys(cfg.RedactKeys...))
		}
		c.serializer = serialize.New(sopts...)
	}
	if c.server == nil {
		c.server = inmem.New()
	}
	if cfg.BatchSize > 0 {
		b, err := batch.New(ctx, c.server, cfg.batchOptions())
		if err != nil {
			return nil, fmt.Errorf("starting batcher: %w", err)
		}
		c.batcher = b
		c.server = b
	}
	return c, nil
}

func blobStoreFor(ctx context.Context, cfg Config) (blobstore.Store, error) {
	switch {
	case cfg.BlobBucket != "":
		s, err := gcs.New(ctx, cfg.BlobBucket, cfg.Project)
		if err != nil {
			return nil, fmt.Errorf("opening blob bucket %s: %w", cfg.BlobBucket, err)
		}
		return s, nil
	case cfg.BlobDir != "":
		s, err := blobstore.NewDir(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("opening blob dir %s: %w", cfg.BlobDir, err)
		}
		return s, nil
	default:
		return blobstore.NewMemory(), nil
	}
}

// Project returns the project calls are recorded under.
func (c *Client) Project() string { return c.cfg.Project }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Server returns the trace server the client writes to.
func (c *Client) Server() traceserver.Interface { return c.server }

// Serializer returns the serializer used for inputs and outputs.
func (c *Client) Serializer() *serialize.Serializer { return c.serializer }

// BlobStore returns where binary payloads are written.
func (c *Client) BlobStore() blobstore.Store { return c.blobs }

// Enabled reports whether ops should trace through this client.
func (c *Client) Enabled() bool {
	return c != nil && !c.cfg.Disabled && !c.closed.Load()
}

// AddListener registers l for every call finished from now on and returns a
// function that unregisters it.
func (c *Client) AddListener(l Listener) (remove func()) {
	entry := &listener{fn: l}
	c.lmu.Lock()
	c.listeners = append(c.listeners, entry)
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, e := range c.listeners {
			if e == entry {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) notify(ctx context.Context, ch *call.Call) {
	c.lmu.RLock()
	ls := make([]*listener, len(c.listeners))
	copy(ls, c.listeners)
	c.lmu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.warn(ctx, metrics.StageListener, ch, fmt.Errorf("panic: %v", r), "Call listener panicked")
				}
			}()
			l.fn(ctx, ch)
		}()
	}
}

// GetCalls returns persisted calls matching filter in creation order. An
// empty filter project means this client's project.
func (c *Client) GetCalls(ctx context.Context, filter traceserver.Filter) ([]*call.Call, error) {
	if filter.Project == "" {
		filter.Project = c.cfg.Project
	}
	schemas, err := c.server.QueryCalls(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	out := make([]*call.Call, 0, len(schemas))
	for _, s := range schemas {
		ch := call.FromSchema(s)
		ch.BindFeedback(c.server)
		out = append(out, ch)
	}
	return out, nil
}

// PublishObject stores obj under this client's project once and returns its
// ref. Failures are logged and the ref is still returned, so the caller can
// reference the object even when the backend did not keep it.
func (c *Client) PublishObject(ctx context.Context, obj traceserver.Object) string {
	obj.Project = c.cfg.Project
	ref := obj.Ref()
	if _, loaded := c.objects.LoadOrStore(ref, struct{}{}); loaded {
		return ref
	}
	if _, err := c.server.CreateObject(ctx, obj); err != nil {
		c.objects.Delete(ref)
		metrics.TracingFailures.WithLabelValues(metrics.StageObject).Inc()
		clog.FromContext(ctx).With("ref", ref, "error", err).Warn("Failed to publish object")
	}
	return ref
}

// Flush pushes any buffered writes to the trace server.
func (c *Client) Flush(ctx context.Context) error {
	if f, ok := c.server.(traceserver.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Close flushes buffered writes and stops tracing through this client. Ops
// called afterwards run untraced unless another client is installed.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.batcher != nil {
		return c.batcher.Close(ctx)
	}
	return nil
}

var (
	currentMu sync.RWMutex
	current   *Client
)

// Init builds a client and installs it as the process-wide client, closing
// the one it replaces.
func Init(ctx context.Context, project string, opts ...Option) (*Client, error) {
	c, err := New(ctx, project, opts...)
	if err != nil {
		return nil, err
	}

	currentMu.Lock()
	prev := current
	current = c
	currentMu.Unlock()

	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			clog.FromContext(ctx).With("project", prev.Project(), "error", err).Warn("Failed to close replaced client")
		}
	}
	return c, nil
}

// Finish uninstalls the process-wide client and closes it. Traced ops run as
// plain functions afterwards.
func Finish(ctx context.Context) error {
	currentMu.Lock()
	prev := current
	current = nil
	currentMu.Unlock()

	if prev == nil {
		return nil
	}
	return prev.Close(ctx)
}

// Current returns the process-wide client, or nil.
func Current() *Client {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

type clientKey struct{}

// WithClient returns a context whose ops trace through c regardless of the
// process-wide client.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the client ops should trace through, or nil when
// tracing is off. A client attached with WithClient wins over the
// process-wide one.
func FromContext(ctx context.Context) *Client {
	c, ok := ctx.Value(clientKey{}).(*Client)
	if !ok {
		c = Current()
	}
	if !c.Enabled() {
		return nil
	}
	return c
}

/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gcs stores content-addressed blobs in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/chainguard-dev/clog"

	"github.com/wandb/weave-sub009/weave/blobstore"
)

// Store writes blobs below an optional prefix in a bucket.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

var _ blobstore.Store = (*Store)(nil)

// New opens a store on bucket using application default credentials.
func New(ctx context.Context, bucket, prefix string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return FromBucket(client.Bucket(bucket), prefix), nil
}

// FromBucket wraps an existing bucket handle.
func FromBucket(bucket *storage.BucketHandle, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

func (s *Store) object(digest string) *storage.ObjectHandle {
	return s.bucket.Object(path.Join(s.prefix, blobstore.ObjectPath(digest)))
}

func (s *Store) Put(ctx context.Context, data []byte) (blobstore.Ref, error) {
	digest := blobstore.Digest(data)
	ref := blobstore.Ref{Digest: digest, Path: blobstore.ObjectPath(digest), Size: len(data)}
	obj := s.object(digest)

	if _, err := obj.Attrs(ctx); err == nil {
		return ref, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return blobstore.Ref{}, fmt.Errorf("checking blob %s: %w", digest, err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return blobstore.Ref{}, fmt.Errorf("writing blob %s: %w", digest, err)
	}
	if err := w.Close(); err != nil {
		return blobstore.Ref{}, fmt.Errorf("closing blob %s: %w", digest, err)
	}
	clog.FromContext(ctx).With("digest", digest, "size", len(data)).Debug("Uploaded blob")
	return ref, nil
}

func (s *Store) Get(ctx context.Context, digest string) ([]byte, error) {
	r, err := s.object(digest).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, digest)
	} else if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", digest, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

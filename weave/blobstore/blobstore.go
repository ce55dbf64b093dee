/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package blobstore persists binary payloads out of band, addressed by the
// sha256 digest of their content.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when no blob exists for a digest.
var ErrNotFound = errors.New("blob not found")

// Ref points at a stored blob.
type Ref struct {
	Digest string `json:"digest"`
	Path   string `json:"path"`
	Size   int    `json:"size"`
}

// Store writes and reads content-addressed blobs. Put of content that is
// already stored returns the existing ref.
type Store interface {
	Put(ctx context.Context, data []byte) (Ref, error)
	Get(ctx context.Context, digest string) ([]byte, error)
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectPath is the storage path of a digest, fanned out on its first byte.
func ObjectPath(digest string) string {
	if len(digest) < 2 {
		return "blobs/" + digest
	}
	return fmt.Sprintf("blobs/%s/%s", digest[:2], digest)
}

func refFor(data []byte) Ref {
	d := Digest(data)
	return Ref{Digest: d, Path: ObjectPath(d), Size: len(data)}
}

// Memory keeps blobs in process memory.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, data []byte) (Ref, error) {
	ref := refFor(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref.Digest]; !ok {
		m.blobs[ref.Digest] = append([]byte(nil), data...)
	}
	return ref, nil
}

func (m *Memory) Get(_ context.Context, digest string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[digest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	return append([]byte(nil), data...), nil
}

// Len reports the number of distinct blobs stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Dir stores blobs as files below a root directory.
type Dir struct {
	root string
}

var _ Store = (*Dir)(nil)

// NewDir returns a store rooted at dir, creating it if needed.
func NewDir(dir string) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob dir %s: %w", dir, err)
	}
	return &Dir{root: dir}, nil
}

func (d *Dir) Put(_ context.Context, data []byte) (Ref, error) {
	ref := refFor(data)
	p := filepath.Join(d.root, filepath.FromSlash(ref.Path))
	if _, err := os.Stat(p); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Ref{}, fmt.Errorf("creating blob dir: %w", err)
	}
	// Write to a temp file and rename so readers never see partial content.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return Ref{}, fmt.Errorf("creating temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Ref{}, fmt.Errorf("writing blob %s: %w", ref.Digest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Ref{}, fmt.Errorf("closing blob %s: %w", ref.Digest, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return Ref{}, fmt.Errorf("publishing blob %s: %w", ref.Digest, err)
	}
	return ref, nil
}

func (d *Dir) Get(_ context.Context, digest string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(ObjectPath(digest))))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	return data, err
}

/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"path"
	"slices"
	"sync"
)

// Observer receives the verdicts of evaluation checks and scorers.
type Observer interface {
	// Fail marks the observed instance as failed.
	Fail(string)
	// Log records a message.
	Log(string)
	// Grade assigns a score in [0, 1] with its reasoning.
	Grade(score float64, reasoning string)
	// Increment is called once per observed instance.
	Increment()
	// Total returns the number of observed instances.
	Total() int64
}

// NamespacedObserver arranges observers in a tree addressed by slash
// separated paths, such as /{model}/{example}/{scorer}.
type NamespacedObserver[T Observer] struct {
	name     string
	inner    T
	factory  func(string) T
	children map[string]*NamespacedObserver[T]
	mu       sync.Mutex
}

// NewNamespacedObserver creates the root "/" of a tree whose nodes are
// built by factory from their full path.
func NewNamespacedObserver[T Observer](factory func(string) T) *NamespacedObserver[T] {
	return &NamespacedObserver[T]{
		name:     "/",
		inner:    factory("/"),
		factory:  factory,
		children: make(map[string]*NamespacedObserver[T]),
	}
}

// Name returns the full path of the node.
func (n *NamespacedObserver[T]) Name() string { return n.name }

// Inner returns the observer at this node.
func (n *NamespacedObserver[T]) Inner() T { return n.inner }

func (n *NamespacedObserver[T]) Fail(msg string) { n.inner.Fail(msg) }
func (n *NamespacedObserver[T]) Log(msg string) { n.inner.Log(msg) }
func (n *NamespacedObserver[T]) Grade(score float64, why string) { n.inner.Grade(score, why) }
func (n *NamespacedObserver[T]) Increment() { n.inner.Increment() }
func (n *NamespacedObserver[T]) Total() int64 { return n.inner.Total() }

// Child returns the named child, creating it on first use.
func (n *NamespacedObserver[T]) Child(name string) *NamespacedObserver[T] {
	n.mu.Lock()
	defer n.mu.Unlock()

	if child, ok := n.children[name]; ok {
		return child
	}
	full := path.Join(n.name, name)
	child := &NamespacedObserver[T]{
		name:     full,
		inner:    n.factory(full),
		factory:  n.factory,
		children: make(map[string]*NamespacedObserver[T]),
	}
	n.children[name] = child
	return child
}

// Path walks Child once per element.
func (n *NamespacedObserver[T]) Path(elems ...string) *NamespacedObserver[T] {
	node := n
	for _, e := range elems {
		node = node.Child(e)
	}
	return node
}

// Walk visits n and then its children depth-first, in name order.
func (n *NamespacedObserver[T]) Walk(visitor func(string, T)) {
	visitor(n.name, n.inner)

	n.mu.Lock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	n.mu.Unlock()
	slices.Sort(names)

	for _, name := range names {
		n.mu.Lock()
		child := n.children[name]
		n.mu.Unlock()
		child.Walk(visitor)
	}
}

// Namespaced routes every scorer outcome of an evaluation to the node
// /{model}/{example}/{scorer} under root.
func Namespaced[T Observer](root *NamespacedObserver[T]) ObserverFunc {
	return func(model, example, scorer string) Observer {
		return root.Path(model, example, scorer)
	}
}

// Multi reports to every observer in obs. Total is the first observer's.
func Multi(obs ...Observer) Observer {
	return multi(obs)
}

type multi []Observer

func (m multi) Fail(msg string) {
	for _, o := range m {
		o.Fail(msg)
	}
}

func (m multi) Log(msg string) {
	for _, o := range m {
		o.Log(msg)
	}
}

func (m multi) Grade(score float64, reasoning string) {
	for _, o := range m {
		o.Grade(score, reasoning)
	}
}

func (m multi) Increment() {
	for _, o := range m {
		o.Increment()
	}
}

func (m multi) Total() int64 {
	if len(m) == 0 {
		return 0
	}
	return m[0].Total()
}

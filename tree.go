// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/osc-toolkit/oscquery/osc"
)

// EventKind discriminates namespace change events.
type EventKind uint8

const (
	PathAdded EventKind = iota
	PathRemoved
)

func (k EventKind) String() string {
	if k == PathRemoved {
		return "PATH_REMOVED"
	}
	return "PATH_ADDED"
}

// Event is one namespace change: a node appeared or disappeared at Path.
type Event struct {
	Kind EventKind
	Path string
}

// eventBacklog bounds the namespace change channel. Producers never block:
// when the channel is full the event is dropped, which may leave a slow
// consumer temporarily out of sync but never corrupts the tree.
const eventBacklog = 1024

// NodeHandle is a stable opaque identifier for a node in a tree. It survives
// unrelated removals and becomes invalid once the node it names is removed.
// The zero value is invalid.
type NodeHandle struct {
	id uint64
}

const rootNodeID uint64 = 1

type treeNode struct {
	id       uint64
	parent   uint64
	children []uint64
	fullPath string
	node     *Node
}

// Root is the namespace tree shared by the OSC, WebSocket and HTTP services.
// All structural state lives behind a single reader/writer lock: lookups,
// OSC dispatch and JSON rendering take the read guard, structural mutation
// takes the write guard. Root is safe for concurrent use.
type Root struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nodes  map[uint64]*treeNode
	paths  map[string]uint64
	nextID uint64
	name   string

	events chan Event
}

// NewRoot returns an empty tree whose synthetic root container renders at
// path "/" with the description "root node".
func NewRoot(opts ...Option) *Root {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}
	r := &Root{
		logger: cfg.logger,
		nodes:  make(map[uint64]*treeNode),
		paths:  make(map[string]uint64),
		nextID: rootNodeID,
		name:   cfg.name,
		events: make(chan Event, eventBacklog),
	}
	root := &treeNode{
		id:       rootNodeID,
		fullPath: "/",
		node: &Node{
			kind:        kindContainer,
			description: "root node",
		},
	}
	r.nodes[rootNodeID] = root
	r.paths["/"] = rootNodeID
	r.nextID++
	return r
}

// Name returns the server name advertised in HOST_INFO, if any.
func (r *Root) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// SetName sets the server name advertised in HOST_INFO.
func (r *Root) SetName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

// Events returns the namespace change channel. There is a single consumer
// slot: the WebSocket service drains it to push PATH_ADDED / PATH_REMOVED
// to its sessions.
func (r *Root) Events() <-chan Event {
	return r.events
}

// Len returns the number of live nodes, excluding the synthetic root.
func (r *Root) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes) - 1
}

// AddNode attaches node under parent (the root container when parent is nil)
// and returns its stable handle. It's safe to add nodes while the services
// are running; the matching PATH_ADDED event is emitted before AddNode
// returns.
func (r *Root) AddNode(node *Node, parent *NodeHandle) (NodeHandle, error) {
	var h NodeHandle
	err := r.Updates(func(txn *Txn) error {
		var err error
		h, err = txn.Add(node, parent)
		return err
	})
	return h, err
}

// RemoveNode removes the subtree rooted at h and returns the removed nodes,
// leaves first. A second removal of the same handle fails with
// [ErrNodeRemoved].
func (r *Root) RemoveNode(h NodeHandle) ([]*Node, error) {
	var removed []*Node
	err := r.Updates(func(txn *Txn) error {
		var err error
		removed, err = txn.Remove(h)
		return err
	})
	return removed, err
}

// HandleToPath resolves a handle to the full path it was added under. It
// reports false once the node has been removed.
func (r *Root) HandleToPath(h NodeHandle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tn, ok := r.nodes[h.id]
	if !ok || h.id == rootNodeID {
		return "", false
	}
	return tn.fullPath, true
}

// WithNodeAtPath calls fn with the node at path while holding the tree's
// read guard. fn must not retain the node or mutate the tree.
func (r *Root) WithNodeAtPath(path string, fn func(n *Node)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.paths[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	fn(r.nodes[id].node)
	return nil
}

// WithNodeAtHandle calls fn with the node named by h while holding the
// tree's read guard. fn must not retain the node or mutate the tree.
func (r *Root) WithNodeAtHandle(h NodeHandle, fn func(n *Node)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tn, ok := r.nodes[h.id]
	if !ok {
		return ErrNodeRemoved
	}
	fn(tn.node)
	return nil
}

// Updates executes fn within a write transaction. Mutations performed
// through the [Txn] are applied atomically with respect to concurrent
// readers. Returns any error returned by fn; mutations already applied by
// fn are NOT rolled back.
func (r *Root) Updates(fn func(txn *Txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&Txn{r: r})
}

// Txn is a write-transaction view of the tree, handed to [Root.Updates]
// callbacks and to deferred [Mutator]s. A Txn is only valid for the duration
// of the callback that received it.
type Txn struct {
	r *Root
}

// Add attaches node under parent (the root container when parent is nil)
// and returns its stable handle.
func (t *Txn) Add(node *Node, parent *NodeHandle) (NodeHandle, error) {
	parentID := rootNodeID
	if parent != nil {
		parentID = parent.id
	}
	return t.r.addLocked(node, parentID)
}

// Remove removes the subtree rooted at h and returns the removed nodes,
// leaves first.
func (t *Txn) Remove(h NodeHandle) ([]*Node, error) {
	return t.r.removeLocked(h.id)
}

func joinPath(parentPath, address string) string {
	if parentPath == "/" {
		return "/" + address
	}
	return parentPath + "/" + address
}

func (r *Root) addLocked(node *Node, parentID uint64) (NodeHandle, error) {
	parent, ok := r.nodes[parentID]
	if !ok {
		return NodeHandle{}, ErrUnknownParent
	}
	if !parent.node.container() {
		return NodeHandle{}, fmt.Errorf("%w: %s", ErrParentNotContainer, parent.fullPath)
	}
	fullPath := joinPath(parent.fullPath, node.address)
	if _, exists := r.paths[fullPath]; exists {
		return NodeHandle{}, fmt.Errorf("%w: %s", ErrPathExists, fullPath)
	}
	id := r.nextID
	r.nextID++
	tn := &treeNode{
		id:       id,
		parent:   parentID,
		fullPath: fullPath,
		node:     node,
	}
	r.nodes[id] = tn
	r.paths[fullPath] = id
	parent.children = append(parent.children, id)
	r.emit(Event{Kind: PathAdded, Path: fullPath})
	return NodeHandle{id: id}, nil
}

func (r *Root) removeLocked(id uint64) ([]*Node, error) {
	tn, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeRemoved
	}
	if id == rootNodeID {
		return nil, fmt.Errorf("%w: cannot remove the root container", ErrNodeRemoved)
	}
	parent := r.nodes[tn.parent]
	for i, c := range parent.children {
		if c == id {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	var removed []*Node
	r.removeSubtree(tn, &removed)
	return removed, nil
}

// removeSubtree deletes tn and its descendants, leaves first, emitting one
// PATH_REMOVED per node in the same order.
func (r *Root) removeSubtree(tn *treeNode, removed *[]*Node) {
	for _, c := range tn.children {
		r.removeSubtree(r.nodes[c], removed)
	}
	delete(r.nodes, tn.id)
	delete(r.paths, tn.fullPath)
	*removed = append(*removed, tn.node)
	r.emit(Event{Kind: PathRemoved, Path: tn.fullPath})
}

func (r *Root) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("namespace event dropped, channel full", "kind", ev.Kind.String(), "path", ev.Path)
	}
}

// HandleOSCPacket routes an incoming packet into the tree. Messages are
// matched by exact address; bundles are walked recursively with their time
// tag propagated to contained messages. Dispatch happens in two phases:
// value writes run under the read guard, then any deferred mutators the
// handlers returned run under the write guard, in arrival order.
func (r *Root) HandleOSCPacket(p osc.Packet, src net.Addr, tt *osc.Timetag) {
	muts := func() []Mutator {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var muts []Mutator
		r.dispatch(p, src, tt, &muts)
		return muts
	}()
	if len(muts) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	txn := &Txn{r: r}
	for _, m := range muts {
		m(txn)
	}
}

func (r *Root) dispatch(p osc.Packet, src net.Addr, tt *osc.Timetag, muts *[]Mutator) {
	switch p := p.(type) {
	case *osc.Message:
		id, ok := r.paths[p.Address]
		if !ok {
			r.logger.Debug("osc message for unknown path", "path", p.Address)
			return
		}
		tn := r.nodes[id]
		if !tn.node.writable() {
			r.logger.Debug("osc message for non-writable node", "path", p.Address)
			return
		}
		if m := tn.node.oscUpdate(p.Args, src, tt, tn.fullPath, r.logger); m != nil {
			*muts = append(*muts, m)
		}
	case *osc.Bundle:
		btt := p.Timetag
		for _, sub := range p.Packets {
			r.dispatch(sub, src, &btt, muts)
		}
	}
}

// renderMessage snapshots the node at path into an OSC message, if the node
// is readable. Used by trigger.
func (r *Root) renderMessage(path string) *osc.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.paths[path]
	if !ok {
		return nil
	}
	tn := r.nodes[id]
	if !tn.node.readable() {
		return nil
	}
	args := make([]osc.Arg, 0, len(tn.node.params))
	tn.node.oscRender(&args)
	return &osc.Message{Address: tn.fullPath, Args: args}
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/osc-toolkit/oscquery/osc"
)

// Access describes the value capability of a node, derived from its kind.
type Access uint8

const (
	AccessNoValue   Access = 0
	AccessReadOnly  Access = 1
	AccessWriteOnly Access = 2
	AccessReadWrite Access = 3
)

// String returns a human readable form of the access flag.
func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "read-only"
	case AccessWriteOnly:
		return "write-only"
	case AccessReadWrite:
		return "read-write"
	default:
		return "no-value"
	}
}

type nodeKind uint8

const (
	kindContainer nodeKind = iota
	kindGet
	kindSet
	kindGetSet
)

// Mutator is a deferred tree mutation. A write handler may return one to
// request structural changes (adding or removing nodes) once the dispatch
// that invoked it has released its read guard. The mutator runs under the
// tree's write lock, in arrival order.
type Mutator func(txn *Txn)

// UpdateHandler is invoked when an OSC write reaches a Set or GetSet node,
// before the arguments are written through to the node's parameters. The
// source address is nil for WebSocket frames, and the time tag is non-nil
// only when the message arrived inside a bundle.
//
// The handler must not touch the tree directly: it runs under the tree's
// read guard. To mutate, return a [Mutator].
type UpdateHandler interface {
	OSCUpdate(args []osc.Arg, src net.Addr, tt *osc.Timetag) Mutator
}

// The UpdateFunc type is an adapter to allow the use of ordinary functions
// as [UpdateHandler] when no deferred mutation is needed.
type UpdateFunc func(args []osc.Arg, src net.Addr, tt *osc.Timetag)

// OSCUpdate calls f and returns no mutator.
func (f UpdateFunc) OSCUpdate(args []osc.Arg, src net.Addr, tt *osc.Timetag) Mutator {
	f(args, src, tt)
	return nil
}

// The UpdateFuncWithMutation type is an adapter for handlers that may
// request a deferred tree mutation.
type UpdateFuncWithMutation func(args []osc.Arg, src net.Addr, tt *osc.Timetag) Mutator

// OSCUpdate calls f.
func (f UpdateFuncWithMutation) OSCUpdate(args []osc.Arg, src net.Addr, tt *osc.Timetag) Mutator {
	return f(args, src, tt)
}

// Node is one vertex of the namespace: a container or a typed leaf. Nodes
// are created detached and attached to a tree with [Root.AddNode]; the tree
// owns them afterwards.
type Node struct {
	kind        nodeKind
	address     string
	description string
	params      []Param
	handler     UpdateHandler
}

func newNode(kind nodeKind, address, description string, handler UpdateHandler, params []Param) (*Node, error) {
	if !osc.ValidSegment(address) {
		return nil, fmt.Errorf("%w: address %q contains '/'", ErrInvalidAddress, address)
	}
	n := &Node{
		kind:        kind,
		address:     address,
		description: description,
		params:      params,
		handler:     handler,
	}
	for i, p := range params {
		if (kind == kindGet || kind == kindGetSet) && !p.readable() {
			return nil, fmt.Errorf("%w: parameter %d is not readable", ErrInvalidNode, i)
		}
		if (kind == kindSet || kind == kindGetSet) && !p.writable() {
			return nil, fmt.Errorf("%w: parameter %d is not writable", ErrInvalidNode, i)
		}
	}
	return n, nil
}

// NewContainer returns a container node. A container holds children and no
// value. The description may be empty.
func NewContainer(address, description string) (*Node, error) {
	return newNode(kindContainer, address, description, nil, nil)
}

// NewGet returns a read-only leaf over the given parameters.
func NewGet(address, description string, params ...Param) (*Node, error) {
	return newNode(kindGet, address, description, nil, params)
}

// NewSet returns a write-only leaf. The handler may be nil.
func NewSet(address, description string, handler UpdateHandler, params ...Param) (*Node, error) {
	return newNode(kindSet, address, description, handler, params)
}

// NewGetSet returns a read-write leaf. The handler may be nil.
func NewGetSet(address, description string, handler UpdateHandler, params ...Param) (*Node, error) {
	return newNode(kindGetSet, address, description, handler, params)
}

// MustContainer is a convenience wrapper for [NewContainer] that panics on error.
func MustContainer(address, description string) *Node {
	n, err := NewContainer(address, description)
	if err != nil {
		panic(err)
	}
	return n
}

// MustGet is a convenience wrapper for [NewGet] that panics on error.
func MustGet(address, description string, params ...Param) *Node {
	n, err := NewGet(address, description, params...)
	if err != nil {
		panic(err)
	}
	return n
}

// MustSet is a convenience wrapper for [NewSet] that panics on error.
func MustSet(address, description string, handler UpdateHandler, params ...Param) *Node {
	n, err := NewSet(address, description, handler, params...)
	if err != nil {
		panic(err)
	}
	return n
}

// MustGetSet is a convenience wrapper for [NewGetSet] that panics on error.
func MustGetSet(address, description string, handler UpdateHandler, params ...Param) *Node {
	n, err := NewGetSet(address, description, handler, params...)
	if err != nil {
		panic(err)
	}
	return n
}

// Address returns the node's single path segment.
func (n *Node) Address() string { return n.address }

// Description returns the node's description; empty means none.
func (n *Node) Description() string { return n.description }

// Access returns the access flag derived from the node kind.
func (n *Node) Access() Access {
	switch n.kind {
	case kindGet:
		return AccessReadOnly
	case kindSet:
		return AccessWriteOnly
	case kindGetSet:
		return AccessReadWrite
	default:
		return AccessNoValue
	}
}

// TypeString returns the concatenated type tags of the node's parameters,
// or the empty string for a container.
func (n *Node) TypeString() string {
	if n.kind == kindContainer {
		return ""
	}
	tags := make([]byte, 0, len(n.params))
	for _, p := range n.params {
		tags = p.appendTypeTag(tags)
	}
	return string(tags)
}

func (n *Node) container() bool { return n.kind == kindContainer }
func (n *Node) readable() bool  { return n.kind == kindGet || n.kind == kindGetSet }
func (n *Node) writable() bool  { return n.kind == kindSet || n.kind == kindGetSet }

// oscRender appends the current value of each parameter to out, in order.
// Only meaningful for readable nodes.
func (n *Node) oscRender(out *[]osc.Arg) {
	for _, p := range n.params {
		*out = append(*out, p.renderOSC())
	}
}

// oscUpdate dispatches an incoming write: the user handler first, then each
// argument paired positionally with the parameter of matching kind.
// Mismatched arguments are skipped. Returns the handler's deferred mutator,
// if any.
func (n *Node) oscUpdate(args []osc.Arg, src net.Addr, tt *osc.Timetag, path string, logger *slog.Logger) Mutator {
	var mut Mutator
	if n.handler != nil {
		mut = n.handler.OSCUpdate(args, src, tt)
	}
	for i, arg := range args {
		if i >= len(n.params) {
			break
		}
		switch arg.(type) {
		case osc.Blob, osc.Color, osc.Nil, osc.Inf:
			// recognized on decode but not storable
			logger.Debug("dropping unsupported osc argument", "path", path, "index", i)
			continue
		}
		if !n.params[i].applyOSC(arg) {
			logger.Debug("skipping mismatched osc argument", "path", path, "index", i)
		}
	}
	return mut
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import "errors"

var (
	// ErrInvalidAddress is returned when a node address contains a path separator.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidNode is returned when a node's parameters do not match its access kind.
	ErrInvalidNode = errors.New("invalid node")
	// ErrUnknownParent is returned by add operations when the parent handle does not
	// refer to a live node.
	ErrUnknownParent = errors.New("unknown parent")
	// ErrParentNotContainer is returned when attempting to add a child under a
	// leaf node.
	ErrParentNotContainer = errors.New("parent is not a container")
	// ErrNodeRemoved is returned by operations taking a handle whose node has
	// already been removed.
	ErrNodeRemoved = errors.New("node removed")
	// ErrPathExists is returned when adding a node whose full path is already
	// taken by a live node.
	ErrPathExists = errors.New("path already exists")
	// ErrUnknownPath is returned when a path does not resolve to a live node.
	ErrUnknownPath = errors.New("unknown path")
	// ErrUnknownAttr is returned when an HTTP query string is not a recognized
	// OSCQuery attribute.
	ErrUnknownAttr = errors.New("unknown attribute")
)

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"encoding/json"
	"fmt"
)

// Attr names one OSCQuery node attribute, used by the HTTP layer to serve
// attribute-filtered queries.
type Attr uint8

const (
	AttrValue Attr = iota
	AttrType
	AttrRange
	AttrClipMode
	AttrAccess
	AttrDescription
	AttrUnit
)

func (a Attr) String() string {
	switch a {
	case AttrValue:
		return "VALUE"
	case AttrType:
		return "TYPE"
	case AttrRange:
		return "RANGE"
	case AttrClipMode:
		return "CLIPMODE"
	case AttrAccess:
		return "ACCESS"
	case AttrDescription:
		return "DESCRIPTION"
	default:
		return "UNIT"
	}
}

// ParseAttr parses an HTTP query string into an [Attr]. Unrecognized input
// returns [ErrUnknownAttr].
func ParseAttr(s string) (Attr, error) {
	switch s {
	case "VALUE":
		return AttrValue, nil
	case "TYPE":
		return AttrType, nil
	case "RANGE":
		return AttrRange, nil
	case "CLIPMODE":
		return AttrClipMode, nil
	case "ACCESS":
		return AttrAccess, nil
	case "DESCRIPTION":
		return AttrDescription, nil
	case "UNIT":
		return AttrUnit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAttr, s)
	}
}

// nodeJSON is the full rendering of one node. Field order follows the
// OSCQuery convention; pointer fields distinguish "absent" from "empty" so
// containers always render CONTENTS and leaves always render their typed
// attributes.
type nodeJSON struct {
	Access      int                   `json:"ACCESS"`
	Description string                `json:"DESCRIPTION,omitempty"`
	FullPath    string                `json:"FULL_PATH"`
	Contents    *map[string]*nodeJSON `json:"CONTENTS,omitempty"`
	Value       *[]any                `json:"VALUE,omitempty"`
	Unit        *[]any                `json:"UNIT,omitempty"`
	Type        *string               `json:"TYPE,omitempty"`
	Range       *[]any                `json:"RANGE,omitempty"`
	ClipMode    *[]any                `json:"CLIPMODE,omitempty"`
}

// renderTreeNode renders tn and, for containers, its subtree. Caller holds
// the read guard.
func (r *Root) renderTreeNode(tn *treeNode) *nodeJSON {
	n := tn.node
	out := &nodeJSON{
		Access:      int(n.Access()),
		Description: n.description,
		FullPath:    tn.fullPath,
	}
	if n.container() {
		contents := make(map[string]*nodeJSON, len(tn.children))
		for _, c := range tn.children {
			child := r.nodes[c]
			contents[child.node.address] = r.renderTreeNode(child)
		}
		out.Contents = &contents
		return out
	}
	if n.readable() {
		vals := make([]any, 0, len(n.params))
		for _, p := range n.params {
			vals = append(vals, p.valueJSON())
		}
		out.Value = &vals
	}
	units := make([]any, 0, len(n.params))
	ranges := make([]any, 0, len(n.params))
	clips := make([]any, 0, len(n.params))
	for _, p := range n.params {
		units = append(units, p.unitJSON())
		ranges = append(ranges, p.rangeJSON())
		clips = append(clips, p.clipModeJSON())
	}
	ts := n.TypeString()
	out.Unit = &units
	out.Type = &ts
	out.Range = &ranges
	out.ClipMode = &clips
	return out
}

// renderAttr renders the single-attribute view, or nil when the attribute
// does not apply to the node. Caller holds the read guard.
func (r *Root) renderAttr(tn *treeNode, attr Attr) any {
	n := tn.node
	switch attr {
	case AttrAccess:
		return int(n.Access())
	case AttrDescription:
		if n.description == "" {
			return nil
		}
		return n.description
	case AttrValue:
		if !n.readable() {
			return nil
		}
		vals := make([]any, 0, len(n.params))
		for _, p := range n.params {
			vals = append(vals, p.valueJSON())
		}
		return vals
	case AttrType:
		if n.container() {
			return nil
		}
		return n.TypeString()
	case AttrRange:
		if n.container() {
			return nil
		}
		vals := make([]any, 0, len(n.params))
		for _, p := range n.params {
			vals = append(vals, p.rangeJSON())
		}
		return vals
	case AttrClipMode:
		if n.container() {
			return nil
		}
		vals := make([]any, 0, len(n.params))
		for _, p := range n.params {
			vals = append(vals, p.clipModeJSON())
		}
		return vals
	default: // AttrUnit
		if n.container() {
			return nil
		}
		vals := make([]any, 0, len(n.params))
		for _, p := range n.params {
			vals = append(vals, p.unitJSON())
		}
		return vals
	}
}

// RenderPath serializes the node at path as OSCQuery JSON under the tree's
// read guard. With a nil attr the full (recursive) object is produced; with
// an attr a single-entry object is produced, or the literal JSON null when
// the attribute does not apply to that node. Unknown paths return
// [ErrUnknownPath].
func (r *Root) RenderPath(path string, attr *Attr) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.paths[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	tn := r.nodes[id]
	if attr == nil {
		return json.Marshal(r.renderTreeNode(tn))
	}
	v := r.renderAttr(tn, *attr)
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]any{attr.String(): v})
}

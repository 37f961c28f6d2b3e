// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import "sync/atomic"

// Getter reads the current value of a parameter's storage handle.
// Implementations must be safe for concurrent use.
type Getter[T any] interface {
	Get() T
}

// Setter stores a new value into a parameter's storage handle.
// Implementations must be safe for concurrent use. Set never fails and never
// enforces range or clip mode: those are declarative metadata surfaced to
// clients. An implementation that wants clipping must do it itself.
type Setter[T any] interface {
	Set(v T)
}

// The GetterFunc type is an adapter to allow the use of ordinary functions as
// [Getter]. If f is a function with the appropriate signature, GetterFunc(f)
// is a Getter that calls f.
type GetterFunc[T any] func() T

// Get calls f().
func (f GetterFunc[T]) Get() T { return f() }

// The SetterFunc type is an adapter to allow the use of ordinary functions as
// [Setter].
type SetterFunc[T any] func(v T)

// Set calls f(v).
func (f SetterFunc[T]) Set(v T) { f(v) }

// Cell is a lock-free storage cell satisfying both [Getter] and [Setter].
type Cell[T any] struct {
	p atomic.Pointer[T]
}

// NewCell returns a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	c := new(Cell[T])
	c.p.Store(&v)
	return c
}

// Get returns the current value.
func (c *Cell[T]) Get() T { return *c.p.Load() }

// Set stores v.
func (c *Cell[T]) Set(v T) { c.p.Store(&v) }

// Discard is a [Setter] that drops every write.
type Discard[T any] struct{}

// Set does nothing.
func (Discard[T]) Set(T) {}

// ClipMode declares how clients should clip a value against its range. It is
// purely declarative: the server never clips on set.
type ClipMode uint8

const (
	ClipNone ClipMode = iota
	ClipLow
	ClipHigh
	ClipBoth
)

// String returns the lowercase form used in the OSCQuery JSON rendering.
func (c ClipMode) String() string {
	switch c {
	case ClipLow:
		return "low"
	case ClipHigh:
		return "high"
	case ClipBoth:
		return "both"
	default:
		return "none"
	}
}

type rangeKind uint8

const (
	rangeNone rangeKind = iota
	rangeMin
	rangeMax
	rangeMinMax
	rangeVals
)

// Range declares the admissible values of a parameter.
type Range[T any] struct {
	kind     rangeKind
	min, max T
	vals     []T
}

// RangeMin declares a lower bound.
func RangeMin[T any](min T) Range[T] { return Range[T]{kind: rangeMin, min: min} }

// RangeMax declares an upper bound.
func RangeMax[T any](max T) Range[T] { return Range[T]{kind: rangeMax, max: max} }

// RangeMinMax declares both bounds.
func RangeMinMax[T any](min, max T) Range[T] {
	return Range[T]{kind: rangeMinMax, min: min, max: max}
}

// RangeVals declares an explicit set of admissible values.
func RangeVals[T any](vals ...T) Range[T] { return Range[T]{kind: rangeVals, vals: vals} }

// render produces the JSON fragment for the range; conv maps the typed bound
// to its JSON scalar form.
func (r Range[T]) render(conv func(T) any) map[string]any {
	switch r.kind {
	case rangeMin:
		return map[string]any{"MIN": conv(r.min)}
	case rangeMax:
		return map[string]any{"MAX": conv(r.max)}
	case rangeMinMax:
		return map[string]any{"MIN": conv(r.min), "MAX": conv(r.max)}
	case rangeVals:
		vals := make([]any, 0, len(r.vals))
		for _, v := range r.vals {
			vals = append(vals, conv(v))
		}
		return map[string]any{"VALS": vals}
	default:
		return map[string]any{}
	}
}

// Value binds a storage handle to its declarative metadata: clip mode, range
// and unit. A nil getter makes the value write-only, a nil setter read-only.
type Value[T any] struct {
	get      Getter[T]
	set      Setter[T]
	clipMode ClipMode
	rng      Range[T]
	unit     string
	hasUnit  bool
}

// ValueBuilder assembles a [Value] from a storage handle and optional
// metadata.
type ValueBuilder[T any] struct {
	v Value[T]
}

// NewValue starts a builder from the given capabilities. Either may be nil;
// providing both yields a read-write value.
func NewValue[T any](get Getter[T], set Setter[T]) *ValueBuilder[T] {
	return &ValueBuilder[T]{v: Value[T]{get: get, set: set}}
}

// NewCellValue starts a builder over a fresh read-write [Cell] initialized
// to v.
func NewCellValue[T any](v T) *ValueBuilder[T] {
	c := NewCell(v)
	return NewValue[T](c, c)
}

// WithClipMode declares the clip mode.
func (b *ValueBuilder[T]) WithClipMode(m ClipMode) *ValueBuilder[T] {
	b.v.clipMode = m
	return b
}

// WithRange declares the range.
func (b *ValueBuilder[T]) WithRange(r Range[T]) *ValueBuilder[T] {
	b.v.rng = r
	return b
}

// WithUnit declares the unit string.
func (b *ValueBuilder[T]) WithUnit(unit string) *ValueBuilder[T] {
	b.v.unit = unit
	b.v.hasUnit = true
	return b
}

// Build returns the assembled value.
func (b *ValueBuilder[T]) Build() Value[T] {
	return b.v
}

func (v *Value[T]) readable() bool { return v.get != nil }
func (v *Value[T]) writable() bool { return v.set != nil }

func (v *Value[T]) unitJSON() any {
	if v.hasUnit {
		return v.unit
	}
	return nil
}

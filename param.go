// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"github.com/osc-toolkit/oscquery/osc"
)

// Param is one typed slot inside a leaf node. Concrete parameters are built
// with [IntParam], [FloatParam], [StringParam], [TimeParam], [LongParam],
// [DoubleParam], [CharParam], [MidiParam], [BoolParam] and [ArrayParam].
//
// Blob, color, nil and infinitum are recognized on the wire but are not
// storable parameters: incoming arguments of those kinds are rejected.
type Param interface {
	// appendTypeTag appends the OSC type tag character(s): bool reports T or F
	// depending on its current value, arrays nest their element tags in brackets.
	appendTypeTag(tags []byte) []byte

	readable() bool
	writable() bool

	// valueJSON returns the current value as a JSON-marshalable scalar.
	// MIDI parameters yield nil, time parameters the packed (sec<<32)|frac form.
	valueJSON() any
	rangeJSON() any
	clipModeJSON() any
	unitJSON() any

	// renderOSC snapshots the current value as a wire argument.
	renderOSC() osc.Arg
	// applyOSC writes an incoming argument through the set capability. It
	// reports false when the argument kind does not match the parameter.
	applyOSC(arg osc.Arg) bool
}

type paramInt struct{ v Value[int32] }

// IntParam returns an 'i' parameter over v.
func IntParam(v Value[int32]) Param { return &paramInt{v} }

func (p *paramInt) appendTypeTag(tags []byte) []byte { return append(tags, 'i') }
func (p *paramInt) readable() bool                   { return p.v.readable() }
func (p *paramInt) writable() bool                   { return p.v.writable() }
func (p *paramInt) valueJSON() any                   { return p.v.get.Get() }
func (p *paramInt) rangeJSON() any                   { return p.v.rng.render(func(v int32) any { return v }) }
func (p *paramInt) clipModeJSON() any                { return p.v.clipMode.String() }
func (p *paramInt) unitJSON() any                    { return p.v.unitJSON() }
func (p *paramInt) renderOSC() osc.Arg               { return osc.Int(p.v.get.Get()) }

func (p *paramInt) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Int)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(int32(v))
	return true
}

type paramFloat struct{ v Value[float32] }

// FloatParam returns an 'f' parameter over v.
func FloatParam(v Value[float32]) Param { return &paramFloat{v} }

func (p *paramFloat) appendTypeTag(tags []byte) []byte { return append(tags, 'f') }
func (p *paramFloat) readable() bool                   { return p.v.readable() }
func (p *paramFloat) writable() bool                   { return p.v.writable() }
func (p *paramFloat) valueJSON() any                   { return p.v.get.Get() }
func (p *paramFloat) rangeJSON() any                   { return p.v.rng.render(func(v float32) any { return v }) }
func (p *paramFloat) clipModeJSON() any                { return p.v.clipMode.String() }
func (p *paramFloat) unitJSON() any                    { return p.v.unitJSON() }
func (p *paramFloat) renderOSC() osc.Arg               { return osc.Float(p.v.get.Get()) }

func (p *paramFloat) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Float)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(float32(v))
	return true
}

type paramString struct{ v Value[string] }

// StringParam returns an 's' parameter over v.
func StringParam(v Value[string]) Param { return &paramString{v} }

func (p *paramString) appendTypeTag(tags []byte) []byte { return append(tags, 's') }
func (p *paramString) readable() bool                   { return p.v.readable() }
func (p *paramString) writable() bool                   { return p.v.writable() }
func (p *paramString) valueJSON() any                   { return p.v.get.Get() }
func (p *paramString) rangeJSON() any                   { return p.v.rng.render(func(v string) any { return v }) }
func (p *paramString) clipModeJSON() any                { return p.v.clipMode.String() }
func (p *paramString) unitJSON() any                    { return p.v.unitJSON() }
func (p *paramString) renderOSC() osc.Arg               { return osc.String(p.v.get.Get()) }

func (p *paramString) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.String)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(string(v))
	return true
}

type paramTime struct{ v Value[osc.Timetag] }

// TimeParam returns a 't' parameter over v.
func TimeParam(v Value[osc.Timetag]) Param { return &paramTime{v} }

func (p *paramTime) appendTypeTag(tags []byte) []byte { return append(tags, 't') }
func (p *paramTime) readable() bool                   { return p.v.readable() }
func (p *paramTime) writable() bool                   { return p.v.writable() }
func (p *paramTime) valueJSON() any                   { return p.v.get.Get().Uint64() }
func (p *paramTime) rangeJSON() any {
	return p.v.rng.render(func(v osc.Timetag) any { return v.Uint64() })
}
func (p *paramTime) clipModeJSON() any { return p.v.clipMode.String() }
func (p *paramTime) unitJSON() any     { return p.v.unitJSON() }
func (p *paramTime) renderOSC() osc.Arg {
	return osc.Time(p.v.get.Get())
}

func (p *paramTime) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Time)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(osc.Timetag(v))
	return true
}

type paramLong struct{ v Value[int64] }

// LongParam returns an 'h' parameter over v.
func LongParam(v Value[int64]) Param { return &paramLong{v} }

func (p *paramLong) appendTypeTag(tags []byte) []byte { return append(tags, 'h') }
func (p *paramLong) readable() bool                   { return p.v.readable() }
func (p *paramLong) writable() bool                   { return p.v.writable() }
func (p *paramLong) valueJSON() any                   { return p.v.get.Get() }
func (p *paramLong) rangeJSON() any                   { return p.v.rng.render(func(v int64) any { return v }) }
func (p *paramLong) clipModeJSON() any                { return p.v.clipMode.String() }
func (p *paramLong) unitJSON() any                    { return p.v.unitJSON() }
func (p *paramLong) renderOSC() osc.Arg               { return osc.Long(p.v.get.Get()) }

func (p *paramLong) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Long)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(int64(v))
	return true
}

type paramDouble struct{ v Value[float64] }

// DoubleParam returns a 'd' parameter over v.
func DoubleParam(v Value[float64]) Param { return &paramDouble{v} }

func (p *paramDouble) appendTypeTag(tags []byte) []byte { return append(tags, 'd') }
func (p *paramDouble) readable() bool                   { return p.v.readable() }
func (p *paramDouble) writable() bool                   { return p.v.writable() }
func (p *paramDouble) valueJSON() any                   { return p.v.get.Get() }
func (p *paramDouble) rangeJSON() any                   { return p.v.rng.render(func(v float64) any { return v }) }
func (p *paramDouble) clipModeJSON() any                { return p.v.clipMode.String() }
func (p *paramDouble) unitJSON() any                    { return p.v.unitJSON() }
func (p *paramDouble) renderOSC() osc.Arg               { return osc.Double(p.v.get.Get()) }

func (p *paramDouble) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Double)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(float64(v))
	return true
}

type paramChar struct{ v Value[rune] }

// CharParam returns a 'c' parameter over v.
func CharParam(v Value[rune]) Param { return &paramChar{v} }

func (p *paramChar) appendTypeTag(tags []byte) []byte { return append(tags, 'c') }
func (p *paramChar) readable() bool                   { return p.v.readable() }
func (p *paramChar) writable() bool                   { return p.v.writable() }
func (p *paramChar) valueJSON() any                   { return string(p.v.get.Get()) }
func (p *paramChar) rangeJSON() any                   { return p.v.rng.render(func(v rune) any { return string(v) }) }
func (p *paramChar) clipModeJSON() any                { return p.v.clipMode.String() }
func (p *paramChar) unitJSON() any                    { return p.v.unitJSON() }
func (p *paramChar) renderOSC() osc.Arg               { return osc.Char(p.v.get.Get()) }

func (p *paramChar) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Char)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(rune(v))
	return true
}

type paramMidi struct{ v Value[[4]byte] }

// MidiParam returns an 'm' parameter over v. MIDI values render as JSON null.
func MidiParam(v Value[[4]byte]) Param { return &paramMidi{v} }

func (p *paramMidi) appendTypeTag(tags []byte) []byte { return append(tags, 'm') }
func (p *paramMidi) readable() bool                   { return p.v.readable() }
func (p *paramMidi) writable() bool                   { return p.v.writable() }
func (p *paramMidi) valueJSON() any                   { return nil }
func (p *paramMidi) rangeJSON() any                   { return nil }
func (p *paramMidi) clipModeJSON() any                { return nil }
func (p *paramMidi) unitJSON() any                    { return nil }
func (p *paramMidi) renderOSC() osc.Arg               { return osc.Midi(p.v.get.Get()) }

func (p *paramMidi) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Midi)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set([4]byte(v))
	return true
}

type paramBool struct{ v Value[bool] }

// BoolParam returns a boolean parameter over v. Its type tag is T or F
// depending on the current value, so the rendered type string of a readable
// bool is observable state.
func BoolParam(v Value[bool]) Param { return &paramBool{v} }

func (p *paramBool) appendTypeTag(tags []byte) []byte {
	if p.v.readable() && p.v.get.Get() {
		return append(tags, 'T')
	}
	if !p.v.readable() {
		// write-only bools have no current value to report
		return append(tags, 'T')
	}
	return append(tags, 'F')
}
func (p *paramBool) readable() bool    { return p.v.readable() }
func (p *paramBool) writable() bool    { return p.v.writable() }
func (p *paramBool) valueJSON() any    { return p.v.get.Get() }
func (p *paramBool) rangeJSON() any    { return p.v.rng.render(func(v bool) any { return v }) }
func (p *paramBool) clipModeJSON() any { return p.v.clipMode.String() }
func (p *paramBool) unitJSON() any     { return p.v.unitJSON() }
func (p *paramBool) renderOSC() osc.Arg {
	return osc.Bool(p.v.get.Get())
}

func (p *paramBool) applyOSC(arg osc.Arg) bool {
	v, ok := arg.(osc.Bool)
	if !ok || !p.v.writable() {
		return false
	}
	p.v.set.Set(bool(v))
	return true
}

type paramArray struct {
	elems []Param
}

// ArrayParam returns a bracketed array parameter over the given element
// parameters. The array's own range, clip mode and unit are rendered as a
// single unconstrained entry; element metadata is not surfaced.
func ArrayParam(elems ...Param) Param { return &paramArray{elems: elems} }

func (p *paramArray) appendTypeTag(tags []byte) []byte {
	tags = append(tags, '[')
	for _, e := range p.elems {
		tags = e.appendTypeTag(tags)
	}
	return append(tags, ']')
}

func (p *paramArray) readable() bool {
	for _, e := range p.elems {
		if !e.readable() {
			return false
		}
	}
	return true
}

func (p *paramArray) writable() bool {
	for _, e := range p.elems {
		if !e.writable() {
			return false
		}
	}
	return true
}

func (p *paramArray) valueJSON() any {
	vals := make([]any, 0, len(p.elems))
	for _, e := range p.elems {
		vals = append(vals, e.valueJSON())
	}
	return vals
}

func (p *paramArray) rangeJSON() any    { return []any{map[string]any{}} }
func (p *paramArray) clipModeJSON() any { return []any{ClipNone.String()} }
func (p *paramArray) unitJSON() any     { return []any{nil} }

func (p *paramArray) renderOSC() osc.Arg {
	args := make(osc.Array, 0, len(p.elems))
	for _, e := range p.elems {
		args = append(args, e.renderOSC())
	}
	return args
}

func (p *paramArray) applyOSC(arg osc.Arg) bool {
	vals, ok := arg.(osc.Array)
	if !ok {
		return false
	}
	applied := false
	for i, e := range p.elems {
		if i >= len(vals) {
			break
		}
		if e.applyOSC(vals[i]) {
			applied = true
		}
	}
	return applied
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package osc

import (
	"encoding/binary"
	"math"
)

const bundleTag = "#bundle"

// appendPaddedString appends s, a null terminator and zero padding up to the
// next 4-byte boundary.
func appendPaddedString(b []byte, s string) []byte {
	b = append(b, s...)
	b = append(b, 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func appendUint64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func (a Int) appendTag(tags []byte) []byte { return append(tags, 'i') }
func (a Int) appendData(b []byte) []byte   { return appendUint32(b, uint32(a)) }

func (a Float) appendTag(tags []byte) []byte { return append(tags, 'f') }
func (a Float) appendData(b []byte) []byte   { return appendUint32(b, math.Float32bits(float32(a))) }

func (a String) appendTag(tags []byte) []byte { return append(tags, 's') }
func (a String) appendData(b []byte) []byte   { return appendPaddedString(b, string(a)) }

func (a Blob) appendTag(tags []byte) []byte { return append(tags, 'b') }
func (a Blob) appendData(b []byte) []byte {
	b = appendUint32(b, uint32(len(a)))
	b = append(b, a...)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func (a Time) appendTag(tags []byte) []byte { return append(tags, 't') }
func (a Time) appendData(b []byte) []byte   { return appendUint64(b, Timetag(a).Uint64()) }

func (a Long) appendTag(tags []byte) []byte { return append(tags, 'h') }
func (a Long) appendData(b []byte) []byte   { return appendUint64(b, uint64(a)) }

func (a Double) appendTag(tags []byte) []byte { return append(tags, 'd') }
func (a Double) appendData(b []byte) []byte   { return appendUint64(b, math.Float64bits(float64(a))) }

func (a Char) appendTag(tags []byte) []byte { return append(tags, 'c') }
func (a Char) appendData(b []byte) []byte   { return appendUint32(b, uint32(a)) }

func (a Midi) appendTag(tags []byte) []byte { return append(tags, 'm') }
func (a Midi) appendData(b []byte) []byte   { return append(b, a[0], a[1], a[2], a[3]) }

func (a Color) appendTag(tags []byte) []byte { return append(tags, 'r') }
func (a Color) appendData(b []byte) []byte   { return append(b, a[0], a[1], a[2], a[3]) }

func (a Bool) appendTag(tags []byte) []byte {
	if a {
		return append(tags, 'T')
	}
	return append(tags, 'F')
}
func (a Bool) appendData(b []byte) []byte { return b }

func (a Array) appendTag(tags []byte) []byte {
	tags = append(tags, '[')
	for _, e := range a {
		tags = e.appendTag(tags)
	}
	return append(tags, ']')
}
func (a Array) appendData(b []byte) []byte {
	for _, e := range a {
		b = e.appendData(b)
	}
	return b
}

func (Nil) appendTag(tags []byte) []byte { return append(tags, 'N') }
func (Nil) appendData(b []byte) []byte   { return b }

func (Inf) appendTag(tags []byte) []byte { return append(tags, 'I') }
func (Inf) appendData(b []byte) []byte   { return b }

// MarshalBinary renders the message in OSC 1.0 wire format.
func (m *Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 64)
	b = appendPaddedString(b, m.Address)
	b = appendPaddedString(b, m.TypeTags())
	for _, a := range m.Args {
		b = a.appendData(b)
	}
	return b, nil
}

// MarshalBinary renders the bundle, and recursively its contained packets,
// in OSC 1.0 wire format.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 128)
	out = appendPaddedString(out, bundleTag)
	out = appendUint64(out, b.Timetag.Uint64())
	for _, p := range b.Packets {
		sub, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = appendUint32(out, uint32(len(sub)))
		out = append(out, sub...)
	}
	return out, nil
}

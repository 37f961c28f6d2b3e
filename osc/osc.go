// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

// Package osc implements the Open Sound Control 1.0 wire format: typed
// arguments, messages and time-tagged bundles, with binary encoding and
// decoding. It is transport agnostic; callers hand it raw datagrams or
// WebSocket frames and get packets back.
package osc

import (
	"fmt"
	"strings"
)

// Timetag is an OSC time tag: NTP seconds since 1900 plus a 32-bit fraction
// of a second.
type Timetag struct {
	Seconds  uint32
	Fraction uint32
}

// Immediate is the special "process immediately" time tag.
var Immediate = Timetag{Seconds: 0, Fraction: 1}

// Uint64 packs the tag as (seconds<<32)|fraction, the form OSCQuery uses
// when a time value is rendered to JSON.
func (t Timetag) Uint64() uint64 {
	return uint64(t.Seconds)<<32 | uint64(t.Fraction)
}

// TimetagFromUint64 is the inverse of [Timetag.Uint64].
func TimetagFromUint64(v uint64) Timetag {
	return Timetag{Seconds: uint32(v >> 32), Fraction: uint32(v)}
}

// Arg is one typed OSC argument. The concrete types are [Int], [Float],
// [String], [Blob], [Time], [Long], [Double], [Char], [Midi], [Color],
// [Bool], [Array], [Nil] and [Inf].
type Arg interface {
	// appendTag appends the argument's type tag character(s).
	appendTag(tags []byte) []byte
	// appendData appends the argument's payload bytes, already padded.
	appendData(b []byte) []byte
}

type (
	// Int is the 'i' type: a 32-bit signed integer.
	Int int32
	// Float is the 'f' type: a 32-bit float.
	Float float32
	// String is the 's' type: a null terminated, padded string.
	String string
	// Blob is the 'b' type: length prefixed opaque bytes.
	Blob []byte
	// Time is the 't' type: an OSC time tag argument.
	Time Timetag
	// Long is the 'h' type: a 64-bit signed integer.
	Long int64
	// Double is the 'd' type: a 64-bit float.
	Double float64
	// Char is the 'c' type: a single character carried as a 32-bit value.
	Char rune
	// Midi is the 'm' type: port id, status byte and two data bytes.
	Midi [4]byte
	// Color is the 'r' type: RGBA, one byte per channel.
	Color [4]byte
	// Bool covers the 'T' and 'F' tags; it carries no payload.
	Bool bool
	// Array is a '['…']' bracketed sequence of nested arguments.
	Array []Arg
	// Nil is the 'N' tag; it carries no payload.
	Nil struct{}
	// Inf is the 'I' (infinitum) tag; it carries no payload.
	Inf struct{}
)

// Packet is either a [*Message] or a [*Bundle].
type Packet interface {
	// MarshalBinary renders the packet in OSC 1.0 wire format.
	MarshalBinary() ([]byte, error)
}

// Message is a single OSC message: an address and an ordered argument list.
type Message struct {
	Address string
	Args    []Arg
}

// Bundle is a time-tagged collection of messages and nested bundles.
type Bundle struct {
	Timetag Timetag
	Packets []Packet
}

// NewMessage returns a message for the given address and arguments.
func NewMessage(address string, args ...Arg) *Message {
	return &Message{Address: address, Args: args}
}

// TypeTags returns the message's type tag string, including the leading comma.
func (m *Message) TypeTags() string {
	tags := make([]byte, 0, len(m.Args)+1)
	tags = append(tags, ',')
	for _, a := range m.Args {
		tags = a.appendTag(tags)
	}
	return string(tags)
}

func (m *Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", m.Address, m.TypeTags())
	for _, a := range m.Args {
		fmt.Fprintf(&sb, " %v", a)
	}
	return sb.String()
}

// ValidSegment reports whether s can be used as a single node address
// segment. Only the path separator is rejected; OSC's further address
// restrictions are deliberately not enforced.
func ValidSegment(s string) bool {
	return !strings.ContainsRune(s, '/')
}

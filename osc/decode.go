// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidPacket = errors.New("invalid osc packet")
	ErrInvalidTag    = errors.New("invalid osc type tag")
)

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) paddedString() (string, error) {
	end := d.pos
	for end < len(d.buf) && d.buf[end] != 0 {
		end++
	}
	if end == len(d.buf) {
		return "", fmt.Errorf("%w: unterminated string", ErrInvalidPacket)
	}
	s := string(d.buf[d.pos:end])
	// consume the terminator and the padding
	end++
	for end%4 != 0 {
		end++
	}
	if end > len(d.buf) {
		return "", fmt.Errorf("%w: truncated string padding", ErrInvalidPacket)
	}
	d.pos = end
	return s, nil
}

func (d *decoder) uint32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("%w: truncated 32-bit value", ErrInvalidPacket)
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) uint64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("%w: truncated 64-bit value", ErrInvalidPacket)
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) blob() (Blob, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	size := int(n)
	if size < 0 || size > d.remaining() {
		return nil, fmt.Errorf("%w: blob size %d out of bounds", ErrInvalidPacket, size)
	}
	v := make(Blob, size)
	copy(v, d.buf[d.pos:d.pos+size])
	d.pos += size
	for d.pos%4 != 0 && d.pos < len(d.buf) {
		d.pos++
	}
	return v, nil
}

// ParsePacket decodes a raw OSC 1.0 packet: a bundle if it starts with the
// "#bundle" marker, a message otherwise.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d not a positive multiple of 4", ErrInvalidPacket, len(b))
	}
	if len(b) >= len(bundleTag) && string(b[:len(bundleTag)]) == bundleTag {
		return parseBundle(b)
	}
	return parseMessage(b)
}

func parseMessage(b []byte) (*Message, error) {
	d := &decoder{buf: b}
	addr, err := d.paddedString()
	if err != nil {
		return nil, err
	}
	m := &Message{Address: addr}
	if d.remaining() == 0 {
		return m, nil
	}
	tags, err := d.paddedString()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(tags, ",") {
		return nil, fmt.Errorf("%w: type tag string must start with ','", ErrInvalidPacket)
	}
	args, rest, err := parseArgs(d, tags[1:], false)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: unbalanced ']' in %q", ErrInvalidTag, tags)
	}
	m.Args = args
	return m, nil
}

// parseArgs consumes tag characters until the tag string, or the enclosing
// array, ends. It returns the unconsumed tail so array recursion can resume
// after its closing bracket.
func parseArgs(d *decoder, tags string, inArray bool) ([]Arg, string, error) {
	var args []Arg
	for len(tags) > 0 {
		tag := tags[0]
		tags = tags[1:]
		var (
			arg Arg
			err error
		)
		switch tag {
		case 'i':
			var v uint32
			v, err = d.uint32()
			arg = Int(int32(v))
		case 'f':
			var v uint32
			v, err = d.uint32()
			arg = Float(math.Float32frombits(v))
		case 's':
			var v string
			v, err = d.paddedString()
			arg = String(v)
		case 'b':
			arg, err = d.blob()
		case 't':
			var v uint64
			v, err = d.uint64()
			arg = Time(TimetagFromUint64(v))
		case 'h':
			var v uint64
			v, err = d.uint64()
			arg = Long(int64(v))
		case 'd':
			var v uint64
			v, err = d.uint64()
			arg = Double(math.Float64frombits(v))
		case 'c':
			var v uint32
			v, err = d.uint32()
			arg = Char(rune(v))
		case 'm':
			if d.remaining() < 4 {
				err = fmt.Errorf("%w: truncated midi value", ErrInvalidPacket)
				break
			}
			arg = Midi{d.buf[d.pos], d.buf[d.pos+1], d.buf[d.pos+2], d.buf[d.pos+3]}
			d.pos += 4
		case 'r':
			if d.remaining() < 4 {
				err = fmt.Errorf("%w: truncated color value", ErrInvalidPacket)
				break
			}
			arg = Color{d.buf[d.pos], d.buf[d.pos+1], d.buf[d.pos+2], d.buf[d.pos+3]}
			d.pos += 4
		case 'T':
			arg = Bool(true)
		case 'F':
			arg = Bool(false)
		case 'N':
			arg = Nil{}
		case 'I':
			arg = Inf{}
		case '[':
			var nested []Arg
			nested, tags, err = parseArgs(d, tags, true)
			arg = Array(nested)
		case ']':
			if !inArray {
				return nil, "", fmt.Errorf("%w: ']' without matching '['", ErrInvalidTag)
			}
			return args, tags, nil
		default:
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}
		if err != nil {
			return nil, "", err
		}
		args = append(args, arg)
	}
	if inArray {
		return nil, "", fmt.Errorf("%w: unterminated '['", ErrInvalidTag)
	}
	return args, "", nil
}

func parseBundle(b []byte) (*Bundle, error) {
	d := &decoder{buf: b}
	tag, err := d.paddedString()
	if err != nil {
		return nil, err
	}
	if tag != bundleTag {
		return nil, fmt.Errorf("%w: bad bundle marker %q", ErrInvalidPacket, tag)
	}
	tt, err := d.uint64()
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Timetag: TimetagFromUint64(tt)}
	for d.remaining() > 0 {
		n, err := d.uint32()
		if err != nil {
			return nil, err
		}
		size := int(n)
		if size <= 0 || size > d.remaining() || size%4 != 0 {
			return nil, fmt.Errorf("%w: bundle element size %d out of bounds", ErrInvalidPacket, size)
		}
		sub, err := ParsePacket(d.buf[d.pos : d.pos+size])
		if err != nil {
			return nil, err
		}
		bundle.Packets = append(bundle.Packets, sub)
		d.pos += size
	}
	return bundle, nil
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package osc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  *Message
		tags string
	}{
		{
			name: "no args",
			msg:  NewMessage("/foo"),
			tags: ",",
		},
		{
			name: "scalars",
			msg:  NewMessage("/foo/bar", Int(7), Float(1.5), String("soda"), Long(-589), Double(23.0)),
			tags: ",ifshd",
		},
		{
			name: "exotic",
			msg:  NewMessage("/x", Char('q'), Midi{1, 0x90, 60, 127}, Time(Timetag{Seconds: 3, Fraction: 9}), Blob{1, 2, 3}, Color{255, 0, 0, 255}),
			tags: ",cmtbr",
		},
		{
			name: "bools and unit types",
			msg:  NewMessage("/t", Bool(true), Bool(false), Nil{}, Inf{}),
			tags: ",TFNI",
		},
		{
			name: "nested array",
			msg:  NewMessage("/baz", Array{Double(23.0), Long(589), Array{Int(1)}}),
			tags: ",[dh[i]]",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.tags, tc.msg.TypeTags())

			raw, err := tc.msg.MarshalBinary()
			require.NoError(t, err)
			require.Zero(t, len(raw)%4)

			pkt, err := ParsePacket(raw)
			require.NoError(t, err)
			got, ok := pkt.(*Message)
			require.True(t, ok)
			assert.Equal(t, tc.msg.Address, got.Address)
			assert.Equal(t, tc.msg.Args, got.Args)
		})
	}
}

func TestBundleRoundTrip(t *testing.T) {
	t.Parallel()

	inner := &Bundle{
		Timetag: Timetag{Seconds: 1, Fraction: 2},
		Packets: []Packet{NewMessage("/c", Int(3))},
	}
	b := &Bundle{
		Timetag: Timetag{Seconds: 42, Fraction: 7},
		Packets: []Packet{
			NewMessage("/a", Int(1)),
			inner,
			NewMessage("/b", String("x")),
		},
	}

	raw, err := b.MarshalBinary()
	require.NoError(t, err)

	pkt, err := ParsePacket(raw)
	require.NoError(t, err)
	got, ok := pkt.(*Bundle)
	require.True(t, ok)
	assert.Equal(t, b.Timetag, got.Timetag)
	require.Len(t, got.Packets, 3)

	gotInner, ok := got.Packets[1].(*Bundle)
	require.True(t, ok)
	assert.Equal(t, inner.Timetag, gotInner.Timetag)
	require.Len(t, gotInner.Packets, 1)
}

func TestParsePacketMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"unaligned", []byte{'/', 'a', 0}},
		{"unterminated address", []byte{'/', 'a', 'b', 'c'}},
		{"tags without comma", append([]byte("/a\x00\x00"), []byte("i\x00\x00\x00")...)},
		{"truncated int payload", append([]byte("/a\x00\x00"), []byte(",i\x00\x00")...)},
		{"unknown tag", append([]byte("/a\x00\x00"), []byte(",z\x00\x00")...)},
		{"unterminated array", append([]byte("/a\x00\x00"), []byte(",[\x00\x00")...)},
		{"stray array close", append([]byte("/a\x00\x00"), []byte(",]\x00\x00")...)},
		{"bundle bad element size", append([]byte("#bundle\x00\x00\x00\x00\x00\x00\x00\x00\x01"), 0xff, 0xff, 0xff, 0xff)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePacket(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestTimetagUint64(t *testing.T) {
	t.Parallel()

	tt := Timetag{Seconds: 0x01020304, Fraction: 0x05060708}
	assert.Equal(t, uint64(0x0102030405060708), tt.Uint64())
	assert.Equal(t, tt, TimetagFromUint64(tt.Uint64()))
	assert.Equal(t, uint64(1), Immediate.Uint64())
}

func TestValidSegment(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidSegment("soda"))
	assert.True(t, ValidSegment("with space and *"))
	assert.False(t, ValidSegment("/soda"))
	assert.False(t, ValidSegment("a/b"))
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osc-toolkit/oscquery/osc"
)

func startOSCService(t *testing.T, r *Root) *OSCService {
	t.Helper()
	s, err := newOSCService(r, "127.0.0.1:0", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestOSCServiceReceive(t *testing.T) {
	t.Parallel()

	r := NewRoot()
	foo, err := r.AddNode(MustContainer("foo", ""), nil)
	require.NoError(t, err)
	c := NewCell(int32(2084))
	_, err = r.AddNode(MustGetSet("bar", "", nil, IntParam(NewValue[int32](c, c).Build())), &foo)
	require.NoError(t, err)

	s := startOSCService(t, r)

	conn, err := net.Dial("udp", s.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	raw, err := osc.NewMessage("/foo/bar", osc.Int(7)).MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)

	eventually(t, func() bool { return c.Get() == 7 }, "udp write never reached the tree")
}

func TestOSCServiceMalformedPacketKeepsRunning(t *testing.T) {
	t.Parallel()

	r := NewRoot()
	c := NewCell(int32(0))
	_, err := r.AddNode(MustGetSet("v", "", nil, IntParam(NewValue[int32](c, c).Build())), nil)
	require.NoError(t, err)

	s := startOSCService(t, r)

	conn, err := net.Dial("udp", s.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	raw, err := osc.NewMessage("/v", osc.Int(5)).MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)

	eventually(t, func() bool { return c.Get() == 5 }, "service did not survive a malformed packet")
}

func TestOSCServiceTrigger(t *testing.T) {
	t.Parallel()

	r := NewRoot()
	foo, err := r.AddNode(MustContainer("foo", ""), nil)
	require.NoError(t, err)
	bar, err := r.AddNode(MustGet("bar", "", IntParam(NewCellValue(int32(7)).Build())), &foo)
	require.NoError(t, err)

	s := startOSCService(t, r)

	// a local UDP socket poses as the registered peer
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()
	require.NoError(t, s.AddSendAddr(peer.LocalAddr().String()))

	msg := s.Trigger(bar)
	require.NotNil(t, msg)
	assert.Equal(t, "/foo/bar", msg.Address)
	assert.Equal(t, []osc.Arg{osc.Int(7)}, msg.Args)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, maxPacketSize)
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)

	pkt, err := osc.ParsePacket(buf[:n])
	require.NoError(t, err)
	got, ok := pkt.(*osc.Message)
	require.True(t, ok)
	assert.Equal(t, "/foo/bar", got.Address)
	assert.Equal(t, []osc.Arg{osc.Int(7)}, got.Args)
}

func TestOSCServiceTriggerLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRoot()
	s := startOSCService(t, r)

	// unknown path and handle
	assert.Nil(t, s.TriggerPath("/nope"))
	assert.Nil(t, s.Trigger(NodeHandle{id: 404}))

	// write-only nodes cannot be rendered
	c := NewCell(int32(0))
	wo, err := r.AddNode(MustSet("in", "", nil, IntParam(NewValue[int32](nil, c).Build())), nil)
	require.NoError(t, err)
	assert.Nil(t, s.Trigger(wo))

	// a removed handle stops triggering
	g, err := r.AddNode(MustGet("out", "", IntParam(NewCellValue(int32(0)).Build())), nil)
	require.NoError(t, err)
	require.NotNil(t, s.Trigger(g))
	_, err = r.RemoveNode(g)
	require.NoError(t, err)
	assert.Nil(t, s.Trigger(g))
}

func TestOSCServiceAddRemoveSendAddr(t *testing.T) {
	t.Parallel()

	r := NewRoot()
	s := startOSCService(t, r)

	require.NoError(t, s.AddSendAddr("127.0.0.1:9000"))
	require.NoError(t, s.AddSendAddr("127.0.0.1:9000"))
	s.mu.Lock()
	assert.Len(t, s.peers, 1)
	s.mu.Unlock()

	require.NoError(t, s.RemoveSendAddr("127.0.0.1:9000"))
	s.mu.Lock()
	assert.Empty(t, s.peers)
	s.mu.Unlock()

	assert.Error(t, s.AddSendAddr("not an address"))
}

func TestOSCServiceClose(t *testing.T) {
	t.Parallel()

	r := NewRoot()
	s, err := newOSCService(r, "127.0.0.1:0", slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

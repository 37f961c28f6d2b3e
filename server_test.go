// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osc-toolkit/oscquery/osc"
)

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer("127.0.0.1:0", "127.0.0.1:0", "127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func serverGet(t *testing.T, s *Server, pathAndQuery string) (int, string) {
	t.Helper()
	rsp, err := http.Get("http://" + s.HTTPLocalAddr().String() + pathAndQuery)
	require.NoError(t, err)
	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	return rsp.StatusCode, string(body)
}

// dialServerWS opens a session and waits until the service registered want
// sessions in total.
func dialServerWS(t *testing.T, s *Server, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.WSLocalAddr().String()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	eventually(t, func() bool {
		s.ws.mu.Lock()
		defer s.ws.mu.Unlock()
		return len(s.ws.sessions) >= want
	}, "ws session never registered")
	return conn
}

// Build, introspect, read: the full JSON of a small namespace.
func TestServerIntrospection(t *testing.T) {
	s := startServer(t)

	foo, err := s.AddNode(MustContainer("foo", "description of foo"), nil)
	require.NoError(t, err)
	_, err = s.AddNode(MustGet("bar", "b",
		IntParam(NewCellValue(int32(2084)).WithUnit("distance.m").Build()),
	), &foo)
	require.NoError(t, err)

	code, body := serverGet(t, s, "/")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `
{"ACCESS":0,"DESCRIPTION":"root node","FULL_PATH":"/",
 "CONTENTS":{"foo":{"ACCESS":0,"DESCRIPTION":"description of foo","FULL_PATH":"/foo",
   "CONTENTS":{"bar":{"ACCESS":1,"DESCRIPTION":"b","FULL_PATH":"/foo/bar",
     "VALUE":[2084],"UNIT":["distance.m"],"TYPE":"i","RANGE":[{}],"CLIPMODE":["none"]}}}}}`,
		body)

	// subtree removal returns leaves first, then the handle dies
	removed, err := s.RemoveNode(foo)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, "bar", removed[0].Address())
	assert.Equal(t, "foo", removed[1].Address())

	_, err = s.RemoveNode(foo)
	assert.ErrorIs(t, err, ErrNodeRemoved)
}

// An OSC write over UDP becomes visible through HTTP.
func TestServerOSCWriteReadBack(t *testing.T) {
	s := startServer(t)

	foo, err := s.AddNode(MustContainer("foo", ""), nil)
	require.NoError(t, err)
	c := NewCell(int32(2084))
	_, err = s.AddNode(MustGetSet("bar", "", nil, IntParam(NewValue[int32](c, c).Build())), &foo)
	require.NoError(t, err)

	conn, err := net.Dial("udp", s.OSCLocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	raw, err := osc.NewMessage("/foo/bar", osc.Int(7)).MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)

	eventually(t, func() bool { return c.Get() == 7 }, "udp write never landed")

	code, body := serverGet(t, s, "/foo/bar?VALUE")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"VALUE":[7]}`, body)
}

// A LISTENing session receives trigger broadcasts; a silent one does not.
func TestServerTriggerFanOut(t *testing.T) {
	s := startServer(t)

	foo, err := s.AddNode(MustContainer("foo", ""), nil)
	require.NoError(t, err)
	c := NewCell(int32(7))
	bar, err := s.AddNode(MustGetSet("bar", "", nil, IntParam(NewValue[int32](c, c).Build())), &foo)
	require.NoError(t, err)

	a := dialServerWS(t, s, 1)
	b := dialServerWS(t, s, 2)

	sendCommand(t, a, wsCmdListen, "/foo/bar")
	waitListening(t, s.ws, "/foo/bar", true)

	assert.True(t, s.Trigger(bar))

	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := a.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	pkt, err := osc.ParsePacket(data)
	require.NoError(t, err)
	msg, ok := pkt.(*osc.Message)
	require.True(t, ok)
	assert.Equal(t, "/foo/bar", msg.Address)
	assert.Equal(t, []osc.Arg{osc.Int(7)}, msg.Args)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "session without LISTEN received a frame")

	// lifecycle errors surface as false
	assert.False(t, s.TriggerPath("/nope"))
	assert.False(t, s.Trigger(NodeHandle{id: 404}))
}

// Namespace changes are pushed to every session.
func TestServerNamespacePush(t *testing.T) {
	s := startServer(t)
	conn := dialServerWS(t, s, 1)

	x, err := s.AddNode(MustContainer("x", ""), nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"COMMAND":"PATH_ADDED","DATA":"/x"}`, string(data))

	_, err = s.RemoveNode(x)
	require.NoError(t, err)

	kind, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"COMMAND":"PATH_REMOVED","DATA":"/x"}`, string(data))
}

// A Set handler's deferred mutator adds a node that becomes reachable over HTTP.
func TestServerDeferredMutation(t *testing.T) {
	s := startServer(t)

	foo, err := s.AddNode(MustContainer("foo", ""), nil)
	require.NoError(t, err)

	handler := UpdateFuncWithMutation(func(args []osc.Arg, _ net.Addr, _ *osc.Timetag) Mutator {
		if len(args) == 0 {
			return nil
		}
		name, ok := args[0].(osc.String)
		if !ok {
			return nil
		}
		return func(txn *Txn) {
			_, _ = txn.Add(MustGet(string(name), "", IntParam(NewCellValue(int32(0)).Build())), &foo)
		}
	})
	_, err = s.AddNode(MustSet("add", "", handler, StringParam(NewCellValue("").Build())), &foo)
	require.NoError(t, err)

	conn, err := net.Dial("udp", s.OSCLocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	raw, err := osc.NewMessage("/foo/add", osc.String("soda")).MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)

	eventually(t, func() bool {
		return s.Root().WithNodeAtPath("/foo/soda", func(*Node) {}) == nil
	}, "deferred mutation never landed")

	code, body := serverGet(t, s, "/foo/soda")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"FULL_PATH":"/foo/soda"`)
}

// Triggers also reach registered UDP peers.
func TestServerTriggerUDPPeer(t *testing.T) {
	s := startServer(t)

	g, err := s.AddNode(MustGet("v", "", IntParam(NewCellValue(int32(3)).Build())), nil)
	require.NoError(t, err)

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()
	require.NoError(t, s.AddSendAddr(peer.LocalAddr().String()))

	require.True(t, s.Trigger(g))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, maxPacketSize)
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	pkt, err := osc.ParsePacket(buf[:n])
	require.NoError(t, err)
	msg, ok := pkt.(*osc.Message)
	require.True(t, ok)
	assert.Equal(t, "/v", msg.Address)

	// after removal the peer stays quiet
	require.NoError(t, s.RemoveSendAddr(peer.LocalAddr().String()))
	require.True(t, s.Trigger(g))
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = peer.ReadFromUDP(buf)
	assert.Error(t, err)
}

func TestServerHostInfoName(t *testing.T) {
	s := startServer(t, WithServerName("studio rig"))

	code, body := serverGet(t, s, "/?HOST_INFO")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"NAME":"studio rig"`)
	assert.Contains(t, body, `"OSC_TRANSPORT":"UDP"`)
}

func TestMustServerPanicsOnBadAddr(t *testing.T) {
	assert.Panics(t, func() {
		MustServer("not an addr", "not an addr", "not an addr")
	})
}

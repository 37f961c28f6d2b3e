// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"errors"
	"net"
)

// Server is the batteries included wiring of the namespace tree and the
// three transport services. All parts share one [Root]; incoming OSC from
// UDP or WebSocket frames routes into it, triggers fan the rendered value
// out to UDP peers and subscribed WebSocket sessions, and structural changes
// are pushed to every session.
type Server struct {
	root *Root
	osc  *OSCService
	ws   *WSService
	http *HTTPService
}

// NewServer binds the HTTP, OSC (UDP) and WebSocket endpoints and starts
// their services. Any address may use port 0; the effective addresses are
// available from the *Addr methods and are advertised in HOST_INFO.
func NewServer(httpAddr, oscAddr, wsAddr string, opts ...Option) (*Server, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	root := NewRoot(opts...)

	oscSvc, err := newOSCService(root, oscAddr, cfg.logger)
	if err != nil {
		return nil, err
	}
	wsSvc, err := newWSService(root, wsAddr, cfg.logger)
	if err != nil {
		_ = oscSvc.Close()
		return nil, err
	}
	httpSvc, err := newHTTPService(root, httpAddr, oscSvc.LocalAddr(), wsSvc.LocalAddr(), cfg.logger)
	if err != nil {
		_ = wsSvc.Close()
		_ = oscSvc.Close()
		return nil, err
	}

	s := &Server{
		root: root,
		osc:  oscSvc,
		ws:   wsSvc,
		http: httpSvc,
	}
	for _, addr := range cfg.sendAddrs {
		if err := s.AddSendAddr(addr); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// MustServer is a convenience wrapper for [NewServer] that panics on error.
func MustServer(httpAddr, oscAddr, wsAddr string, opts ...Option) *Server {
	s, err := NewServer(httpAddr, oscAddr, wsAddr, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Root returns the shared namespace tree.
func (s *Server) Root() *Root {
	return s.root
}

// AddNode attaches node under parent (the root container when parent is
// nil) and returns its stable handle. Connected WebSocket clients receive a
// PATH_ADDED push.
func (s *Server) AddNode(node *Node, parent *NodeHandle) (NodeHandle, error) {
	return s.root.AddNode(node, parent)
}

// RemoveNode removes the subtree rooted at h and returns the removed nodes,
// leaves first. Connected WebSocket clients receive one PATH_REMOVED push
// per removed node, in the same order.
func (s *Server) RemoveNode(h NodeHandle) ([]*Node, error) {
	return s.root.RemoveNode(h)
}

// Trigger renders the node named by h and sends the resulting OSC message
// to every registered UDP peer and every WebSocket session that LISTENed
// its path. It reports whether a message was rendered.
func (s *Server) Trigger(h NodeHandle) bool {
	msg := s.osc.Trigger(h)
	if msg == nil {
		return false
	}
	s.ws.BroadcastOSC(msg)
	return true
}

// TriggerPath is [Server.Trigger] by full path.
func (s *Server) TriggerPath(path string) bool {
	msg := s.osc.TriggerPath(path)
	if msg == nil {
		return false
	}
	s.ws.BroadcastOSC(msg)
	return true
}

// AddSendAddr registers an outbound OSC peer.
func (s *Server) AddSendAddr(addr string) error {
	return s.osc.AddSendAddr(addr)
}

// RemoveSendAddr unregisters an outbound OSC peer.
func (s *Server) RemoveSendAddr(addr string) error {
	return s.osc.RemoveSendAddr(addr)
}

// OSCLocalAddr returns the UDP address the OSC service bound to.
func (s *Server) OSCLocalAddr() net.Addr { return s.osc.LocalAddr() }

// WSLocalAddr returns the TCP address the WebSocket service bound to.
func (s *Server) WSLocalAddr() net.Addr { return s.ws.LocalAddr() }

// HTTPLocalAddr returns the TCP address the HTTP service bound to.
func (s *Server) HTTPLocalAddr() net.Addr { return s.http.LocalAddr() }

// Close tears the services down: HTTP first, then WebSocket, then OSC.
func (s *Server) Close() error {
	return errors.Join(
		s.http.Close(),
		s.ws.Close(),
		s.osc.Close(),
	)
}

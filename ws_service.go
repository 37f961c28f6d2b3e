// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/osc-toolkit/oscquery/osc"
)

const sessionBacklog = 1024

// wsCommand is the JSON frame exchanged with clients: LISTEN / IGNORE from
// the client, PATH_ADDED / PATH_REMOVED from the server.
type wsCommand struct {
	Command string `json:"COMMAND"`
	Data    string `json:"DATA"`
}

const (
	wsCmdListen = "LISTEN"
	wsCmdIgnore = "IGNORE"
)

type wsOutKind uint8

const (
	wsOutOSC wsOutKind = iota
	wsOutEvent
	wsOutClose
)

type wsOut struct {
	kind  wsOutKind
	msg   *osc.Message
	data  []byte // pre-encoded binary frame for msg
	event Event
}

type wsSession struct {
	conn   *websocket.Conn
	out    chan wsOut
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]struct{}
}

func (s *wsSession) listen(path string) { s.mu.Lock(); s.subs[path] = struct{}{}; s.mu.Unlock() }
func (s *wsSession) ignore(path string) { s.mu.Lock(); delete(s.subs, path); s.mu.Unlock() }

func (s *wsSession) listening(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[path]
	return ok
}

// send enqueues an outbound message, dropping it when the session's queue is
// full so broadcasters never block on a slow client.
func (s *wsSession) send(m wsOut) bool {
	select {
	case s.out <- m:
		return true
	default:
		s.logger.Warn("ws message dropped, session queue full", "peer", s.conn.RemoteAddr().String())
		return false
	}
}

// writeLoop is the only goroutine writing to the connection. OSC broadcasts
// are filtered against the session's subscription set; namespace changes go
// out unconditionally as text frames.
func (s *wsSession) writeLoop() {
	for m := range s.out {
		switch m.kind {
		case wsOutOSC:
			if !s.listening(m.msg.Address) {
				continue
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, m.data); err != nil {
				return
			}
		case wsOutEvent:
			frame, err := json.Marshal(wsCommand{Command: m.event.Kind.String(), Data: m.event.Path})
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case wsOutClose:
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// WSService owns the WebSocket endpoint: a TCP listener whose connections
// are upgraded at any path. Binary frames carry OSC packets into the tree,
// text frames carry LISTEN/IGNORE commands; each session receives the
// namespace change feed and the subscribed slice of trigger broadcasts.
type WSService struct {
	root   *Root
	logger *slog.Logger
	ln     net.Listener
	srv    *http.Server

	mu       sync.Mutex
	sessions map[string]*wsSession
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newWSService(root *Root, addr string, logger *slog.Logger) (*WSService, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &WSService{
		root:     root,
		logger:   logger,
		ln:       ln,
		sessions: make(map[string]*wsSession),
		done:     make(chan struct{}),
	}
	s.srv = &http.Server{Handler: http.HandlerFunc(s.upgrade)}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ws listener failed", "error", err)
		}
	}()
	go s.pumpEvents()
	return s, nil
}

// pumpEvents fans namespace changes out to every live session.
func (s *WSService) pumpEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.root.Events():
			s.mu.Lock()
			for _, sess := range s.sessions {
				sess.send(wsOut{kind: wsOutEvent, event: ev})
			}
			s.mu.Unlock()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	// the namespace is meant to be network-visible; no origin policy
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *WSService) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "peer", r.RemoteAddr, "error", err)
		return
	}
	sess := &wsSession{
		conn:   conn,
		out:    make(chan wsOut, sessionBacklog),
		logger: s.logger,
		subs:   make(map[string]struct{}),
	}
	key := conn.RemoteAddr().String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[key] = sess
	s.mu.Unlock()

	go sess.writeLoop()
	s.readLoop(sess)

	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	close(sess.out)
	_ = conn.Close()
}

func (s *WSService) readLoop(sess *wsSession) {
	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			pkt, err := osc.ParsePacket(data)
			if err != nil {
				s.logger.Warn("dropping malformed osc frame", "peer", sess.conn.RemoteAddr().String(), "error", err)
				continue
			}
			recoverDispatch(s.logger, "websocket", func() {
				s.root.HandleOSCPacket(pkt, nil, nil)
			})
		case websocket.TextMessage:
			var cmd wsCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				s.logger.Warn("dropping malformed ws command", "peer", sess.conn.RemoteAddr().String(), "error", err)
				continue
			}
			switch cmd.Command {
			case wsCmdListen:
				sess.listen(cmd.Data)
			case wsCmdIgnore:
				sess.ignore(cmd.Data)
			default:
				s.logger.Debug("ignoring unknown ws command", "command", cmd.Command)
			}
		}
	}
}

// BroadcastOSC offers a rendered message to every session; sessions emit a
// binary frame only when they LISTENed the message's address.
func (s *WSService) BroadcastOSC(msg *osc.Message) {
	data, err := msg.MarshalBinary()
	if err != nil {
		s.logger.Error("osc encode failed", "path", msg.Address, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.send(wsOut{kind: wsOutOSC, msg: msg, data: data})
	}
}

// LocalAddr returns the bound TCP address.
func (s *WSService) LocalAddr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting connections, closes every session and waits for the
// service goroutines to exit. Safe to call more than once.
func (s *WSService) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		for _, sess := range s.sessions {
			sess.send(wsOut{kind: wsOutClose})
			// unblock the session's read loop; upgraded connections are
			// hijacked and outlive the http server otherwise
			_ = sess.conn.Close()
		}
		s.mu.Unlock()
		err = s.srv.Close()
		s.wg.Wait()
	})
	return err
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/osc-toolkit/oscquery/osc"
)

// readTimeout bounds each blocking receive so the worker polls its command
// queue frequently.
const readTimeout = time.Millisecond

// maxPacketSize is the receive buffer size for one datagram.
const maxPacketSize = 65507

const sendBacklog = 1024

type oscCmdKind uint8

const (
	oscCmdSend oscCmdKind = iota
	oscCmdEnd
)

type oscCmd struct {
	kind oscCmdKind
	data []byte
	addr *net.UDPAddr
}

// OSCService owns the UDP endpoint: one worker goroutine alternates between
// draining a bounded outbound queue and receiving datagrams, handing decoded
// packets to the tree's two-phase dispatcher.
//
// Close to stop the service; it waits for the worker to exit.
type OSCService struct {
	root   *Root
	logger *slog.Logger
	conn   *net.UDPConn

	cmds chan oscCmd
	wg   sync.WaitGroup
	once sync.Once

	mu    sync.Mutex
	peers map[string]*net.UDPAddr
}

func newOSCService(root *Root, addr string, logger *slog.Logger) (*OSCService, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	s := &OSCService{
		root:   root,
		logger: logger,
		conn:   conn,
		cmds:   make(chan oscCmd, sendBacklog),
		peers:  make(map[string]*net.UDPAddr),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *OSCService) run() {
	defer s.wg.Done()
	buf := make([]byte, maxPacketSize)
	for {
		// drain pending outbound commands first
		for {
			select {
			case cmd := <-s.cmds:
				if cmd.kind == oscCmdEnd {
					return
				}
				if _, err := s.conn.WriteToUDP(cmd.data, cmd.addr); err != nil {
					s.logger.Warn("osc send failed", "peer", cmd.addr.String(), "error", err)
				}
				continue
			default:
			}
			break
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			s.logger.Error("osc read deadline", "error", err)
			return
		}
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("osc receive failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		pkt, err := osc.ParsePacket(buf[:n])
		if err != nil {
			s.logger.Warn("dropping malformed osc packet", "src", src.String(), "error", err)
			continue
		}
		recoverDispatch(s.logger, "udp", func() {
			s.root.HandleOSCPacket(pkt, src, nil)
		})
	}
}

// LocalAddr returns the bound UDP address.
func (s *OSCService) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// AddSendAddr registers an outbound peer; triggered values are sent to every
// registered peer. Adding the same address twice is a no-op.
func (s *OSCService) AddSendAddr(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.peers[udpAddr.String()] = udpAddr
	s.mu.Unlock()
	return nil
}

// RemoveSendAddr unregisters an outbound peer.
func (s *OSCService) RemoveSendAddr(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.peers, udpAddr.String())
	s.mu.Unlock()
	return nil
}

// Trigger renders the node named by h into an OSC message, enqueues a send
// to every registered peer and returns the message so the caller can also
// broadcast it to WebSocket subscribers. It returns nil when the handle is
// unknown or the node is not readable.
func (s *OSCService) Trigger(h NodeHandle) *osc.Message {
	path, ok := s.root.HandleToPath(h)
	if !ok {
		return nil
	}
	return s.TriggerPath(path)
}

// TriggerPath is [OSCService.Trigger] by full path.
func (s *OSCService) TriggerPath(path string) *osc.Message {
	msg := s.root.renderMessage(path)
	if msg == nil {
		return nil
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		s.logger.Error("osc encode failed", "path", path, "error", err)
		return nil
	}
	s.mu.Lock()
	peers := make([]*net.UDPAddr, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		s.enqueue(oscCmd{kind: oscCmdSend, data: data, addr: p})
	}
	return msg
}

func (s *OSCService) enqueue(cmd oscCmd) {
	select {
	case s.cmds <- cmd:
	default:
		s.logger.Warn("osc send dropped, queue full", "peer", cmd.addr.String())
	}
}

// Close stops the worker and closes the socket. Safe to call more than once.
func (s *OSCService) Close() error {
	var err error
	s.once.Do(func() {
		// queued sends drain before End is honored
		s.cmds <- oscCmd{kind: oscCmdEnd}
		s.wg.Wait()
		err = s.conn.Close()
	})
	return err
}

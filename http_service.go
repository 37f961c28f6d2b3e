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
)

// Extensions advertises which optional OSCQuery features this server
// implements, keyed the way the protocol spells them.
type Extensions struct {
	Access       bool `json:"ACCESS"`
	Value        bool `json:"VALUE"`
	Range        bool `json:"RANGE"`
	Description  bool `json:"DESCRIPTION"`
	ClipMode     bool `json:"CLIPMODE"`
	Unit         bool `json:"UNIT"`
	Listen       bool `json:"LISTEN"`
	PathAdded    bool `json:"PATH_ADDED"`
	PathRemoved  bool `json:"PATH_REMOVED"`
	PathChanged  bool `json:"PATH_CHANGED"`
	PathRenamed  bool `json:"PATH_RENAMED"`
	Tags         bool `json:"TAGS"`
	ExtendedType bool `json:"EXTENDED_TYPE"`
	Critical     bool `json:"CRITICAL"`
	Overloads    bool `json:"OVERLOADS"`
	HTML         bool `json:"HTML"`
}

func defaultExtensions() Extensions {
	return Extensions{
		Access:      true,
		Value:       true,
		Range:       true,
		Description: true,
		ClipMode:    true,
		Unit:        true,
	}
}

// withWS marks the extensions served by the WebSocket push channel.
func (e *Extensions) withWS() {
	e.Listen = true
	e.PathAdded = true
	e.PathRemoved = true
}

// hostInfo is the HOST_INFO reply body.
type hostInfo struct {
	Name         string     `json:"NAME,omitempty"`
	OSCTransport string     `json:"OSC_TRANSPORT,omitempty"`
	OSCIP        string     `json:"OSC_IP,omitempty"`
	OSCPort      int        `json:"OSC_PORT,omitempty"`
	WSIP         string     `json:"WS_IP,omitempty"`
	WSPort       int        `json:"WS_PORT,omitempty"`
	Extensions   Extensions `json:"EXTENSIONS"`
}

// HTTPService serves the OSCQuery introspection surface: the namespace as
// JSON, attribute-filtered views and the HOST_INFO handshake.
type HTTPService struct {
	root   *Root
	logger *slog.Logger
	ln     net.Listener
	srv    *http.Server

	oscAddr net.Addr
	wsAddr  net.Addr

	wg   sync.WaitGroup
	once sync.Once
}

func newHTTPService(root *Root, addr string, oscAddr, wsAddr net.Addr, logger *slog.Logger) (*HTTPService, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &HTTPService{
		root:    root,
		logger:  logger,
		ln:      ln,
		oscAddr: oscAddr,
		wsAddr:  wsAddr,
	}
	s.srv = &http.Server{Handler: requestLogger(logger, http.HandlerFunc(s.handle))}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http listener failed", "error", err)
		}
	}()
	return s, nil
}

func (s *HTTPService) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	query := r.URL.RawQuery
	if query == "HOST_INFO" {
		s.serveHostInfo(w)
		return
	}

	var attr *Attr
	if query != "" {
		a, err := ParseAttr(query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		attr = &a
	}

	body, err := s.root.RenderPath(r.URL.Path, attr)
	if err != nil {
		// unknown path: no rendering, answered like a null one
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if string(body) == "null" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set(HeaderContentType, MIMEApplicationJSON)
	_, _ = w.Write(body)
}

func (s *HTTPService) serveHostInfo(w http.ResponseWriter) {
	info := hostInfo{
		Name:       s.root.Name(),
		Extensions: defaultExtensions(),
	}
	if s.oscAddr != nil {
		if udp, ok := s.oscAddr.(*net.UDPAddr); ok {
			info.OSCTransport = "UDP"
			info.OSCIP = udp.IP.String()
			info.OSCPort = udp.Port
		}
	}
	if s.wsAddr != nil {
		if tcp, ok := s.wsAddr.(*net.TCPAddr); ok {
			info.WSIP = tcp.IP.String()
			info.WSPort = tcp.Port
			info.Extensions.withWS()
		}
	}
	body, err := json.Marshal(info)
	if err != nil {
		s.logger.Error("host info encode failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set(HeaderContentType, MIMEApplicationJSON)
	_, _ = w.Write(body)
}

// LocalAddr returns the bound TCP address.
func (s *HTTPService) LocalAddr() net.Addr {
	return s.ln.Addr()
}

// Close stops the listener and waits for the server goroutine to exit.
// Safe to call more than once.
func (s *HTTPService) Close() error {
	var err error
	s.once.Do(func() {
		err = s.srv.Close()
		s.wg.Wait()
	})
	return err
}

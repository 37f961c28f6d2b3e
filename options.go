// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import "log/slog"

type config struct {
	name      string
	logger    *slog.Logger
	sendAddrs []string
}

func defaultConfig() *config {
	return &config{logger: slog.Default()}
}

// Option configures a [Root] or a [Server].
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

// WithServerName sets the server name advertised in the HOST_INFO NAME field.
func WithServerName(name string) Option {
	return optionFunc(func(c *config) {
		c.name = name
	})
}

// WithLogger sets the logger used by the tree and the services. By default,
// [slog.Default] is used.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithSendAddr registers an initial outbound OSC peer; triggered values are
// sent to every registered peer. Peers can also be managed at runtime with
// [Server.AddSendAddr] and [Server.RemoveSendAddr].
func WithSendAddr(addr string) Option {
	return optionFunc(func(c *config) {
		c.sendAddrs = append(c.sendAddrs, addr)
	})
}

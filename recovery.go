// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

import (
	"log/slog"
	"runtime"
)

// Keys for "built-in" logger attributes used by dispatch recovery.
const (
	// LoggerPanicKey is the key used for the recovered panic value.
	// The associated [slog.Value] is any.
	LoggerPanicKey = "panic"
	// LoggerTransportKey is the key used for the transport the packet
	// arrived on. The associated [slog.Value] is a string.
	LoggerTransportKey = "transport"
)

// recoverDispatch invokes fn and recovers any panic raised below it, which
// reaches here from user code: a write handler, a custom getter or setter.
// The tree releases its guards on unwind, so the packet is simply dropped
// and the service keeps running.
func recoverDispatch(logger *slog.Logger, transport string, fn func()) {
	defer func() {
		if err := recover(); err != nil {
			buf := make([]byte, 4<<10)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Error("panic during osc dispatch, packet dropped",
				LoggerTransportKey, transport,
				LoggerPanicKey, err,
				"stack", string(buf),
			)
		}
	}()
	fn()
}

// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

// Package oscquery exposes a hierarchical namespace of typed parameters as a
// discoverable OSCQuery control surface: values move over OSC (UDP or
// WebSocket binary frames), the namespace is introspected over HTTP as JSON,
// and namespace changes and subscribed value updates are pushed to WebSocket
// clients.
//
// Application code builds [Node] values, attaches them to a shared [Root]
// tree, and lets [Server] run the three transports against it.
package oscquery

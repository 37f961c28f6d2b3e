// Copyright 2023 The oscquery authors. All rights reserved.
// Use of this source code is governed by a Apache-2.0 license that can be found
// at https://github.com/osc-toolkit/oscquery/blob/master/LICENSE.txt.

package oscquery

const (
	HeaderContentType = "Content-Type"

	MIMEApplicationJSON = "application/json"
)

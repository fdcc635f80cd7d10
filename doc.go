// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package newsmap publishes the NewsMap site.
//
// The publisher lives in [go.astrophena.name/newsmap/cmd/publish]. It is
// meant to be run once a day by a scheduler:
//
//	$ go run ./cmd/publish
package newsmap

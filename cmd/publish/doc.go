// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Publish regenerates the NewsMap site and pushes it.

It activates the Python virtual environment of the site, runs the generator,
stages everything in the working directory, commits it as "Daily NewsMap
Update: <date>", pushes to the main branch of origin and then waits ten
seconds before exiting, so the output can be read when it runs in a console
window from a scheduler.

A failing step doesn't stop the run: a broken generator still leads to a
commit of whatever it left behind, and an empty commit still leads to a push.

# Usage

	$ publish

Arguments are ignored.

# Environment Variables

  - NEWSMAP_DIR: The site working directory. Defaults to NewsMap in the
    home directory.
  - NEWSMAP_CONFIG: The config file. Defaults to publish.star in the working
    directory. A missing default config file is fine; a missing file named
    here is an error.

# Config File

The config file is Starlark. It sets globals such as remote, branch,
generator, pause or policy; see the internal/config package for the full list.
For example:

	generator = ["python", "main.py"]
	pause = "30s"
	policy = "stop-on-generate-failure"
	feed_url = "https://newsmap.example.com/"
	minify = True

# Exit Status

Publish exits with zero status after a completed run, even if some steps
failed, unless the config file sets strict = True. It exits with non-zero
status right away if the working directory doesn't exist or the config file
is invalid.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

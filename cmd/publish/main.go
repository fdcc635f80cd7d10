// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.astrophena.name/base/cli"
	"go.astrophena.name/base/logger"
	"go.astrophena.name/newsmap/internal/config"
	"go.astrophena.name/newsmap/internal/proc"
	"go.astrophena.name/newsmap/internal/publish"
)

func main() { cli.Main(cli.AppFunc(run)) }

func run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	c, err := config.Load(ctx, env.Getenv)
	if err != nil {
		return err
	}
	return publishOnce(ctx, c, env.Args, os.Stdout, nil)
}

// errStepsFailed is returned in strict mode when some steps failed.
var errStepsFailed = errors.New("some steps failed")

// publishOnce performs a run. Arguments are accepted and ignored.
func publishOnce(ctx context.Context, c *config.Config, args []string, stdout io.Writer, runner proc.Runner) error {
	if len(args) > 0 {
		logger.Info(ctx, "ignoring arguments", slog.String("args", strings.Join(args, " ")))
	}

	pc := c.Publish(stdout)
	pc.Runner = runner
	r, err := publish.Run(ctx, pc)
	if err != nil {
		return err
	}

	if failed := r.Failed(); len(failed) > 0 {
		steps := make([]string, 0, len(failed))
		for _, f := range failed {
			steps = append(steps, string(f.Step))
		}
		logger.Error(ctx, "published with failures", slog.String("steps", strings.Join(steps, ", ")))
		if c.Strict {
			return fmt.Errorf("%w: %s", errStepsFailed, strings.Join(steps, ", "))
		}
		return nil
	}
	logger.Info(ctx, "published", slog.String("message", r.Message))
	return nil
}

// Package tasks provides the built-in task bodies that config-defined tasks
// bind to: external commands, HTTP probes, and bandwidth measurements.
package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskd/internal/scheduler"
)

// maxOutputTail bounds how much command output is carried into an error.
const maxOutputTail = 512

// Command returns a body that runs argv and fails on a non-zero exit. A
// positive timeout kills the process when exceeded.
func Command(argv []string, timeout time.Duration, log zerolog.Logger) scheduler.Body {
	name := argv[0]
	args := argv[1:]
	return func() error {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdout = &out
		cmd.Stderr = &out

		start := time.Now()
		err := cmd.Run()
		took := time.Since(start)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("command %s timed out after %s", name, timeout)
			}
			return fmt.Errorf("command %s: %w: %s", name, err, outputTail(out.Bytes()))
		}
		log.Debug().Str("command", name).Dur("took", took).Msg("command completed")
		return nil
	}
}

// outputTail returns the last maxOutputTail bytes of combined output, trimmed,
// for inclusion in an error message.
func outputTail(b []byte) string {
	if len(b) > maxOutputTail {
		b = b[len(b)-maxOutputTail:]
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "(no output)"
	}
	return s
}

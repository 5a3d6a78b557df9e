package tasks

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"taskd/internal/scheduler"
)

// HTTPCheck returns a body that probes url with a GET and fails on transport
// errors and non-2xx statuses.
func HTTPCheck(url string, timeout time.Duration, log zerolog.Logger) scheduler.Body {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return func() error {
		start := time.Now()
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("probe %s: %w", url, err)
		}
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("probe %s: unexpected status %s", url, resp.Status)
		}
		log.Debug().Str("url", url).Int("status", resp.StatusCode).
			Dur("took", time.Since(start)).Msg("probe completed")
		return nil
	}
}

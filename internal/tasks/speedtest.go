package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	st "github.com/showwin/speedtest-go/speedtest"

	"taskd/internal/scheduler"
)

// Speedtest returns an interruptible body that measures link bandwidth
// against the closest speedtest server. The run is split into phases (server
// selection, ping, download, upload) with a proceed check between each, so a
// pause or stop lands between phases instead of after the whole measurement.
func Speedtest(log zerolog.Logger) scheduler.InterruptibleBody {
	return func(proceed func() bool) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := st.New()
		servers, err := client.FetchServerListContext(ctx)
		if err != nil {
			return fmt.Errorf("speedtest: fetch server list: %w", err)
		}
		targets, err := servers.FindServer(nil)
		if err != nil || len(targets) == 0 {
			return fmt.Errorf("speedtest: no server available: %w", err)
		}
		srv := targets[0]
		if !proceed() {
			return nil
		}

		if err := srv.PingTestContext(ctx, nil); err != nil {
			return fmt.Errorf("speedtest: ping %s: %w", srv.Host, err)
		}
		if !proceed() {
			return nil
		}

		if err := srv.DownloadTestContext(ctx); err != nil {
			return fmt.Errorf("speedtest: download %s: %w", srv.Host, err)
		}
		if !proceed() {
			return nil
		}

		if err := srv.UploadTestContext(ctx); err != nil {
			return fmt.Errorf("speedtest: upload %s: %w", srv.Host, err)
		}

		log.Info().
			Str("server", srv.Host).
			Dur("ping", srv.Latency).
			Float64("download_mbps", srv.DLSpeed.Mbps()).
			Float64("upload_mbps", srv.ULSpeed.Mbps()).
			Msg("speedtest completed")
		return nil
	}
}

package main

import (
	"crypto/tls"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/transport"
)

const certValidity = 24 * time.Hour

func newServeCmd(a *app) *cobra.Command {
	var (
		delay     time.Duration
		interval  time.Duration
		reusePort bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulated appliance on the configured address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var tlsConf *tls.Config
			if a.cfg.QUIC {
				var err error
				if tlsConf, err = transport.SelfSignedTLS(certValidity); err != nil {
					return err
				}
			}

			srv := akvs.NewServer(akvs.ServerOptions{
				Addr:              a.cfg.Addr,
				ReplyDelay:        delay,
				BroadcastInterval: interval,
				ReusePort:         reusePort,
				TLSConfig:         tlsConf,
				Log:               a.log,
			})
			if err := srv.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			a.log.Info("shutting down")

			return srv.Close()
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&delay, "delay", 0, "delay every reply to emulate device latency")
	flags.DurationVar(&interval, "broadcast-interval", 0, "broadcast NOW periodically, 0 disables")
	flags.BoolVar(&reusePort, "reuseport", false, "listen with SO_REUSEPORT (TCP only)")

	return cmd
}

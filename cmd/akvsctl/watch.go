package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-serialproto/driver"
	"github.com/arloliu/go-serialproto/internal/akvs"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		count    int
		snapshot bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print NOW broadcasts as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var prologue []byte
			if snapshot {
				prologue = []byte(akvs.BroadcastCommand + akvs.Terminator)
			}

			d, err := a.openDriver(ctx, prologue)
			if err != nil {
				return err
			}
			defer d.Close()

			for n := 0; count <= 0 || n < count; n++ {
				ev, err := d.NextEvent(ctx)
				if err != nil {
					if errors.Is(err, driver.ErrClosed) || ctx.Err() != nil {
						return nil
					}

					return err
				}

				out, err := replyJSON(ev)
				if err != nil {
					return err
				}
				if err := printLine(a.out, out); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after n events, 0 watches until interrupted")
	cmd.Flags().BoolVar(&snapshot, "snapshot", true, "ask the appliance for the current state first")

	return cmd
}

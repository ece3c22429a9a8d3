package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-serialproto/internal/akvs"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <slot>",
		Short: "Read a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := akvs.NewGet(args[0])
			req.Wait = a.cfg.Timeout

			return a.request(cmd.Context(), req)
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <slot> <value>",
		Short: "Write a single capital letter to a slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := akvs.NewSet(args[0], args[1])
			req.Wait = a.cfg.Timeout

			return a.request(cmd.Context(), req)
		},
	}
}

// request sends one request, prints its outcome and returns an error when
// the request failed or the appliance refused it.
func (a *app) request(ctx context.Context, req akvs.Command) error {
	if err := req.Validate(); err != nil {
		return err
	}

	d, err := a.openDriver(ctx, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	f, err := d.Send(ctx, req)
	if err != nil {
		return err
	}

	reply, rerr := f.Wait(ctx)
	out, err := resultJSON(f, reply, rerr, time.Since(start))
	if err != nil {
		return err
	}
	if err := printLine(a.out, out); err != nil {
		return err
	}

	return requestFailed(reply, rerr)
}

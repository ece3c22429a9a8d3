package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/arloliu/go-serialproto/correlator"
	"github.com/arloliu/go-serialproto/driver"
	"github.com/arloliu/go-serialproto/internal/akvs"
)

var errInvalidScript = errors.New("batch: invalid script")

// parseBatch reads a JSON script of the form
//
//	{"timeout": "200ms", "requests": [{"op": "set", "slot": "A", "value": "Z"}, {"op": "get", "slot": "A", "timeout": "50ms"}]}
//
// The top level timeout, when present, replaces defaultTimeout; a request
// level timeout overrides both.
func parseBatch(data []byte, defaultTimeout time.Duration) ([]correlator.Request, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not JSON", errInvalidScript)
	}

	root := gjson.ParseBytes(data)
	timeout, err := durationField(root, "timeout", defaultTimeout)
	if err != nil {
		return nil, err
	}

	list := root.Get("requests")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: requests must be an array", errInvalidScript)
	}

	var reqs []correlator.Request
	list.ForEach(func(key, item gjson.Result) bool {
		var req correlator.Request
		if req, err = batchRequest(item, timeout); err != nil {
			err = fmt.Errorf("request %d: %w", key.Int(), err)
			return false
		}
		reqs = append(reqs, req)

		return true
	})
	if err != nil {
		return nil, err
	}

	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no requests", errInvalidScript)
	}

	return reqs, nil
}

func batchRequest(item gjson.Result, defaultTimeout time.Duration) (correlator.Request, error) {
	timeout, err := durationField(item, "timeout", defaultTimeout)
	if err != nil {
		return nil, err
	}

	slot := item.Get("slot").String()
	switch strings.ToLower(item.Get("op").String()) {
	case "get":
		req := akvs.NewGet(slot)
		req.Wait = timeout

		return validated(req)

	case "set":
		value := item.Get("value")
		if !value.Exists() {
			return nil, fmt.Errorf("%w: set without value", errInvalidScript)
		}
		req := akvs.NewSet(slot, value.String())
		req.Wait = timeout

		return validated(req)
	}

	return nil, fmt.Errorf("%w: unknown op %q", errInvalidScript, item.Get("op").String())
}

func validated(req akvs.Command) (correlator.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidScript, err)
	}

	return req, nil
}

func durationField(r gjson.Result, path string, def time.Duration) (time.Duration, error) {
	v := r.Get(path)
	if !v.Exists() {
		return def, nil
	}

	d, err := time.ParseDuration(v.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errInvalidScript, path, err)
	}

	return d, nil
}

// runBatch sends every request back to back and collects the outcomes in
// order into a JSON array.
func runBatch(ctx context.Context, d *driver.Driver[akvs.Reply], reqs []correlator.Request) (string, int, error) {
	start := time.Now()

	futures := make([]*driver.Future[akvs.Reply], 0, len(reqs))
	for _, req := range reqs {
		f, err := d.Send(ctx, req)
		if err != nil {
			return "", 0, err
		}
		futures = append(futures, f)
	}

	out := "[]"
	failed := 0
	for _, f := range futures {
		reply, rerr := f.Wait(ctx)
		if requestFailed(reply, rerr) != nil {
			failed++
		}

		item, err := resultJSON(f, reply, rerr, time.Since(start))
		if err != nil {
			return "", 0, err
		}
		if out, err = sjson.SetRaw(out, "-1", item); err != nil {
			return "", 0, err
		}
	}

	return out, failed, nil
}

func newBatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "batch [script.json]",
		Short: "Run a JSON script of requests back to back, reading stdin without a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			reqs, err := parseBatch(data, a.cfg.Timeout)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, err := a.openDriver(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Close()

			out, failed, err := runBatch(ctx, d, reqs)
			if err != nil {
				return err
			}
			if err := printLine(a.out, out); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(reqs))
			}

			return nil
		},
	}
}

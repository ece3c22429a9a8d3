package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/sjson"

	"github.com/arloliu/go-serialproto/driver"
	"github.com/arloliu/go-serialproto/internal/akvs"
)

// replyJSON renders a reply or event as a JSON object.
func replyJSON(r akvs.Reply) (string, error) {
	out, err := sjson.Set("{}", "kind", r.Kind.String())
	if err != nil {
		return "", err
	}

	switch r.Kind {
	case akvs.KindOK, akvs.KindNO:
		if out, err = sjson.Set(out, "slot", r.Slot); err != nil {
			return "", err
		}
		out, err = sjson.Set(out, "value", r.Value)
	case akvs.KindNOW:
		if out, err = sjson.Set(out, "A", r.A); err != nil {
			return "", err
		}
		out, err = sjson.Set(out, "B", r.B)
	}

	return out, err
}

// resultJSON renders the outcome of one request: the request, its ID, the
// elapsed time and either the reply or the error.
func resultJSON(f *driver.Future[akvs.Reply], reply akvs.Reply, rerr error, elapsed time.Duration) (string, error) {
	out, err := sjson.Set("{}", "request", fmt.Sprint(f.Request()))
	if err != nil {
		return "", err
	}
	if out, err = sjson.Set(out, "id", f.ID().String()); err != nil {
		return "", err
	}
	if out, err = sjson.Set(out, "elapsed_ms", elapsed.Milliseconds()); err != nil {
		return "", err
	}

	if rerr != nil {
		if out, err = sjson.Set(out, "error", rerr.Error()); err != nil {
			return "", err
		}

		var terr *driver.TimeoutError
		if errors.As(rerr, &terr) {
			out, err = sjson.Set(out, "timeout_ms", terr.Timeout.Milliseconds())
		}

		return out, err
	}

	r, err := replyJSON(reply)
	if err != nil {
		return "", err
	}

	return sjson.SetRaw(out, "reply", r)
}

// metricsJSON renders the driver counters.
func metricsJSON(m *driver.Metrics) (string, error) {
	fields := []struct {
		path  string
		value any
	}{
		{"requests.sent", m.RequestSendCount.Load()},
		{"requests.completed", m.RequestCompleteCount.Load()},
		{"requests.timed_out", m.RequestTimeoutCount.Load()},
		{"requests.failed", m.RequestErrCount.Load()},
		{"requests.inflight", m.RequestInflightCount.Load()},
		{"events", m.EventRecvCount.Load()},
		{"framing_errors", m.FramingErrCount.Load()},
		{"bytes.received", m.BytesRecvCount.Load()},
		{"bytes.sent", m.BytesSendCount.Load()},
		{"write_errors", m.WriteErrCount.Load()},
	}

	out := "{}"
	for _, f := range fields {
		var err error
		if out, err = sjson.Set(out, f.path, f.value); err != nil {
			return "", err
		}
	}

	return out, nil
}

func printLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}

// requestFailed reports whether an outcome should make the command fail.
func requestFailed(reply akvs.Reply, err error) error {
	if err != nil {
		return err
	}

	switch reply.Kind {
	case akvs.KindNO:
		return fmt.Errorf("appliance refused %s %s", reply.Slot, reply.Value)
	case akvs.KindBAD:
		return errors.New("appliance rejected the command")
	}

	return nil
}

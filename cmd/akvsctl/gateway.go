package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/arloliu/go-serialproto/correlator"
	"github.com/arloliu/go-serialproto/driver"
	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/logger"
)

const (
	defaultEventWait = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

type gateway struct {
	d   *driver.Driver[akvs.Reply]
	log logger.Logger

	timeout time.Duration
}

// newGatewayRouter exposes the driver over HTTP:
//
//	GET  /ping
//	GET  /slots/:slot           read a slot
//	PUT  /slots/:slot           write a slot, body {"value": "Z"}
//	GET  /events/next?wait=2s   next NOW broadcast
//	GET  /metrics               driver counters
func newGatewayRouter(d *driver.Driver[akvs.Reply], timeout time.Duration, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	g := &gateway{d: d, log: log, timeout: timeout}

	r := gin.New()
	r.Use(g.accessLog(), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.GET("/slots/:slot", g.getSlot)
	r.PUT("/slots/:slot", g.setSlot)
	r.GET("/events/next", g.nextEvent)
	r.GET("/metrics", g.metrics)

	return r
}

func (g *gateway) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		g.log.Info("gateway: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (g *gateway) getSlot(c *gin.Context) {
	slot, ok := g.slot(c)
	if !ok {
		return
	}

	req := akvs.NewGet(slot)
	req.Wait = g.timeout
	g.do(c, req)
}

func (g *gateway) setSlot(c *gin.Context) {
	slot, ok := g.slot(c)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		g.fail(c, http.StatusBadRequest, err)
		return
	}

	value := gjson.GetBytes(body, "value")
	if !value.Exists() {
		g.fail(c, http.StatusBadRequest, errors.New("body must carry a value"))
		return
	}

	req := akvs.NewSet(slot, value.String())
	req.Wait = g.timeout
	g.do(c, req)
}

func (g *gateway) nextEvent(c *gin.Context) {
	wait := defaultEventWait
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			g.fail(c, http.StatusBadRequest, err)
			return
		}
		wait = d
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	ev, err := g.d.NextEvent(ctx)
	if err != nil {
		g.fail(c, statusFor(err), err)
		return
	}

	out, err := replyJSON(ev)
	if err != nil {
		g.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(out))
}

func (g *gateway) metrics(c *gin.Context) {
	out, err := metricsJSON(g.d.Metrics())
	if err != nil {
		g.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(out))
}

func (g *gateway) slot(c *gin.Context) (string, bool) {
	slot := c.Param("slot")
	if slot != akvs.SlotA && slot != akvs.SlotB {
		g.fail(c, http.StatusNotFound, errors.New("unknown slot "+slot))
		return "", false
	}

	return slot, true
}

func (g *gateway) do(c *gin.Context, req akvs.Command) {
	if err := req.Validate(); err != nil {
		g.fail(c, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	ctx := c.Request.Context()

	f, err := g.d.Send(ctx, req)
	if err != nil {
		g.fail(c, statusFor(err), err)
		return
	}

	reply, rerr := f.Wait(ctx)
	out, err := resultJSON(f, reply, rerr, time.Since(start))
	if err != nil {
		g.fail(c, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusOK
	switch {
	case rerr != nil:
		status = statusFor(rerr)
	case reply.Kind == akvs.KindNO:
		status = http.StatusUnprocessableEntity
	case reply.Kind == akvs.KindBAD:
		status = http.StatusBadGateway
	}

	c.Data(status, "application/json", []byte(out))
}

func (g *gateway) fail(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, akvs.ErrInvalidRequest), errors.Is(err, correlator.ErrEmbeddedTerminator):
		return http.StatusBadRequest
	case errors.Is(err, driver.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, driver.ErrClosed), errors.Is(err, driver.ErrNotOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func newGatewayCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve the appliance over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			d, err := a.openDriver(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Close()

			s := &http.Server{
				Addr:              listen,
				Handler:           newGatewayRouter(d, a.cfg.Timeout, a.log),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			a.log.Info("gateway listening", "addr", listen, "appliance", a.cfg.Addr)

			select {
			case <-ctx.Done():
			case <-d.Done():
				a.log.Error("appliance connection lost")
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			return s.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:7780", "HTTP listen address")

	return cmd
}

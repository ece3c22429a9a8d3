package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/logger"
)

func serveHTTP(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestGateway_Slots(t *testing.T) {
	srv := startAppliance(t, akvs.ServerOptions{})
	router := newGatewayRouter(openTestDriver(t, srv), time.Second, logger.NewPermissiveMockLogger())

	rec := serveHTTP(t, router, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())

	rec = serveHTTP(t, router, http.MethodPut, "/slots/B", `{"value": "Q"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OK", gjson.Get(rec.Body.String(), "reply.kind").String())

	rec = serveHTTP(t, router, http.MethodGet, "/slots/B", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Q", gjson.Get(rec.Body.String(), "reply.value").String())
	assert.Equal(t, "GET B", gjson.Get(rec.Body.String(), "request").String())

	rec = serveHTTP(t, router, http.MethodPut, "/slots/A", `{"value": "lower"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NO", gjson.Get(rec.Body.String(), "reply.kind").String())
	assert.Equal(t, "A", srv.Simulator().Value(akvs.SlotA))

	rec = serveHTTP(t, router, http.MethodGet, "/slots/C", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serveHTTP(t, router, http.MethodPut, "/slots/A", `{"val": "Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveHTTP(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "requests.sent").Int())
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "requests.completed").Int())
}

func TestGateway_RejectsMultiCommandValue(t *testing.T) {
	srv := startAppliance(t, akvs.ServerOptions{})
	router := newGatewayRouter(openTestDriver(t, srv), time.Second, logger.NewPermissiveMockLogger())

	rec := serveHTTP(t, router, http.MethodPut, "/slots/A", `{"value": "Z\rSET B Q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request")

	// the next caller still gets the reply to its own request
	rec = serveHTTP(t, router, http.MethodGet, "/slots/A", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A", gjson.Get(rec.Body.String(), "reply.slot").String())
	assert.Equal(t, "A", gjson.Get(rec.Body.String(), "reply.value").String())
	assert.Equal(t, "A", srv.Simulator().Value(akvs.SlotB))
}

func TestGateway_Events(t *testing.T) {
	srv := startAppliance(t, akvs.ServerOptions{})
	router := newGatewayRouter(openTestDriver(t, srv), time.Second, logger.NewPermissiveMockLogger())

	// a request makes sure the server has registered the client
	rec := serveHTTP(t, router, http.MethodGet, "/slots/A", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serveHTTP(t, router, http.MethodGet, "/events/next?wait=10ms", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	srv.Broadcast()
	rec = serveHTTP(t, router, http.MethodGet, "/events/next?wait=5s", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"kind":"NOW","A":"A","B":"A"}`, rec.Body.String())

	rec = serveHTTP(t, router, http.MethodGet, "/events/next?wait=later", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateway_Timeout(t *testing.T) {
	srv := startAppliance(t, akvs.ServerOptions{ReplyDelay: 300 * time.Millisecond})
	router := newGatewayRouter(openTestDriver(t, srv), 20*time.Millisecond, logger.NewPermissiveMockLogger())

	rec := serveHTTP(t, router, http.MethodGet, "/slots/A", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, int64(20), gjson.Get(rec.Body.String(), "timeout_ms").Int())
}

package driver

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a Driver.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// RequestSendCount indicates the number of requests accepted by Send.
	RequestSendCount atomic.Uint64
	// RequestCompleteCount indicates the number of requests that got a reply.
	RequestCompleteCount atomic.Uint64
	// RequestTimeoutCount indicates the number of requests that timed out.
	RequestTimeoutCount atomic.Uint64
	// RequestErrCount indicates the number of requests failed by the driver,
	// for example on close.
	RequestErrCount atomic.Uint64
	// RequestInflightCount indicates the number of requests accepted and not
	// yet resolved, queued ones included.
	RequestInflightCount atomic.Int64

	// EventRecvCount indicates the number of unsolicited events received.
	EventRecvCount atomic.Uint64
	// FramingErrCount indicates the number of frames that could not be interpreted.
	FramingErrCount atomic.Uint64

	// BytesRecvCount indicates the number of bytes read from the stream.
	BytesRecvCount atomic.Uint64
	// BytesSendCount indicates the number of bytes written to the stream.
	BytesSendCount atomic.Uint64
	// WriteErrCount indicates the number of failed stream writes.
	WriteErrCount atomic.Uint64
}

func (m *Metrics) incRequestSendCount() {
	m.RequestSendCount.Add(1)
	m.RequestInflightCount.Add(1)
}

func (m *Metrics) decRequestSendCount() {
	m.RequestSendCount.Add(^uint64(0))
	m.RequestInflightCount.Add(-1)
}

func (m *Metrics) incRequestCompleteCount() {
	m.RequestCompleteCount.Add(1)
	m.RequestInflightCount.Add(-1)
}

func (m *Metrics) incRequestTimeoutCount() {
	m.RequestTimeoutCount.Add(1)
	m.RequestInflightCount.Add(-1)
}

func (m *Metrics) incRequestErrCount() {
	m.RequestErrCount.Add(1)
	m.RequestInflightCount.Add(-1)
}

func (m *Metrics) incEventRecvCount() {
	m.EventRecvCount.Add(1)
}

func (m *Metrics) incFramingErrCount() {
	m.FramingErrCount.Add(1)
}

func (m *Metrics) addBytesRecv(n int) {
	m.BytesRecvCount.Add(uint64(n)) //nolint:gosec // n comes from Read/Write and is never negative
}

func (m *Metrics) addBytesSend(n int) {
	m.BytesSendCount.Add(uint64(n)) //nolint:gosec // n comes from Read/Write and is never negative
}

func (m *Metrics) incWriteErrCount() {
	m.WriteErrCount.Add(1)
}

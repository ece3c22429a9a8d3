package driver

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-serialproto/correlator"
	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/logger"
)

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestDriver_Request(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	ctx := testContext(t)

	reply, err := d.Request(ctx, akvs.NewSet(akvs.SlotA, "Z"))
	require.NoError(t, err)
	assert.Equal(t, akvs.Reply{Kind: akvs.KindOK, Slot: "A", Value: "Z"}, reply)

	reply, err = d.Request(ctx, akvs.NewGet(akvs.SlotA))
	require.NoError(t, err)
	assert.Equal(t, "Z", reply.Value)

	assert.Equal(t, []string{"SET A Z\r", "GET A\r"}, dev.received())

	m := d.Metrics()
	assert.Equal(t, uint64(2), m.RequestSendCount.Load())
	assert.Equal(t, uint64(2), m.RequestCompleteCount.Load())
	assert.Zero(t, m.RequestInflightCount.Load())
	assert.Equal(t, uint64(len("SET A Z\rGET A\r")), m.BytesSendCount.Load())
	assert.Equal(t, uint64(len("OK A Z\rOK A Z\r")), m.BytesRecvCount.Load())
}

func TestDriver_TenRequestsInOrder(t *testing.T) {
	d, dev := newTestDriver(t, 2*time.Millisecond)
	ctx := testContext(t)

	var reqs []correlator.Request
	for i := 0; i < 5; i++ {
		reqs = append(reqs,
			akvs.NewSet(akvs.SlotB, string(rune('K'+i))),
			akvs.NewGet(akvs.SlotB),
		)
	}

	futures := make([]*Future[akvs.Reply], 0, len(reqs))
	for _, req := range reqs {
		f, err := d.Send(ctx, req)
		require.NoError(t, err)
		futures = append(futures, f)
	}

	var last akvs.Reply
	for i, f := range futures {
		reply, err := f.Wait(ctx)
		require.NoError(t, err, "request %d", i)
		assert.Same(t, reqs[i], f.Request())
		assert.NotEqual(t, correlator.NoRequest, f.ID())
		last = reply
	}

	assert.Equal(t, "O", last.Value)

	want := make([]string, 0, len(reqs))
	for _, req := range reqs {
		want = append(want, string(req.Bytes()))
	}
	assert.Equal(t, want, dev.received())
}

func TestDriver_ConcurrentSenders(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	ctx := testContext(t)

	const senders = 8
	const perSender = 10

	var wg sync.WaitGroup
	errs := make(chan error, senders*perSender)
	for j := 0; j < senders; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				reply, err := d.Request(ctx, akvs.NewGet(akvs.SlotA))
				if err == nil && reply.Kind != akvs.KindOK {
					err = errors.New("unexpected reply " + reply.String())
				}
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, dev.received(), senders*perSender)
}

func TestDriver_Timeout(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	dev.mute.Store(true)
	ctx := testContext(t)

	req := akvs.NewGet(akvs.SlotA)
	req.Wait = 20 * time.Millisecond

	f, err := d.Send(ctx, req)
	require.NoError(t, err)

	_, err = f.Wait(ctx)
	require.ErrorIs(t, err, ErrRequestTimeout)

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Same(t, req, terr.Request)
	assert.Equal(t, 20*time.Millisecond, terr.Timeout)
	assert.Equal(t, f.ID(), terr.ID)

	assert.Equal(t, uint64(1), d.Metrics().RequestTimeoutCount.Load())
	assert.Zero(t, d.Metrics().RequestInflightCount.Load())
}

func TestDriver_DefaultTimeout(t *testing.T) {
	d, dev := newTestDriver(t, 0, WithDefaultTimeout(20*time.Millisecond))
	dev.mute.Store(true)
	ctx := testContext(t)

	req := akvs.NewGet(akvs.SlotA)
	req.Wait = 0

	_, err := d.Request(ctx, req)
	require.ErrorIs(t, err, ErrRequestTimeout)
}

func TestDriver_TimeoutThenNextRequest(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	dev.mute.Store(true)
	ctx := testContext(t)

	first := akvs.NewSet(akvs.SlotA, "X")
	first.Wait = 20 * time.Millisecond
	f1, err := d.Send(ctx, first)
	require.NoError(t, err)

	// the device comes back before the second request is written
	_, err = f1.Wait(ctx)
	require.ErrorIs(t, err, ErrRequestTimeout)
	dev.mute.Store(false)

	reply, err := d.Request(ctx, akvs.NewGet(akvs.SlotA))
	require.NoError(t, err)
	// the muted device still applied the SET
	assert.Equal(t, "X", reply.Value)
}

func TestDriver_Events(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	ctx := testContext(t)

	require.NoError(t, dev.send(dev.sim.Broadcast()))

	ev, err := d.NextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, akvs.Reply{Kind: akvs.KindNOW, A: "A", B: "A"}, ev)

	require.NoError(t, dev.send([]byte("NOW A B B C\rNOW A D B E\r")))
	ev, err = d.NextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", ev.A)
	ev, err = d.NextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "D", ev.A)

	assert.Zero(t, d.EventCount())
	assert.Equal(t, uint64(3), d.Metrics().EventRecvCount.Load())

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = d.NextEvent(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDriver_EventDuringRequest(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	dev.mute.Store(true)
	ctx := testContext(t)

	f, err := d.Send(ctx, akvs.NewGet(akvs.SlotB))
	require.NoError(t, err)

	require.NoError(t, dev.send([]byte("NOW A A B A\rOK B A\r")))

	ev, err := d.NextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, akvs.KindNOW, ev.Kind)

	reply, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, akvs.KindOK, reply.Kind)
}

func TestDriver_FramingErrorSkipped(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	ctx := testContext(t)

	require.NoError(t, dev.send([]byte("garbage\rNOW A A B A\r")))

	ev, err := d.NextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, akvs.KindNOW, ev.Kind)
	assert.Equal(t, uint64(1), d.Metrics().FramingErrCount.Load())
	assert.Equal(t, OpenedState, d.State())
}

func TestDriver_StopOnFramingError(t *testing.T) {
	d, dev := newTestDriver(t, 0, WithStopOnFramingError(true))
	dev.mute.Store(true)
	ctx := testContext(t)

	f, err := d.Send(ctx, akvs.NewGet(akvs.SlotA))
	require.NoError(t, err)

	require.NoError(t, dev.send([]byte("garbage\r")))

	select {
	case <-d.Done():
	case <-ctx.Done():
		t.Fatal("driver did not close on framing error")
	}

	_, err = f.Wait(ctx)
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, ClosedState, d.State())
}

func TestDriver_CloseFailsOutstanding(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	dev.mute.Store(true)
	ctx := testContext(t)

	req := akvs.NewGet(akvs.SlotA)
	req.Wait = 0

	var futures []*Future[akvs.Reply]
	for j := 0; j < 3; j++ {
		f, err := d.Send(ctx, req)
		require.NoError(t, err)
		futures = append(futures, f)
	}

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	for _, f := range futures {
		_, ok, err := f.Result()
		require.True(t, ok)
		require.ErrorIs(t, err, ErrClosed)
	}
	assert.Equal(t, uint64(3), d.Metrics().RequestErrCount.Load())
	assert.Zero(t, d.Metrics().RequestInflightCount.Load())

	_, err := d.Send(ctx, req)
	require.ErrorIs(t, err, ErrClosed)

	_, err = d.NextEvent(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestDriver_PeerClose(t *testing.T) {
	d, dev := newTestDriver(t, 0)

	require.NoError(t, dev.conn.Close())

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not close after peer closed")
	}
	assert.Equal(t, ClosedState, d.State())
}

func TestDriver_EmbeddedTerminatorRejected(t *testing.T) {
	d, dev := newTestDriver(t, 0)
	ctx := testContext(t)

	_, err := d.Request(ctx, akvs.NewSet(akvs.SlotA, "Z\rSET B Q"))
	require.ErrorIs(t, err, correlator.ErrEmbeddedTerminator)

	reply, err := d.Request(ctx, akvs.NewGet(akvs.SlotA))
	require.NoError(t, err)
	assert.Equal(t, akvs.SlotA, reply.Slot)
	assert.Equal(t, "A", reply.Value)
	assert.Equal(t, []string{"GET A\r"}, dev.received())
	assert.Equal(t, uint64(1), d.Metrics().RequestErrCount.Load())
}

// brokenStream fails every read.
type brokenStream struct{}

func (brokenStream) Read([]byte) (int, error)    { return 0, io.ErrUnexpectedEOF }
func (brokenStream) Write(p []byte) (int, error) { return len(p), nil }
func (brokenStream) Close() error                { return nil }

func TestDriver_ReadFailsWhileOpening(t *testing.T) {
	for i := 0; i < 50; i++ {
		d, err := New[akvs.Reply](brokenStream{}, akvs.Parser{}, WithLogger(logger.NewPermissiveMockLogger()))
		require.NoError(t, err)

		err = d.Open()
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
		}

		select {
		case <-d.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: driver stayed %s without a reader", i, d.State())
		}
		assert.Equal(t, ClosedState, d.State())
	}
}

func TestDriver_SendWhileClosing(t *testing.T) {
	d, _ := newTestDriver(t, 0)

	// Close is past ToClosing but has not closed done yet
	d.state.Set(ClosingState)

	_, err := d.Send(testContext(t), akvs.NewGet(akvs.SlotA))
	require.ErrorIs(t, err, ErrClosed)

	d.state.Set(OpenedState)
}

func TestDriver_Lifecycle(t *testing.T) {
	local, _ := newPipe(t)

	d, err := New[akvs.Reply](local, akvs.Parser{}, WithLogger(logger.NewPermissiveMockLogger()))
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID())
	assert.Equal(t, ClosedState, d.State())

	_, err = d.Send(context.Background(), akvs.NewGet(akvs.SlotA))
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, d.Open())
	assert.Equal(t, OpenedState, d.State())
	require.ErrorIs(t, d.Open(), ErrAlreadyOpen)

	_, err = d.Send(context.Background(), nil)
	require.ErrorIs(t, err, correlator.ErrNilRequest)

	require.NoError(t, d.Close())
	assert.Equal(t, ClosedState, d.State())
}

func TestNew_Errors(t *testing.T) {
	_, err := New[akvs.Reply](nil, akvs.Parser{})
	require.ErrorIs(t, err, ErrNilStream)

	local, _ := newPipe(t)
	_, err = New[akvs.Reply](local, nil, WithLogger(logger.NewPermissiveMockLogger()))
	require.ErrorIs(t, err, correlator.ErrNilParser)

	_, err = New[akvs.Reply](local, akvs.Parser{}, WithReadBufferSize(0))
	require.Error(t, err)
}

package driver

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/logger"
)

// device plays the appliance on the remote end of a net.Pipe.
type device struct {
	conn  net.Conn
	sim   *akvs.Simulator
	delay time.Duration
	mute  atomic.Bool // apply commands but never reply

	mu       sync.Mutex
	commands []string
	done     chan struct{}
}

func newDevice(conn net.Conn, delay time.Duration) *device {
	dev := &device{conn: conn, sim: akvs.NewSimulator(), delay: delay, done: make(chan struct{})}
	go dev.run()

	return dev
}

func (dev *device) run() {
	defer close(dev.done)

	r := bufio.NewReader(dev.conn)
	for {
		line, err := r.ReadBytes(akvs.Terminator[0])
		if err != nil {
			return
		}

		dev.mu.Lock()
		dev.commands = append(dev.commands, string(line))
		dev.mu.Unlock()

		reply := dev.sim.Feed(line)
		if dev.mute.Load() {
			continue
		}

		if dev.delay > 0 {
			time.Sleep(dev.delay)
		}
		if err := dev.send(reply); err != nil {
			return
		}
	}
}

func (dev *device) send(p []byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	_, err := dev.conn.Write(p)

	return err
}

func (dev *device) received() []string {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	return append([]string(nil), dev.commands...)
}

// newTestDriver creates an opened driver wired to a simulated device.
func newTestDriver(t *testing.T, delay time.Duration, opts ...Option) (*Driver[akvs.Reply], *device) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	defaults := []Option{
		WithTerminator([]byte(akvs.Terminator)),
		WithLogger(logger.NewPermissiveMockLogger()),
		WithCloseTimeout(time.Second),
	}

	d, err := New[akvs.Reply](local, akvs.Parser{}, append(defaults, opts...)...)
	require.NoError(t, err)
	require.NoError(t, d.Open())
	t.Cleanup(func() { _ = d.Close() })

	return d, newDevice(remote, delay)
}

// newPipe creates a net.Pipe pair and registers cleanup.
func newPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return local, remote
}

// Package transport opens the byte streams a driver runs over.
//
// Three media are supported: serial ports (go.bug.st/serial), TCP and QUIC
// (github.com/quic-go/quic-go). Every dialer returns an io.ReadWriteCloser
// that can be handed to driver.New as is:
//
//	port, err := transport.OpenSerial(ctx, transport.SerialConfig{PortName: "/dev/ttyUSB0", BaudRate: 9600})
//	if err != nil {
//	    return err
//	}
//	d, err := driver.New[akvs.Reply](port, akvs.Parser{}, driver.WithTerminator([]byte("\r")))
//
// ListenTCP and ListenQUIC provide the server side through the Listener
// interface, which the appliance simulator uses to accept clients.
package transport

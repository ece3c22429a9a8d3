// Package driver runs a correlator over a live byte stream.
//
// A Driver owns an io.ReadWriteCloser such as a serial port or TCP
// connection. It reads the stream on one goroutine and funnels every call into
// the correlator (sends, received bytes and timer expiries) through a single
// loop goroutine, so the engine never sees concurrent access.
//
// Callers get a Future per request:
//
//	d, err := driver.New[akvs.Reply](conn, akvs.Parser{},
//	    driver.WithTerminator([]byte("\r")),
//	)
//	if err := d.Open(); err != nil { ... }
//	defer d.Close()
//
//	reply, err := d.Request(ctx, akvs.NewGet("A"))
//	if errors.Is(err, driver.ErrRequestTimeout) { ... }
//
// Unsolicited frames are queued and read with NextEvent.
//
// Framing errors are counted and logged, and the offending frame is skipped.
// With WithStopOnFramingError the driver closes instead.
package driver

// Package correlator implements the request/response engine for framed byte
// streams that carry no explicit per-message request identifier.
//
// The engine has two parts:
//   - FrameBuffer accumulates raw bytes and slices out terminator delimited
//     frames.
//   - Correlator keeps at most one request in flight, queues the rest in send
//     order, and hands every frame to a Parser together with the request it is
//     waiting on. The parser decides whether the frame answers that request or
//     is an unsolicited event.
//
// Timeouts are scheduled through a Scheduler, normally a *timing.Minder, so the
// same engine runs under a select loop, OS timer callbacks or virtual time.
//
// Neither type performs I/O or is safe for concurrent use. Every call into a
// Correlator (Send, ReceiveData and the minder's Run) must happen on one
// goroutine; the driver package shows how to serialize them.
//
// Basic usage:
//
//	minder, timer := timing.NewChanMinder()
//	c, err := correlator.New[Reply](minder, parser, delegate,
//	    correlator.WithTerminator([]byte("\r")),
//	    correlator.WithWriter(write),
//	)
//	...
//	id, err := c.Send(req, nil)
//	...
//	err = c.ReceiveData(buf[:n])
package correlator

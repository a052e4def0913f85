// Package transport owns the serial connection to one unit and pairs
// commands with replies.
//
// # Transport
//
// A Transport wraps any io.ReadWriteCloser. A reader goroutine feeds every
// byte to a protocol.Parser and hands each valid payload to a Handler.
// Writes are framed and serialized. OpenSerial opens a real port with
// go.bug.st/serial:
//
//	port, err := transport.OpenSerial("/dev/ttyACM0", transport.DefaultSerialConfig())
//
// # Correlator
//
// The protocol is half duplex: one request, then its replies. A Correlator
// enforces a single outstanding request per connection and routes every
// reply either to that request, to the subscriber registered for the
// reply's command, or nowhere.
//
//	c := transport.NewCorrelator(port,
//	    transport.WithTimeout(2*time.Second),
//	    transport.WithRetries(5),
//	)
//	defer c.Close()
//
//	// single reply, retried on timeout
//	reply, err := c.Request(ctx, protocol.CmdStatus, 0)
//
//	// multi-frame reply
//	x, err := c.Begin(ctx, protocol.CmdListFiles)
//	defer x.Close()
//	for {
//	    reply, err := x.Next(ctx, 5*time.Second)
//	    ...
//	}
//
// # Errors
//
// A reply that never arrives yields a *TimeoutError, which matches
// ErrTimeout. Issuing a request while another is outstanding yields
// ErrRequestPending.
package transport

// Package client is the consumer-facing surface of the gaze stream.
//
// A Client wraps a tcp.Manager. Connect performs the initial handshake
// synchronously and reports the outcome as a bool; everything after that
// (framing errors, dropped sockets, reconnects) is handled on the network
// goroutine and shows up only through IsConnected, State, Health and the
// record stream itself.
//
// Records reach the consumer through a Sink. With DeliveryPull (the default)
// the client owns a QueueSink and the consumer drains it with Next:
//
//	c, _ := client.New(client.Deps{})
//	defer c.Dispose()
//	if !c.Connect("127.0.0.1", 5555) {
//		return
//	}
//	for {
//		rec, err := c.Next(100 * time.Millisecond)
//		...
//	}
//
// With DeliveryPush, Deps.OnRecord runs on the network goroutine for every
// record and must not block. Additional sinks listed in Deps.Sinks receive
// every record in either mode.
package client

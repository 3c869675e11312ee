// Package websocket serves filtered eye-tracking state to local viewers over
// WebSocket.
//
// Output runs an HTTP server with a single upgrade endpoint. Every call to
// PublishState or Deliver wraps its payload in a MessageEnvelope and
// broadcasts it to all connected clients concurrently; a client that cannot
// accept a write within the write timeout is dropped.
//
//	out, err := websocket.NewOutput(websocket.Deps{
//		Config:          websocket.Config{Port: 8081, Path: "/ws"},
//		MetricsRegistry: registry,
//		Logger:          logger,
//	})
//	if err := out.Start(ctx); err != nil {
//		return err
//	}
//	defer out.Stop(5 * time.Second)
//
//	tracker, _ := tracking.NewTracker(tracking.Deps{OnUpdate: out.PublishState, ...})
//
// Envelope types are "state" for tracking.State snapshots and "record" for
// raw decoded records. Clients may send nothing; anything they do send is
// read and discarded so control frames (ping, pong, close) are processed.
package websocket

package tcp

import (
	"context"
	"net"

	"github.com/c360/gazestream/message"
)

// Sink receives decoded records on the network goroutine.
// Deliver must not block.
type Sink interface {
	Deliver(rec message.Record)
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

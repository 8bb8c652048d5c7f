// Package ws carries connections over WebSocket binary messages, for
// networks where only HTTP gets through.
package ws

import (
	"context"
	"fmt"
	"net"

	"github.com/coder/websocket"
)

// subprotocol is negotiated by both sides so unrelated WebSocket peers are
// turned away during the handshake.
const subprotocol = "msgsock"

// Dial performs the WebSocket handshake with ws://addr. ctx bounds the
// handshake only; the returned connection lives until closed.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	url := fmt.Sprintf("ws://%s/", addr)

	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket.Dial(%s): %w", url, err)
	}
	if c.Subprotocol() != subprotocol {
		_ = c.CloseNow()
		return nil, fmt.Errorf("websocket.Dial(%s): peer does not speak %s", url, subprotocol)
	}

	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}

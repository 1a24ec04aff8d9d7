package transport

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"

	"xrpchan/subprotocol"
)

// PeerConn is an outbound websocket connection to an upstream peer, used
// when this connector initiates the link rather than accepting one.
type PeerConn struct {
	AccountID string
	conn      *websocket.Conn
}

// Dial opens a peer connection to addr, tagging every frame it sends with
// accountID. The remote side's Server routes frames by the account query
// parameter of addr, not by that tag.
func Dial(ctx context.Context, addr, accountID string) (*PeerConn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &PeerConn{AccountID: accountID, conn: conn}, nil
}

// Close ends the connection with a normal-closure status.
func (p *PeerConn) Close() error {
	return p.conn.Close(websocket.StatusNormalClosure, "connection closed")
}

// Send writes a frame carrying protocols to the peer.
func (p *PeerConn) Send(ctx context.Context, peerAddress string, protocols []subprotocol.Data) error {
	data, err := encodeEnvelope(p.AccountID, peerAddress, "", protocols)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return p.conn.Write(writeCtx, websocket.MessageText, data)
}

// Recv blocks for the next frame from the peer and decodes it into a
// subprotocol.Message plus the peer address it claims.
func (p *PeerConn) Recv(ctx context.Context) (peerAddress string, msg subprotocol.Message, err error) {
	_, raw, err := p.conn.Read(ctx)
	if err != nil {
		return "", subprotocol.Message{}, err
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return "", subprotocol.Message{}, err
	}
	if env.Err != "" {
		return env.PeerAddress, subprotocol.Message{}, fmt.Errorf("transport: peer error: %s", env.Err)
	}
	return env.PeerAddress, subprotocol.Message{Protocols: fromWireData(env.Protocols)}, nil
}

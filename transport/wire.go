// Package transport carries subprotocol.Message frames between peers over a
// websocket connection, standing in for whatever RPC transport a live
// Interledger connector uses to move BTP/ILP-over-HTTP frames.
package transport

import (
	"encoding/json"

	"xrpchan/subprotocol"
)

// wireEnvelope is the on-the-wire JSON shape for a subprotocol.Message. The
// account and peer address travel alongside the protocol data because a
// websocket frame has no notion of "account" on its own.
type wireEnvelope struct {
	AccountID   string     `json:"accountId"`
	PeerAddress string     `json:"peerAddress"`
	Protocols   []wireData `json:"protocols"`
	RequestID   string     `json:"requestId,omitempty"`
	Err         string     `json:"error,omitempty"`
}

type wireData struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

func toWireData(protocols []subprotocol.Data) []wireData {
	out := make([]wireData, len(protocols))
	for i, p := range protocols {
		out[i] = wireData{Name: p.Name, ContentType: p.ContentType, Data: p.Data}
	}
	return out
}

func fromWireData(wire []wireData) []subprotocol.Data {
	out := make([]subprotocol.Data, len(wire))
	for i, w := range wire {
		out[i] = subprotocol.Data{Name: w.Name, ContentType: w.ContentType, Data: w.Data}
	}
	return out
}

func encodeEnvelope(accountID, peerAddress, requestID string, protocols []subprotocol.Data) ([]byte, error) {
	return json.Marshal(wireEnvelope{
		AccountID:   accountID,
		PeerAddress: peerAddress,
		RequestID:   requestID,
		Protocols:   toWireData(protocols),
	})
}

func decodeEnvelope(raw []byte) (wireEnvelope, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return wireEnvelope{}, err
	}
	return env, nil
}

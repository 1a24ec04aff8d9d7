package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xrpchan/subprotocol"
)

type stubRouter struct {
	handle func(ctx context.Context, accountID, peerFullAddress string, msg subprotocol.Message) ([]subprotocol.Data, error)
}

func (r stubRouter) HandleMessage(ctx context.Context, accountID, peerFullAddress string, msg subprotocol.Message) ([]subprotocol.Data, error) {
	return r.handle(ctx, accountID, peerFullAddress, msg)
}

func TestServerRoundTripsMessageThroughRouter(t *testing.T) {
	var gotAccount, gotPeer string
	router := stubRouter{handle: func(ctx context.Context, accountID, peerFullAddress string, msg subprotocol.Message) ([]subprotocol.Data, error) {
		gotAccount = accountID
		gotPeer = peerFullAddress
		if _, ok := msg.Get(subprotocol.NameInfo); !ok {
			t.Fatalf("expected info protocol in message")
		}
		return []subprotocol.Data{{Name: subprotocol.NameInfo, Data: []byte(`{"clientDeviceType":"paychan"}`)}}, nil
	}}
	srv := &Server{Router: router}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := "ws" + strings.TrimPrefix(ts.URL, "http") + "?account=peer1"
	conn, err := Dial(ctx, addr, "peer1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, "test.peer1", []subprotocol.Data{{Name: subprotocol.NameInfo}}); err != nil {
		t.Fatalf("send: %v", err)
	}

	peerAddress, msg, err := conn.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if peerAddress != "" {
		t.Fatalf("expected server reply to omit peer address, got %q", peerAddress)
	}
	if _, ok := msg.Get(subprotocol.NameInfo); !ok {
		t.Fatalf("expected info reply, got %+v", msg)
	}
	if gotAccount != "peer1" || gotPeer != "test.peer1" {
		t.Fatalf("router saw account=%q peer=%q", gotAccount, gotPeer)
	}
}

func TestServerSendDeliversToConnectedPeer(t *testing.T) {
	router := stubRouter{handle: func(ctx context.Context, accountID, peerFullAddress string, msg subprotocol.Message) ([]subprotocol.Data, error) {
		return []subprotocol.Data{{Name: subprotocol.NameInfo}}, nil
	}}
	srv := &Server{Router: router}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := "ws" + strings.TrimPrefix(ts.URL, "http") + "?account=peer1"
	conn, err := Dial(ctx, addr, "peer1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A first frame registers the connection with the server and gets an
	// immediate reply.
	if err := conn.Send(ctx, "test.peer1", []subprotocol.Data{{Name: subprotocol.NameInfo}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, _, err := conn.Recv(ctx); err != nil {
		t.Fatalf("recv initial reply: %v", err)
	}

	if err := srv.Send(ctx, "peer1", []subprotocol.Data{{Name: subprotocol.NameLastClaim, Data: []byte(`{"amount":"0"}`)}}); err != nil {
		t.Fatalf("Server.Send: %v", err)
	}

	_, msg, err := conn.Recv(ctx)
	if err != nil {
		t.Fatalf("recv out-of-band frame: %v", err)
	}
	if _, ok := msg.Get(subprotocol.NameLastClaim); !ok {
		t.Fatalf("expected out-of-band last_claim frame, got %+v", msg)
	}
}

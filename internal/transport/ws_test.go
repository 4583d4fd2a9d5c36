package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/borderland-games/arena/pkg/wire"
)

// newWSPeer stands up one peer: a real listener with the data and call
// endpoints mounted, and a WS session advertising that listener.
func newWSPeer(t *testing.T) *WS {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ws := NewWS(strings.TrimPrefix(srv.URL, "http://"), zap.NewNop())
	mux.HandleFunc("/ws", ws.AcceptData)
	mux.HandleFunc("/call", ws.AcceptCall)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWS_OpenNeedsAdvertiseAddr(t *testing.T) {
	ws := NewWS("", zap.NewNop())
	_, err := ws.Open(context.Background(), true, nil)
	require.ErrorIs(t, err, ErrNoIdentity)
}

func TestAddrOf(t *testing.T) {
	require.Equal(t, "10.0.0.1:8080", AddrOf("abc@10.0.0.1:8080"))
	require.Equal(t, "", AddrOf("no-address-here"))
}

func TestWS_JoinAndBroadcastRoundTrip(t *testing.T) {
	ctx := context.Background()
	host := newWSPeer(t)
	client := newWSPeer(t)

	hostID, err := host.Open(ctx, true, nil)
	require.NoError(t, err)
	clientID, err := client.Open(ctx, false, nil)
	require.NoError(t, err)
	require.Contains(t, hostID, "@", "identity carries the dial address")

	join := wire.New(wire.TypeJoin, map[string]string{"id": "p1"})
	require.NoError(t, client.ConnectToHost(ctx, hostID, join))

	ev := recvEvent(t, host)
	require.Equal(t, EventMessage, ev.Kind)
	require.Equal(t, clientID, ev.Peer)
	require.Equal(t, wire.TypeJoin, ev.Msg.Type)

	host.Broadcast(wire.TypeStateUpdate, map[string]string{"phase": "LOBBY"})
	ev = recvEvent(t, client)
	require.Equal(t, EventMessage, ev.Kind)
	require.Equal(t, hostID, ev.Peer)
	require.Equal(t, wire.TypeStateUpdate, ev.Msg.Type)
}

func TestWS_ConnectToUnreachableHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := newWSPeer(t)
	_, err := client.Open(ctx, false, nil)
	require.NoError(t, err)

	err = client.ConnectToHost(ctx, "abc@127.0.0.1:1", wire.Message{})
	require.ErrorIs(t, err, ErrHostUnreachable)

	err = client.ConnectToHost(ctx, "identity-without-address", wire.Message{})
	require.ErrorIs(t, err, ErrHostUnreachable)
}

func TestWS_DisconnectNotifiesHost(t *testing.T) {
	ctx := context.Background()
	host := newWSPeer(t)
	client := newWSPeer(t)

	hostID, err := host.Open(ctx, true, nil)
	require.NoError(t, err)
	clientID, err := client.Open(ctx, false, nil)
	require.NoError(t, err)

	require.NoError(t, client.ConnectToHost(ctx, hostID, wire.New(wire.TypeJoin, nil)))
	recvEvent(t, host) // drain the join

	require.NoError(t, client.Close())

	ev := recvEvent(t, host)
	require.Equal(t, EventPeerDisconnected, ev.Kind)
	require.Equal(t, clientID, ev.Peer)
}

// A peer can accept TCP but never answer the websocket handshake (NAT
// half-open, crashed browser). CallPeer must hand the dial off and
// return, or a mesh pass would freeze the calling session actor.
func TestWS_CallToSilentPeerReturnsImmediately(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	var (
		mu   sync.Mutex
		held []net.Conn
	)
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn) // hold the socket open, never respond
			mu.Unlock()
		}
	}()

	caller := newWSPeer(t)
	_, err = caller.Open(context.Background(), false, nil)
	require.NoError(t, err)

	returned := make(chan struct{})
	go func() {
		caller.CallPeer("abc@" + ln.Addr().String())
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("CallPeer blocked on a peer that never completes the handshake")
	}
}

func TestWS_CallCarriesMediaFrames(t *testing.T) {
	ctx := context.Background()
	caller := newWSPeer(t)
	callee := newWSPeer(t)

	feed, frames := NewFeedStream("camera")
	_, err := caller.Open(ctx, false, feed)
	require.NoError(t, err)
	calleeID, err := callee.Open(ctx, false, nil)
	require.NoError(t, err)

	caller.CallPeer(calleeID)

	got := recvEvent(t, callee)
	require.Equal(t, EventStream, got.Kind)
	require.NotNil(t, got.Stream)

	answer := recvEvent(t, caller)
	require.Equal(t, EventStream, answer.Kind)
	require.Equal(t, calleeID, answer.Peer)
	require.True(t, caller.HasCall(calleeID))

	frames <- []byte("frame-1")
	select {
	case frame := <-got.Stream.Frames():
		require.Equal(t, []byte("frame-1"), frame)
	case <-time.After(2 * time.Second):
		t.Fatal("media frame never crossed the call")
	}
}

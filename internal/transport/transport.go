// Package transport owns one peer's reliable data channels and media
// calls to every other peer in a session, and translates connection
// lifecycle and inbound payloads into a typed event stream.
//
// Two implementations exist: a websocket one for real sessions, where a
// peer identity embeds the peer's dialable address, and an in-memory one
// so protocol tests run whole meshes without sockets.
package transport

import (
	"context"
	"errors"

	"github.com/borderland-games/arena/pkg/wire"
)

var (
	// ErrNoIdentity means the transport could not allocate a routable
	// identity. Fatal to the create/join flow.
	ErrNoIdentity = errors.New("transport: cannot allocate peer identity")
	// ErrClosed means the session was already torn down.
	ErrClosed = errors.New("transport: session closed")
	// ErrHostUnreachable means the host did not accept our connection.
	ErrHostUnreachable = errors.New("transport: host unreachable")
)

// EventKind discriminates transport events.
type EventKind int

const (
	// EventMessage is an inbound wire message on any data channel.
	EventMessage EventKind = iota
	// EventStream is a remote media stream arriving from a call.
	EventStream
	// EventPeerDisconnected is a data channel going away.
	EventPeerDisconnected
	// EventError is a transport error; Fatal marks session-ending ones.
	EventError
)

// Event is one item on a session's event stream. Errors travel here too:
// they are never thrown across the dispatch boundary.
type Event struct {
	Kind   EventKind
	Peer   string
	Msg    wire.Message
	Stream MediaStream
	Err    error
	Fatal  bool
}

// Session is one peer's view of the session transport.
//
// Identities are opaque session-unique strings allocated once per Open
// and never reused. By convention the lexicographically greater identity
// initiates the media call to the lesser one.
type Session interface {
	// Open allocates this peer's identity. Calling twice without Close
	// in between is forbidden.
	Open(ctx context.Context, isHost bool, localMedia MediaStream) (string, error)

	// ID returns the identity allocated by Open, or "" before Open and
	// after Close.
	ID() string

	IsHost() bool

	// ConnectToHost opens the reliable channel to the host and delivers
	// join on open. Dial failures are returned directly; later drops
	// arrive as EventPeerDisconnected.
	ConnectToHost(ctx context.Context, hostID string, join wire.Message) error

	// Send delivers msg over this peer's open channels: a client has
	// exactly one (to the host), the host has one per client.
	Send(msg wire.Message)

	// Broadcast is the host-only fan-out. A non-host calling it is a
	// no-op, so accidental echo cannot occur.
	Broadcast(t wire.Type, payload any)

	// CallPeer opens a media call using local media, or a placeholder
	// stream when none was supplied. Calling a peer already in-call is
	// a no-op. Incoming calls are auto-answered the same way.
	CallPeer(peer string)

	// HasCall reports whether a call to peer is already tracked.
	HasCall(peer string) bool

	// Events delivers inbound messages, stream arrivals, disconnects
	// and errors.
	Events() <-chan Event

	// Close releases every channel and call and resets identity and
	// host flag. Safe to call repeatedly.
	Close() error
}

package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/borderland-games/arena/pkg/wire"
)

// Network is an in-process switchboard between MemorySessions. It plays
// the role the real network does for the websocket transport, so protocol
// and mesh tests can run a whole session without sockets.
type Network struct {
	mu       sync.Mutex
	sessions map[string]*MemorySession
}

// NewNetwork returns an empty switchboard.
func NewNetwork() *Network {
	return &Network{sessions: map[string]*MemorySession{}}
}

// NewSession returns an unopened session attached to this network.
func NewSession(n *Network) *MemorySession {
	return &MemorySession{net: n, events: make(chan Event, 256)}
}

// NewSessionWithID pins the identity the next Open will allocate. Tests
// use it to force tie-break orderings.
func NewSessionWithID(n *Network, id string) *MemorySession {
	s := NewSession(n)
	s.presetID = id
	return s
}

// MemorySession implements Session over a Network.
type MemorySession struct {
	net      *Network
	presetID string

	mu     sync.Mutex
	id     string
	isHost bool
	local  MediaStream
	conns  map[string]bool
	calls  map[string]bool
	events chan Event
	closed bool
}

func (s *MemorySession) Open(_ context.Context, isHost bool, localMedia MediaStream) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	id := s.presetID
	if id == "" {
		id = uuid.NewString()
	}
	s.id = id
	s.isHost = isHost
	s.local = localMedia
	s.conns = map[string]bool{}
	s.calls = map[string]bool{}

	s.net.mu.Lock()
	s.net.sessions[id] = s
	s.net.mu.Unlock()
	return id, nil
}

func (s *MemorySession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *MemorySession) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

func (s *MemorySession) Events() <-chan Event { return s.events }

func (s *MemorySession) ConnectToHost(_ context.Context, hostID string, join wire.Message) error {
	s.net.mu.Lock()
	host := s.net.sessions[hostID]
	s.net.mu.Unlock()
	if host == nil {
		return ErrHostUnreachable
	}

	s.mu.Lock()
	self := s.id
	s.conns[hostID] = true
	s.mu.Unlock()

	host.mu.Lock()
	host.conns[self] = true
	host.mu.Unlock()

	host.deliver(Event{Kind: EventMessage, Peer: self, Msg: join})
	return nil
}

func (s *MemorySession) Send(msg wire.Message) {
	s.mu.Lock()
	self := s.id
	targets := make([]string, 0, len(s.conns))
	for id := range s.conns {
		targets = append(targets, id)
	}
	s.mu.Unlock()

	for _, id := range targets {
		if peer := s.lookup(id); peer != nil {
			peer.deliver(Event{Kind: EventMessage, Peer: self, Msg: msg})
		}
	}
}

func (s *MemorySession) Broadcast(t wire.Type, payload any) {
	if !s.IsHost() {
		return
	}
	s.Send(wire.New(t, payload))
}

func (s *MemorySession) CallPeer(peerID string) {
	s.mu.Lock()
	if s.closed || s.calls[peerID] {
		s.mu.Unlock()
		return
	}
	s.calls[peerID] = true
	outbound := s.local
	if outbound == nil {
		outbound = NewPlaceholderStream()
	}
	self := s.id
	s.mu.Unlock()

	peer := s.lookup(peerID)
	if peer == nil {
		return
	}

	// Auto-answer on the callee side: both ends track the call and see
	// the other's stream arrive.
	peer.mu.Lock()
	peer.calls[self] = true
	answer := peer.local
	if answer == nil {
		answer = NewPlaceholderStream()
	}
	peer.mu.Unlock()

	peer.deliver(Event{Kind: EventStream, Peer: self, Stream: outbound})
	s.deliver(Event{Kind: EventStream, Peer: peerID, Stream: answer})
}

func (s *MemorySession) HasCall(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[peerID]
}

func (s *MemorySession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	self := s.id
	s.id = ""
	s.isHost = false
	targets := make([]string, 0, len(s.conns))
	for id := range s.conns {
		targets = append(targets, id)
	}
	s.conns = map[string]bool{}
	s.calls = map[string]bool{}
	s.mu.Unlock()

	s.net.mu.Lock()
	delete(s.net.sessions, self)
	s.net.mu.Unlock()

	for _, id := range targets {
		peer := s.lookup(id)
		if peer == nil {
			continue
		}
		peer.mu.Lock()
		delete(peer.conns, self)
		delete(peer.calls, self)
		peer.mu.Unlock()
		peer.deliver(Event{Kind: EventPeerDisconnected, Peer: self})
	}
	return nil
}

func (s *MemorySession) lookup(id string) *MemorySession {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return s.net.sessions[id]
}

// deliver never blocks; a receiver that stopped draining its events
// loses the event, the same slow-consumer rule the session layer uses.
func (s *MemorySession) deliver(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

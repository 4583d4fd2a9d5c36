package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/borderland-games/arena/pkg/wire"
)

const (
	writeTimeout = 3 * time.Second
	dialTimeout  = 5 * time.Second
)

// WS is the websocket-backed Session. A peer identity is
// "<uuid>@<host:port>", so the identity alone is enough to dial the peer:
// the data channel lives at /ws on that address and media calls at /call.
// The uuid prefix keeps identities unique and gives the mesh tie-break a
// total order even when two peers share an address.
type WS struct {
	log       *zap.Logger
	advertise string

	mu     sync.Mutex
	id     string
	isHost bool
	local  MediaStream
	conns  map[string]*wsConn
	calls  map[string]*wsCall
	closed bool

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWS returns an unopened websocket session that will advertise addr
// (host:port reachable by other peers) inside its identity.
func NewWS(addr string, log *zap.Logger) *WS {
	return &WS{
		log:       log,
		advertise: addr,
		events:    make(chan Event, 256),
	}
}

// AddrOf extracts the dialable address from a peer identity.
func AddrOf(identity string) string {
	if i := strings.LastIndex(identity, "@"); i >= 0 {
		return identity[i+1:]
	}
	return ""
}

func (s *WS) Open(ctx context.Context, isHost bool, localMedia MediaStream) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if s.advertise == "" {
		return "", fmt.Errorf("%w: no advertise address", ErrNoIdentity)
	}
	s.id = uuid.NewString() + "@" + s.advertise
	s.isHost = isHost
	s.local = localMedia
	s.conns = map[string]*wsConn{}
	s.calls = map[string]*wsCall{}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s.id, nil
}

func (s *WS) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *WS) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

func (s *WS) Events() <-chan Event { return s.events }

func (s *WS) ConnectToHost(ctx context.Context, hostID string, join wire.Message) error {
	addr := AddrOf(hostID)
	if addr == "" {
		return fmt.Errorf("%w: identity %q has no address", ErrHostUnreachable, hostID)
	}
	dialURL := "ws://" + addr + "/ws?from=" + url.QueryEscape(s.ID())
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHostUnreachable, err)
	}
	c := s.addConn(hostID, conn)
	go s.readData(c)
	if err := c.write(s.ctx, join); err != nil {
		s.dropPeer(hostID)
		return fmt.Errorf("%w: join not delivered: %v", ErrHostUnreachable, err)
	}
	return nil
}

// AcceptData upgrades an inbound data-channel request. The httpapi layer
// mounts this at GET /ws.
func (s *WS) AcceptData(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		http.Error(w, "missing from", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := s.addConn(from, conn)
	s.readData(c)
}

func (s *WS) Send(msg wire.Message) {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	for _, c := range conns {
		if err := c.write(ctx, msg); err != nil {
			s.log.Warn("send failed", zap.String("peer", c.peer), zap.Error(err))
		}
	}
}

func (s *WS) Broadcast(t wire.Type, payload any) {
	if !s.IsHost() {
		return
	}
	s.Send(wire.New(t, payload))
}

func (s *WS) HasCall(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[peer] != nil
}

func (s *WS) CallPeer(peer string) {
	s.mu.Lock()
	if s.closed || s.calls[peer] != nil {
		s.mu.Unlock()
		return
	}
	ctx, self := s.ctx, s.id
	s.mu.Unlock()

	addr := AddrOf(peer)
	if addr == "" {
		s.deliver(Event{Kind: EventError, Peer: peer, Err: fmt.Errorf("call: identity %q has no address", peer)})
		return
	}
	dialURL := "ws://" + addr + "/call?from=" + url.QueryEscape(self)
	// The session actor invokes CallPeer inline during a mesh pass, so
	// the dial runs off this goroutine with a deadline: a peer that
	// accepts TCP but never finishes the handshake must not stall
	// message dispatch.
	go func() {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		conn, _, err := websocket.Dial(dctx, dialURL, nil)
		if err != nil {
			// One failed call is recoverable: the session continues
			// without that peer's video.
			s.deliver(Event{Kind: EventError, Peer: peer, Err: err})
			return
		}
		if s.startCall(peer, conn) == nil {
			conn.Close(websocket.StatusNormalClosure, "duplicate call")
		}
	}()
}

// AcceptCall answers an inbound media call with local media or a
// placeholder. Unconditional: joining a room implies consent.
func (s *WS) AcceptCall(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		http.Error(w, "missing from", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	call := s.startCall(from, conn)
	if call == nil {
		conn.Close(websocket.StatusPolicyViolation, "duplicate call")
		return
	}
	// Hold the handler open for the life of the call.
	<-call.done
}

func (s *WS) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.id = ""
	s.isHost = false
	conns, calls := s.conns, s.calls
	s.conns, s.calls = map[string]*wsConn{}, map[string]*wsCall{}
	cancel := s.cancel
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}
	for _, call := range calls {
		call.close()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *WS) addConn(peer string, conn *websocket.Conn) *wsConn {
	c := &wsConn{peer: peer, conn: conn}
	s.mu.Lock()
	if old := s.conns[peer]; old != nil {
		old.conn.Close(websocket.StatusNormalClosure, "superseded")
	}
	s.conns[peer] = c
	s.mu.Unlock()
	return c
}

func (s *WS) readData(c *wsConn) {
	for {
		_, data, err := c.conn.Read(s.ctx)
		if err != nil {
			s.dropPeer(c.peer)
			return
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frames are dropped, never crash dispatch.
			s.log.Warn("bad frame", zap.String("peer", c.peer), zap.Error(err))
			continue
		}
		s.deliver(Event{Kind: EventMessage, Peer: c.peer, Msg: msg})
	}
}

func (s *WS) dropPeer(peer string) {
	s.mu.Lock()
	c := s.conns[peer]
	delete(s.conns, peer)
	call := s.calls[peer]
	delete(s.calls, peer)
	closed := s.closed
	s.mu.Unlock()

	if c != nil {
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if call != nil {
		call.close()
	}
	if c != nil && !closed {
		s.deliver(Event{Kind: EventPeerDisconnected, Peer: peer})
	}
}

// startCall wires both directions of a media call and announces the
// remote stream. Returns nil when a call to peer already exists.
func (s *WS) startCall(peer string, conn *websocket.Conn) *wsCall {
	s.mu.Lock()
	if s.closed || s.calls[peer] != nil {
		s.mu.Unlock()
		return nil
	}
	outbound := s.local
	if outbound == nil {
		outbound = NewPlaceholderStream()
	}
	remote, feed := NewFeedStream("remote:" + peer)
	call := &wsCall{peer: peer, conn: conn, done: make(chan struct{})}
	s.calls[peer] = call
	ctx := s.ctx
	s.mu.Unlock()

	// Outbound pump: local frames to the peer.
	go func() {
		for frame := range outbound.Frames() {
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	// Inbound pump: peer frames into the remote stream handle.
	go func() {
		defer call.close()
		for {
			_, frame, err := conn.Read(ctx)
			if err != nil {
				s.mu.Lock()
				if s.calls[peer] == call {
					delete(s.calls, peer)
				}
				s.mu.Unlock()
				return
			}
			select {
			case feed <- frame:
			default: // viewer is behind; media frames are droppable
			}
		}
	}()

	s.deliver(Event{Kind: EventStream, Peer: peer, Stream: remote})
	return call
}

func (s *WS) deliver(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

type wsConn struct {
	peer string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(ctx context.Context, msg wire.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

type wsCall struct {
	peer string
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

func (c *wsCall) close() {
	c.once.Do(func() {
		c.conn.Close(websocket.StatusNormalClosure, "bye")
		close(c.done)
	})
}

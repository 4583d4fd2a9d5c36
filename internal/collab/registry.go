package collab

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RoomStatus is a room's lifecycle in the directory.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomEnded   RoomStatus = "ended"
)

// RoomRecord advertises one open room. RoomID doubles as the host's
// transport identity, so a record alone is enough to join.
type RoomRecord struct {
	RoomID         string     `gorm:"primaryKey" json:"roomId"`
	HostPeerID     string     `json:"hostPeerId"`
	HostName       string     `json:"hostName"`
	Status         RoomStatus `json:"status"`
	PlayerCount    int        `json:"playerCount"`
	Capacity       int        `json:"capacity"`
	BuyIn          float64    `json:"buyIn"`
	DiscussionTime int        `json:"discussionTime,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// RosterUpdate is the subset of a record the host refreshes as players
// come and go. Status empty means leave it unchanged.
type RosterUpdate struct {
	PlayerCount int
	Status      RoomStatus
}

// Registry is the room discovery directory. Every call is best-effort:
// failures are logged by the caller and never block gameplay; a dead
// registry only makes rooms undiscoverable, direct-invite joins still
// work.
type Registry interface {
	Register(ctx context.Context, rec RoomRecord) error
	UpdateStatus(ctx context.Context, roomID string, status RoomStatus) error
	UpdateRoster(ctx context.Context, roomID string, up RosterUpdate) error
	Get(ctx context.Context, roomID string) (*RoomRecord, error)
	List(ctx context.Context, status RoomStatus) ([]RoomRecord, error)
	// Subscribe invokes fn with the matching rooms now and after every
	// change. The returned func cancels the subscription.
	Subscribe(status RoomStatus, fn func([]RoomRecord)) (func(), error)
}

// MemoryRegistry keeps rooms in a map. Default for tests and for hosts
// running without a directory database.
type MemoryRegistry struct {
	mu    sync.Mutex
	rooms map[string]RoomRecord
	subs  map[int]memorySub
	next  int
}

type memorySub struct {
	status RoomStatus
	fn     func([]RoomRecord)
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{rooms: map[string]RoomRecord{}, subs: map[int]memorySub{}}
}

func (r *MemoryRegistry) Register(_ context.Context, rec RoomRecord) error {
	r.mu.Lock()
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	r.rooms[rec.RoomID] = rec
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *MemoryRegistry) UpdateStatus(_ context.Context, roomID string, status RoomStatus) error {
	r.mu.Lock()
	if rec, ok := r.rooms[roomID]; ok {
		rec.Status = status
		rec.UpdatedAt = time.Now()
		r.rooms[roomID] = rec
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *MemoryRegistry) UpdateRoster(_ context.Context, roomID string, up RosterUpdate) error {
	r.mu.Lock()
	if rec, ok := r.rooms[roomID]; ok {
		rec.PlayerCount = up.PlayerCount
		if up.Status != "" {
			rec.Status = up.Status
		}
		rec.UpdatedAt = time.Now()
		r.rooms[roomID] = rec
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, roomID string) (*RoomRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rooms[roomID]; ok {
		out := rec
		return &out, nil
	}
	return nil, nil
}

func (r *MemoryRegistry) List(_ context.Context, status RoomStatus) ([]RoomRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(status), nil
}

func (r *MemoryRegistry) Subscribe(status RoomStatus, fn func([]RoomRecord)) (func(), error) {
	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[id] = memorySub{status: status, fn: fn}
	initial := r.snapshot(status)
	r.mu.Unlock()

	fn(initial)
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}, nil
}

// snapshot returns matching rooms, most recently touched first. Callers
// must hold r.mu.
func (r *MemoryRegistry) snapshot(status RoomStatus) []RoomRecord {
	out := make([]RoomRecord, 0, len(r.rooms))
	for _, rec := range r.rooms {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (r *MemoryRegistry) notify() {
	r.mu.Lock()
	subs := make([]memorySub, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		r.mu.Lock()
		rooms := r.snapshot(s.status)
		r.mu.Unlock()
		s.fn(rooms)
	}
}

package transport

import "sync"

// MediaStream is an opaque handle to a live audio/video feed. The session
// layer never inspects frames; it only routes streams between peers.
type MediaStream interface {
	// Label names the stream's origin ("camera", "placeholder", ...).
	Label() string
	// Frames yields opaque media frames. The channel closes when the
	// stream ends.
	Frames() <-chan []byte
	Close() error
}

type chanStream struct {
	label  string
	frames chan []byte
	once   sync.Once
}

func (s *chanStream) Label() string         { return s.label }
func (s *chanStream) Frames() <-chan []byte { return s.frames }
func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.frames) })
	return nil
}

// NewPlaceholderStream returns a muted, blank stream. Spectators and
// audio-less peers answer calls with it so peer symmetry holds.
func NewPlaceholderStream() MediaStream {
	return &chanStream{label: "placeholder", frames: make(chan []byte)}
}

// NewFeedStream returns a stream whose frames the caller pushes. The
// media source collaborator uses this to hand device output to the mesh.
func NewFeedStream(label string) (MediaStream, chan<- []byte) {
	s := &chanStream{label: label, frames: make(chan []byte, 16)}
	return s, s.frames
}

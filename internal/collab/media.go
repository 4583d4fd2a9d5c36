package collab

import (
	"context"
	"errors"

	"github.com/borderland-games/arena/internal/transport"
)

// ErrPermissionDenied means the user refused the device prompt. Callers
// block entry into play that requires video but still allow spectating.
var ErrPermissionDenied = errors.New("media: permission denied")

// MediaSource acquires the local audio/video feed. Acquisition is
// user-permission-bound and may hang until the user responds, so callers
// pass a context they are willing to wait on.
type MediaSource interface {
	Acquire(ctx context.Context) (transport.MediaStream, error)
}

// DeviceSource stands in for a real capture device: it hands out a feed
// stream the process pushes frames into.
type DeviceSource struct {
	Label string
}

func (d DeviceSource) Acquire(context.Context) (transport.MediaStream, error) {
	label := d.Label
	if label == "" {
		label = "camera"
	}
	stream, _ := transport.NewFeedStream(label)
	return stream, nil
}

// DeniedSource always refuses, for exercising the spectate-only path.
type DeniedSource struct{}

func (DeniedSource) Acquire(context.Context) (transport.MediaStream, error) {
	return nil, ErrPermissionDenied
}

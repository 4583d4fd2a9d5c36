package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/borderland-games/arena/internal/collab"
	"github.com/borderland-games/arena/internal/transport"
)

// Deps is what a peer's HTTP surface needs: the websocket transport to
// accept data channels and media calls into, plus the room directory.
type Deps struct {
	WS       *transport.WS
	Registry collab.Registry
	BaseURL  string
	Log      *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", d.WS.AcceptData)
	r.Get("/call", d.WS.AcceptCall)
	r.Get("/rooms", ListRooms(d))
	r.Get("/invite", InviteQR(d))
	r.Get("/healthz", Healthz)
	return r
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/borderland-games/arena/internal/collab"
)

// ListRooms serves the open-room directory. A dead registry degrades to
// an empty list; direct-invite joins don't need it.
func ListRooms(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := collab.RoomStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = collab.RoomWaiting
		}
		rooms, err := d.Registry.List(r.Context(), status)
		if err != nil {
			d.Log.Warn("room listing failed", zap.Error(err))
			rooms = []collab.RoomRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rooms)
	}
}

// InviteQR renders an invite link for a room as a QR PNG. The link is
// just the base URL with the host identity as a query parameter; the
// room is addressable purely by that identity.
func InviteQR(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}
		link := d.BaseURL + "?room=" + url.QueryEscape(room)
		png, err := qrcode.Encode(link, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render invite", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/borderland-games/arena/internal/collab"
	"github.com/borderland-games/arena/internal/transport"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	reg := collab.NewMemoryRegistry()
	require.NoError(t, reg.Register(context.Background(), collab.RoomRecord{
		RoomID:   "host-1@localhost:8080",
		HostName: "Hosty",
		Status:   collab.RoomWaiting,
		Capacity: 10,
	}))
	return Deps{
		WS:       transport.NewWS("localhost:8080", zap.NewNop()),
		Registry: reg,
		BaseURL:  "http://localhost:8080",
		Log:      zap.NewNop(),
	}
}

func TestListRooms_DefaultsToWaiting(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var rooms []collab.RoomRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	require.Equal(t, "Hosty", rooms[0].HostName)
}

func TestListRooms_FilterMissesReturnEmptyList(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms?status=ended", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestInviteQR(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invite?room=host-1%40localhost%3A8080", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invite", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler := SetupRoutes(testDeps(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

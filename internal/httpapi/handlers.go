package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/hub"
	"github.com/DoyleJ11/chart-collab-backend/internal/room"
)

type createRoomResponse struct {
	RoomID string `json:"roomId"`
	URL    string `json:"url"`
}

type roomInfoResponse struct {
	RoomID       string                 `json:"roomId"`
	Host         string                 `json:"host"`
	Participants []room.ParticipantInfo `json:"participants"`
}

// RoomURL is the client route that opens a room.
func RoomURL(roomID string) string { return "/chart/room/" + roomID }

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.CreateRoom(r.Context())
		if err != nil {
			log.Error("create room", zap.Error(err))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, createRoomResponse{RoomID: id, URL: RoomURL(id)})
	}
}

func RoomInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.View(r.Context(), chi.URLParam(r, "roomId"))
		if errors.Is(err, hub.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to read room", http.StatusInternalServerError)
			return
		}

		resp := roomInfoResponse{RoomID: view.RoomID, Participants: view.Participants}
		for _, p := range view.Participants {
			if p.IsHost {
				resp.Host = p.DisplayName
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package animation

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type VideoHandler struct {
	store *VideoStore
}

func NewVideoHandler(store *VideoStore) *VideoHandler {
	return &VideoHandler{store: store}
}

// RegisterRoutes - 라우트 등록
func (h *VideoHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/videos/{id}", h.GetVideo).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/animation/options", h.GetOptions).Methods("GET", "OPTIONS")
	log.Println("✅ Animation routes registered: /api/videos/{id}, /api/animation/options")
}

// GetVideo - 캐시된 영상 스트리밍 (Range 지원)
func (h *VideoHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, ok := h.store.Get(id)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "video not found or expired"})
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, id+".mp4", time.Time{}, bytes.NewReader(data))
}

// GetOptions - 선택 가능한 길이/비용
func (h *VideoHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"options": Options,
	})
}

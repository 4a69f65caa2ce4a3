package memories

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/auth"
)

type MemoriesHandler struct {
	service  *Service
	resolver *auth.Resolver
}

func NewMemoriesHandler(service *Service, resolver *auth.Resolver) *MemoriesHandler {
	return &MemoriesHandler{service: service, resolver: resolver}
}

// SaveRequest - 저장할 이미지 (data URI 또는 URL)
type SaveRequest struct {
	ImageURL string `json:"imageUrl"`
}

// RegisterRoutes - 라우터에 Memories 엔드포인트 등록
func (h *MemoriesHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/memories", h.ListMemories).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/memories", h.SaveMemory).Methods("POST")
	log.Println("✅ Memories routes registered: /api/memories")
}

// ListMemories - 내 앨범
func (h *MemoriesHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, err := h.resolver.Resolve(r)
	if err != nil || user.Anonymous {
		writeError(w, apperr.ErrUnauthorized)
		return
	}

	memories, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		log.Printf("❌ Failed to list memories: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"memories": memories,
	})
}

// SaveMemory - 앨범에 저장
func (h *MemoriesHandler) SaveMemory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, err := h.resolver.Resolve(r)
	if err != nil || user.Anonymous {
		writeError(w, apperr.ErrUnauthorized)
		return
	}

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request: %v", err)
		writeError(w, &apperr.ValidationError{Message: "Invalid request format"})
		return
	}

	memory, err := h.service.Save(r.Context(), user.ID, req.ImageURL)
	if err != nil {
		log.Printf("❌ Failed to save memory: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(memory)
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(apperr.StatusCode(err))
	json.NewEncoder(w).Encode(apperr.Body(err))
}

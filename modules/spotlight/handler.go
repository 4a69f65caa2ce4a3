package spotlight

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/auth"
)

type SpotlightHandler struct {
	service  *Service
	resolver *auth.Resolver
}

func NewSpotlightHandler(service *Service, resolver *auth.Resolver) *SpotlightHandler {
	return &SpotlightHandler{service: service, resolver: resolver}
}

// RegisterRoutes - 라우터에 Spotlight 엔드포인트 등록
func (h *SpotlightHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/spotlight", h.ListScenes).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/spotlight", h.Sponsor).Methods("POST")
	r.HandleFunc("/api/spotlight/{id}/like", h.Like).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/spotlight/{id}/remove-watermark", h.RemoveWatermark).Methods("POST", "OPTIONS")
	log.Println("✅ Spotlight routes registered: /api/spotlight, /api/spotlight/{id}/like, /api/spotlight/{id}/remove-watermark")
}

// ListScenes - 목록 + 지금 보여줄 장면 인덱스 (로그인 없이도 조회 가능)
func (h *SpotlightHandler) ListScenes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID := ""
	if user, err := h.resolver.Resolve(r); err == nil && !user.Anonymous {
		userID = user.ID
	}

	scenes, err := h.service.List(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to list spotlight: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scenes":       scenes,
		"currentIndex": h.service.Current(len(scenes)),
	})
}

// Sponsor - 현재 장면을 스포트라이트에 등록
func (h *SpotlightHandler) Sponsor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, ok := h.member(w, r)
	if !ok {
		return
	}

	var req SponsorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request: %v", err)
		writeError(w, &apperr.ValidationError{Message: "Invalid request format"})
		return
	}

	scene, err := h.service.Sponsor(r.Context(), user, req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(scene)
}

// Like - 좋아요 (사용자당 한 번)
func (h *SpotlightHandler) Like(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, ok := h.member(w, r)
	if !ok {
		return
	}

	scene, liked, err := h.service.Like(r.Context(), user.ID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scene": scene,
		"liked": liked,
	})
}

// RemoveWatermark - 유료 워터마크 제거
func (h *SpotlightHandler) RemoveWatermark(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, ok := h.member(w, r)
	if !ok {
		return
	}

	scene, err := h.service.RemoveWatermark(r.Context(), user.ID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(scene)
}

func (h *SpotlightHandler) member(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	user, err := h.resolver.Resolve(r)
	if err == nil && user.Anonymous {
		err = apperr.ErrUnauthorized
	}
	if err != nil {
		writeError(w, err)
		return auth.User{}, false
	}
	return user, true
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(apperr.StatusCode(err))
	json.NewEncoder(w).Encode(apperr.Body(err))
}

package studio

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/auth"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/common/utils"
)

const maxUploadBytes = 32 << 20

type StudioHandler struct {
	manager  *SessionManager
	resolver *auth.Resolver
	upgrader websocket.Upgrader
}

func NewStudioHandler(manager *SessionManager, resolver *auth.Resolver) *StudioHandler {
	return &StudioHandler{
		manager:  manager,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			// 개발용 - 모든 origin 허용
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes - 라우터에 Studio 엔드포인트 등록
func (h *StudioHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/studio", h.GetState).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/studio/subjects", h.PutSubjects).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/studio/scene", h.PutScene).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/studio/surprise", h.Surprise).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/studio/generate", h.Generate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/studio/edit", h.Edit).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/studio/animate", h.Animate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/studio/remove-watermark", h.RemoveWatermark).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/studio/reset", h.Reset).Methods("POST", "OPTIONS")
	r.HandleFunc("/metrics", h.GetMetrics).Methods("GET")
	r.HandleFunc("/ws", h.ServeWS)
	log.Println("✅ Studio routes registered: /api/studio/*, /metrics, /ws")
}

// GetState - 현재 스튜디오 상태
func (h *StudioHandler) GetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(studio.View())
}

// PutSubjects - multipart "files" 필드로 인물 사진 1..5장 업로드
func (h *StudioHandler) PutSubjects(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, &apperr.ValidationError{Field: "files", Message: "invalid multipart form"})
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) > MaxSubjects {
		writeError(w, &apperr.ValidationError{Field: "subjectImages", Message: "you can upload up to 5 photos"})
		return
	}

	images := make([]model.Image, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, &apperr.ValidationError{Field: "files", Message: fmt.Sprintf("file %d unreadable", i+1)})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, &apperr.ValidationError{Field: "files", Message: fmt.Sprintf("file %d unreadable", i+1)})
			return
		}

		img, err := utils.NormalizeSubject(data)
		if err != nil {
			log.Printf("⚠️  [Studio] Rejected %s: %v", fh.Filename, err)
			writeError(w, &apperr.ValidationError{Field: "files", Message: fmt.Sprintf("%s is not a supported image", fh.Filename)})
			return
		}
		images = append(images, img)
	}

	if err := studio.SetSubjects(images); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{"subjectCount": len(images)})
}

// PutScene - 장면 설정 교체
func (h *StudioHandler) PutScene(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	var req SceneUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apperr.ValidationError{Field: "body", Message: "invalid request body"})
		return
	}

	studio.Configure(req)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(studio.View())
}

// Surprise - 랜덤 장면 설정
func (h *StudioHandler) Surprise(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	scene := studio.Surprise()
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"scene": scene})
}

// Generate - 장면 생성 (완료까지 대기)
func (h *StudioHandler) Generate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	result, err := studio.Generate(r.Context())
	if err != nil {
		log.Printf("❌ [Studio] Generate failed for %s: %v", studio.userID, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Edit - 피드백 반영 재생성
func (h *StudioHandler) Edit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apperr.ValidationError{Field: "body", Message: "invalid request body"})
		return
	}

	result, err := studio.Edit(r.Context(), req)
	if err != nil {
		log.Printf("❌ [Studio] Edit failed for %s: %v", studio.userID, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Animate - 영상 생성 시작. 진행 상황은 웹소켓 또는 GET /api/studio로 확인
func (h *StudioHandler) Animate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	var req AnimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apperr.ValidationError{Field: "body", Message: "invalid request body"})
		return
	}

	job, err := studio.Animate(r.Context(), req)
	if err != nil {
		log.Printf("❌ [Studio] Animate failed for %s: %v", studio.userID, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"handle":    job.Handle,
		"animation": studio.animation.Snapshot(),
	})
}

// RemoveWatermark - 결과 이미지 워터마크 제거
func (h *StudioHandler) RemoveWatermark(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	result, err := studio.RemoveWatermark(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Reset - 다른 장면 만들기
func (h *StudioHandler) Reset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	studio, ok := h.studio(w, r)
	if !ok {
		return
	}

	studio.Reset()
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(studio.View())
}

// GetMetrics - 서버 메트릭 조회
func (h *StudioHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.manager.Metrics())
}

// ServeWS - 상태 변경 구독 (?access_token= 또는 ?session=)
func (h *StudioHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, err := h.resolver.Resolve(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	studio := h.manager.GetOrCreate(user)
	h.manager.connected()

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}
	log.Printf("🔍 New WebSocket connection - User: %s", user.ID)

	go client.writePump()
	studio.addClient(client)
	go client.readPump(studio)
}

func (h *StudioHandler) studio(w http.ResponseWriter, r *http.Request) (*Studio, bool) {
	user, err := h.resolver.Resolve(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return h.manager.GetOrCreate(user), true
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(apperr.StatusCode(err))
	json.NewEncoder(w).Encode(apperr.Body(err))
}

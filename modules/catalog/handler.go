package catalog

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

type CatalogHandler struct {
	catalog *Catalog
}

func NewCatalogHandler(c *Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// RegisterRoutes - 라우터에 Catalog 엔드포인트 등록
func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/catalog", h.GetCatalog).Methods("GET", "OPTIONS")
	log.Println("✅ Catalog routes registered: /api/catalog")
}

// GetCatalog - 전체 카탈로그 반환
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.catalog)
}

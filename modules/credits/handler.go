package credits

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/auth"
	"scene-composer-server/modules/common/credit"
)

type CreditsHandler struct {
	service  *Service
	bonus    *credit.DailyBonus
	ledger   Ledger
	resolver *auth.Resolver
}

func NewCreditsHandler(service *Service, bonus *credit.DailyBonus, ledger Ledger, resolver *auth.Resolver) *CreditsHandler {
	return &CreditsHandler{
		service:  service,
		bonus:    bonus,
		ledger:   ledger,
		resolver: resolver,
	}
}

// RegisterRoutes - 라우터에 Credits 엔드포인트 등록
func (h *CreditsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/credits", h.GetCredits).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/credits/daily-bonus", h.ClaimDailyBonus).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/credits/watch-ad", h.WatchAd).Methods("POST", "OPTIONS")
	log.Println("✅ Credits routes registered: /api/credits, /api/credits/daily-bonus, /api/credits/watch-ad")
}

// GetCredits - 잔액 + 오늘 남은 광고 횟수
func (h *CreditsHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := h.member(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to fetch balance: %v", err)
		writeError(w, err)
		return
	}

	remaining, err := h.service.AdsRemaining(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Failed to count ads: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance":      balance,
		"adsRemaining": remaining,
		"creditsPerAd": h.service.creditsPerAd,
	})
}

// ClaimDailyBonus - 24시간마다 한 번 보너스
func (h *CreditsHandler) ClaimDailyBonus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := h.member(w, r)
	if !ok {
		return
	}

	result, err := h.bonus.Claim(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Daily bonus failed: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// WatchAd - 보상형 광고 시청
func (h *CreditsHandler) WatchAd(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := h.member(w, r)
	if !ok {
		return
	}

	result, err := h.service.WatchAd(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// member - 로그인 사용자만 허용 (익명 세션은 크레딧이 없음)
func (h *CreditsHandler) member(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := h.resolver.Resolve(r)
	if err == nil && user.Anonymous {
		err = apperr.ErrUnauthorized
	}
	if err != nil {
		writeError(w, err)
		return "", false
	}
	return user.ID, true
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(apperr.StatusCode(err))
	json.NewEncoder(w).Encode(apperr.Body(err))
}

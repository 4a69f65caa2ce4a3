package credits

import (
	"context"
	"log"
	"time"
)

// Rand - 광고 시청 성공 여부 추첨용
type Rand interface {
	Float64() float64
}

// AdService - 보상형 광고 SDK 자리 (시뮬레이션)
type AdService struct {
	rng         Rand
	successRate float64
	delay       time.Duration
}

// NewAdService - successRate 확률로 시청 완료, delay만큼 광고 재생 시간 흉내
func NewAdService(rng Rand, successRate float64, delay time.Duration) *AdService {
	return &AdService{rng: rng, successRate: successRate, delay: delay}
}

// ShowRewardedAd - 광고를 끝까지 봤으면 true
func (a *AdService) ShowRewardedAd(ctx context.Context) (bool, error) {
	log.Printf("📺 [Ads] Attempting to show a rewarded ad...")

	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	if a.rng.Float64() < a.successRate {
		log.Printf("✅ [Ads] Ad watched successfully")
		return true, nil
	}
	log.Printf("⚠️  [Ads] Ad failed to load or was skipped")
	return false, nil
}

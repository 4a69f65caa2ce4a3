package credits

import (
	"context"
	"fmt"
	"log"
	"time"

	"scene-composer-server/modules/common/apperr"
)

// Counter - 일자별 카운터 (redis.Store)
type Counter interface {
	IncrWithin(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) error
	Count(ctx context.Context, key string) (int64, error)
}

// Ledger - 잔액 조회 + 적립 (credit.Ledger)
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Credit(ctx context.Context, userID string, amount int, reason string) (int, error)
}

// AdResult - 광고 시청 결과
type AdResult struct {
	Rewarded     bool `json:"rewarded"`
	Credits      int  `json:"credits"`
	Balance      int  `json:"balance"`
	AdsRemaining int  `json:"adsRemaining"`
}

type Service struct {
	ledger       Ledger
	counter      Counter
	ads          *AdService
	adsPerDay    int
	creditsPerAd int
	now          func() time.Time
}

func NewService(ledger Ledger, counter Counter, ads *AdService, adsPerDay, creditsPerAd int) *Service {
	return &Service{
		ledger:       ledger,
		counter:      counter,
		ads:          ads,
		adsPerDay:    adsPerDay,
		creditsPerAd: creditsPerAd,
		now:          time.Now,
	}
}

// adKey - 사용자별 UTC 일자 카운터 키
func (s *Service) adKey(userID string) string {
	return fmt.Sprintf("credits:ads:%s:%s", userID, s.now().UTC().Format("2006-01-02"))
}

// AdsRemaining - 오늘 남은 광고 횟수
func (s *Service) AdsRemaining(ctx context.Context, userID string) (int, error) {
	watched, err := s.counter.Count(ctx, s.adKey(userID))
	if err != nil {
		return 0, err
	}
	return max(0, s.adsPerDay-int(watched)), nil
}

// WatchAd - 하루 adsPerDay번까지 광고 시청 후 creditsPerAd 적립
func (s *Service) WatchAd(ctx context.Context, userID string) (*AdResult, error) {
	key := s.adKey(userID)

	n, err := s.counter.IncrWithin(ctx, key, 25*time.Hour)
	if err != nil {
		return nil, err
	}
	if int(n) > s.adsPerDay {
		s.undo(ctx, key)
		return nil, fmt.Errorf("%w: %d ads per day", apperr.ErrLimitReached, s.adsPerDay)
	}

	watched, err := s.ads.ShowRewardedAd(ctx)
	if err != nil || !watched {
		s.undo(ctx, key)
		if err != nil {
			return nil, err
		}
		balance, berr := s.ledger.Balance(ctx, userID)
		if berr != nil {
			return nil, berr
		}
		return &AdResult{Rewarded: false, Balance: balance, AdsRemaining: s.adsPerDay - int(n) + 1}, nil
	}

	balance, err := s.ledger.Credit(ctx, userID, s.creditsPerAd, "Rewarded ad")
	if err != nil {
		s.undo(ctx, key)
		return nil, err
	}

	log.Printf("🎬 [Ads] %s earned %d credits (%d/%d today)", userID, s.creditsPerAd, n, s.adsPerDay)
	return &AdResult{
		Rewarded:     true,
		Credits:      s.creditsPerAd,
		Balance:      balance,
		AdsRemaining: s.adsPerDay - int(n),
	}, nil
}

// undo - 보상 없이 끝난 시도는 횟수에서 제외
func (s *Service) undo(ctx context.Context, key string) {
	if err := s.counter.Decr(context.WithoutCancel(ctx), key); err != nil {
		log.Printf("⚠️  [Ads] Failed to roll back ad counter %s: %v", key, err)
	}
}

package credit

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

const dailyBonusPeriod = 24 * time.Hour

// Claimer - 기간 내 한 번만 허용하는 선점 키 (redis.Store)
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
	Release(ctx context.Context, key string) error
}

// BonusResult - 일일 보너스 결과
type BonusResult struct {
	Granted bool          `json:"granted"`
	Amount  int           `json:"amount"`
	Balance int           `json:"balance"`
	NextIn  time.Duration `json:"-"`
}

// MarshalJSON - NextIn은 초 단위로 내보냄
func (r BonusResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Granted       bool  `json:"granted"`
		Amount        int   `json:"amount"`
		Balance       int   `json:"balance"`
		NextInSeconds int64 `json:"nextInSeconds"`
	}{r.Granted, r.Amount, r.Balance, int64(r.NextIn / time.Second)})
}

// DailyBonus - 24시간마다 한 번 크레딧 지급
type DailyBonus struct {
	ledger *Ledger
	claims Claimer
	amount int
}

func NewDailyBonus(ledger *Ledger, claims Claimer, amount int) *DailyBonus {
	return &DailyBonus{ledger: ledger, claims: claims, amount: amount}
}

// Claim - 보너스 수령 시도
func (b *DailyBonus) Claim(ctx context.Context, userID string) (*BonusResult, error) {
	key := "credits:daily:" + userID

	ok, remaining, err := b.claims.Claim(ctx, key, dailyBonusPeriod)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance, err := b.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &BonusResult{Granted: false, Balance: balance, NextIn: remaining}, nil
	}

	balance, err := b.ledger.Credit(ctx, userID, b.amount, "Daily bonus")
	if err != nil {
		if rerr := b.claims.Release(ctx, key); rerr != nil {
			log.Printf("⚠️  Failed to release daily bonus claim for %s: %v", userID, rerr)
		}
		return nil, err
	}

	log.Printf("🎁 Daily bonus granted to %s: +%d", userID, b.amount)
	return &BonusResult{Granted: true, Amount: b.amount, Balance: balance, NextIn: dailyBonusPeriod}, nil
}

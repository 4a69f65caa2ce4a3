package credit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/supabase-community/supabase-go"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
)

const maxDebitAttempts = 5

// store - 크레딧 테이블 접근 (테스트에서 교체)
type store interface {
	fetchCredits(userID string) (int, bool, error)
	compareAndSet(userID string, expected, next int) (bool, error)
	insertMember(userID string, credits int) error
	recordTransaction(entry model.LedgerEntry) error
}

// Ledger - 크레딧 잔액/차감/적립
// 차감은 compare-and-set으로 서버에서 원자적으로 처리
type Ledger struct {
	store           store
	startingCredits int
}

// NewLedger - Supabase 기반 Ledger 생성
func NewLedger(client *supabase.Client, startingCredits int) *Ledger {
	return &Ledger{
		store:           &supabaseStore{supabase: client},
		startingCredits: startingCredits,
	}
}

// EnsureMember - 회원 행이 없으면 시작 크레딧으로 생성, 현재 잔액 반환
func (l *Ledger) EnsureMember(ctx context.Context, userID string) (int, error) {
	credits, found, err := l.store.fetchCredits(userID)
	if err != nil {
		return 0, err
	}
	if found {
		return credits, nil
	}

	if err := l.store.insertMember(userID, l.startingCredits); err != nil {
		// 동시에 생성된 경우 다시 조회
		if credits, found, ferr := l.store.fetchCredits(userID); ferr == nil && found {
			return credits, nil
		}
		return 0, err
	}

	log.Printf("🆕 New member %s created with %d credits", userID, l.startingCredits)
	l.record(userID, model.TransactionCredit, l.startingCredits, l.startingCredits, "Welcome credits")
	return l.startingCredits, nil
}

// Balance - 현재 잔액 (참고용)
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	return l.EnsureMember(ctx, userID)
}

// Debit - 잔액이 충분하면 차감. 부족하면 false (에러 아님)
func (l *Ledger) Debit(ctx context.Context, userID string, amount int, reason string) (bool, int, error) {
	if amount <= 0 {
		return true, 0, nil
	}

	for attempt := 1; attempt <= maxDebitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, 0, err
		}

		current, err := l.EnsureMember(ctx, userID)
		if err != nil {
			return false, 0, err
		}
		if current < amount {
			log.Printf("💳 Insufficient credits: user=%s balance=%d required=%d", userID, current, amount)
			return false, current, nil
		}

		next := current - amount
		swapped, err := l.store.compareAndSet(userID, current, next)
		if err != nil {
			return false, current, fmt.Errorf("failed to deduct credits: %w", err)
		}
		if swapped {
			log.Printf("💰 Credit balance: %d → %d (-%d, %s)", current, next, amount, reason)
			l.record(userID, model.TransactionDebit, -amount, next, reason)
			return true, next, nil
		}

		log.Printf("🔄 Concurrent balance change for %s, retrying debit (%d/%d)", userID, attempt, maxDebitAttempts)
	}

	return false, 0, fmt.Errorf("failed to deduct credits after %d attempts", maxDebitAttempts)
}

// Credit - 적립
func (l *Ledger) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	for attempt := 1; attempt <= maxDebitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		current, err := l.EnsureMember(ctx, userID)
		if err != nil {
			return 0, err
		}

		next := current + amount
		swapped, err := l.store.compareAndSet(userID, current, next)
		if err != nil {
			return current, fmt.Errorf("failed to add credits: %w", err)
		}
		if swapped {
			log.Printf("💰 Credit balance: %d → %d (+%d, %s)", current, next, amount, reason)
			l.record(userID, model.TransactionCredit, amount, next, reason)
			return next, nil
		}
	}
	return 0, fmt.Errorf("failed to add credits after %d attempts", maxDebitAttempts)
}

// Charge - 차감 실패 시 InsufficientCreditsError 반환
func (l *Ledger) Charge(ctx context.Context, userID string, amount int, reason string) (int, error) {
	ok, balance, err := l.Debit(ctx, userID, amount, reason)
	if err != nil {
		return balance, err
	}
	if !ok {
		return balance, &apperr.InsufficientCreditsError{Required: amount, Available: balance}
	}
	return balance, nil
}

func (l *Ledger) record(userID, txType string, amount, balanceAfter int, description string) {
	entry := model.LedgerEntry{
		UserID:          userID,
		TransactionType: txType,
		Amount:          amount,
		BalanceAfter:    balanceAfter,
		Description:     description,
	}
	if err := l.store.recordTransaction(entry); err != nil {
		log.Printf("⚠️  Failed to record %s transaction for %s: %v", txType, userID, err)
	}
}

// Account - 사용자에 바인딩된 Ledger (오케스트레이터의 billing 협력자)
type Account struct {
	ledger *Ledger
	userID string
}

func (l *Ledger) Account(userID string) *Account {
	return &Account{ledger: l, userID: userID}
}

func (a *Account) UserID() string { return a.userID }

// Debit - amount 차감 시도
func (a *Account) Debit(ctx context.Context, amount int, reason string) (bool, error) {
	ok, _, err := a.ledger.Debit(ctx, a.userID, amount, reason)
	return ok, err
}

// Credit - amount 적립 (환불 등)
func (a *Account) Credit(ctx context.Context, amount int, reason string) error {
	_, err := a.ledger.Credit(ctx, a.userID, amount, reason)
	return err
}

// Balance - 현재 잔액
func (a *Account) Balance(ctx context.Context) (int, error) {
	return a.ledger.Balance(ctx, a.userID)
}

// supabaseStore - app_member / app_credit_ledger 테이블
type supabaseStore struct {
	supabase *supabase.Client
}

func (s *supabaseStore) fetchCredits(userID string) (int, bool, error) {
	var members []model.Member

	data, _, err := s.supabase.From("app_member").
		Select("member_id,credits", "", false).
		Eq("member_id", userID).
		Execute()
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch user credits: %w", err)
	}
	if err := json.Unmarshal(data, &members); err != nil {
		return 0, false, fmt.Errorf("failed to parse member data: %w", err)
	}
	if len(members) == 0 {
		return 0, false, nil
	}
	return members[0].Credits, true, nil
}

func (s *supabaseStore) compareAndSet(userID string, expected, next int) (bool, error) {
	var updated []model.Member

	data, _, err := s.supabase.From("app_member").
		Update(map[string]interface{}{"credits": next}, "", "").
		Eq("member_id", userID).
		Eq("credits", strconv.Itoa(expected)).
		Execute()
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, &updated); err != nil {
		return false, fmt.Errorf("failed to parse update result: %w", err)
	}
	return len(updated) == 1, nil
}

func (s *supabaseStore) insertMember(userID string, credits int) error {
	_, _, err := s.supabase.From("app_member").
		Insert(map[string]interface{}{
			"member_id": userID,
			"credits":   credits,
		}, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func (s *supabaseStore) recordTransaction(entry model.LedgerEntry) error {
	_, _, err := s.supabase.From("app_credit_ledger").
		Insert(entry, false, "", "minimal", "").
		Execute()
	return err
}

package model

import "time"

// Image - 업로드/생성된 이미지 바이너리
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// VideoStatus - 비디오 생성 작업 폴링 결과
type VideoStatus struct {
	Done     bool
	VideoURI string
	Err      error // Done일 때만 의미 있음 (작업 실패)
}

// Member - app_member 테이블 구조
type Member struct {
	MemberID  string    `json:"member_id"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// LedgerEntry - app_credit_ledger 테이블 구조
type LedgerEntry struct {
	UserID          string `json:"user_id"`
	TransactionType string `json:"transaction_type"` // "DEBIT" | "CREDIT"
	Amount          int    `json:"amount"`
	BalanceAfter    int    `json:"balance_after"`
	Description     string `json:"description"`
}

// Memory - app_memories 테이블 구조
type Memory struct {
	MemoryID  string    `json:"memory_id"`
	UserID    string    `json:"user_id"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// SpotlightScene - app_spotlight 테이블 구조
type SpotlightScene struct {
	SceneID          string    `json:"scene_id"`
	ImageURL         string    `json:"image_url"`
	Creator          string    `json:"creator"`
	CreatorID        string    `json:"creator_id"`
	Likes            int       `json:"likes"`
	WatermarkRemoved bool      `json:"watermark_removed"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	TransactionDebit  = "DEBIT"
	TransactionCredit = "CREDIT"
)

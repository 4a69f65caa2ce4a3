package apperr

import (
	"errors"
	"fmt"
)

// Kind - 사용자에게 보여줄 에러 메시지 키
type Kind string

const (
	KindUploadRequired      Kind = "upload_required"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindContentPolicy       Kind = "content_policy"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindRateLimit           Kind = "rate_limit"
	KindVideoFailed         Kind = "video_failed"
	KindBusy                Kind = "busy"
	KindTimeout             Kind = "timeout"
	KindLimitReached        Kind = "limit_reached"
	KindGeneric             Kind = "generic"
)

var (
	// ErrBusy - 이미 생성/애니메이션이 진행 중일 때 새 요청 거부
	ErrBusy = errors.New("an operation is already in progress")

	// ErrPollTimeout - 비디오 폴링이 최대 대기 시간을 초과
	ErrPollTimeout = errors.New("video generation did not finish in time")

	ErrUnauthorized = errors.New("authentication required")
	ErrNotFound     = errors.New("not found")

	// ErrLimitReached - 일일 한도 초과 (광고 등)
	ErrLimitReached = errors.New("daily limit reached")
)

// ValidationError - 입력 검증 실패
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientCreditsError - 크레딧 부족
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Shortfall - 부족한 크레딧 수
func (e *InsufficientCreditsError) Shortfall() int {
	if d := e.Required - e.Available; d > 0 {
		return d
	}
	return 0
}

// GenerationRefusedError - 모델이 이미지 생성을 거부 (텍스트 사유 포함)
type GenerationRefusedError struct {
	Reason string
}

func (e *GenerationRefusedError) Error() string {
	return "No image was generated. The AI may have refused the request. Reason: " + e.Reason
}

// QuotaExceededError - 업스트림 쿼터 소진
type QuotaExceededError struct {
	Err error
}

func (e *QuotaExceededError) Error() string { return "quota exceeded: " + errString(e.Err) }
func (e *QuotaExceededError) Unwrap() error { return e.Err }

// RateLimitedError - 업스트림 rate limit
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string { return "rate limit: " + errString(e.Err) }
func (e *RateLimitedError) Unwrap() error { return e.Err }

// ContentPolicyError - 세이프티 필터에 의한 차단
type ContentPolicyError struct {
	Err error
}

func (e *ContentPolicyError) Error() string { return "blocked by safety policy: " + errString(e.Err) }
func (e *ContentPolicyError) Unwrap() error { return e.Err }

// TransportError - 네트워크/전송 계층 실패
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport error: " + errString(e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// GenerationFailedError - 비디오 생성 작업 실패
type GenerationFailedError struct {
	Message string
}

func (e *GenerationFailedError) Error() string {
	return "Video generation failed. " + e.Message
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

// KindOf - 에러를 사용자 메시지 키로 매핑
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var (
		validation *ValidationError
		credits    *InsufficientCreditsError
		refused    *GenerationRefusedError
		quota      *QuotaExceededError
		rateLimit  *RateLimitedError
		policy     *ContentPolicyError
		failed     *GenerationFailedError
	)

	switch {
	case errors.As(err, &validation):
		return KindUploadRequired
	case errors.As(err, &credits):
		return KindInsufficientCredits
	case errors.As(err, &policy), errors.As(err, &refused):
		return KindContentPolicy
	case errors.As(err, &quota):
		return KindQuotaExceeded
	case errors.As(err, &rateLimit):
		return KindRateLimit
	case errors.As(err, &failed):
		return KindVideoFailed
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrPollTimeout):
		return KindTimeout
	case errors.Is(err, ErrLimitReached):
		return KindLimitReached
	default:
		return KindGeneric
	}
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"scene-composer-server/modules/common/apperr"
)

// classify - SDK 에러를 apperr 타입으로 변환 (호출 경계에서 한 번만)
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTyped(err) || errors.Is(err, context.Canceled) {
		return err
	}

	code, status, msg := apiErrorFields(err)
	lower := strings.ToLower(msg + " " + status)

	switch {
	case strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted"):
		return &apperr.QuotaExceededError{Err: err}
	case code == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return &apperr.RateLimitedError{Err: err}
	case strings.Contains(lower, "safety"):
		return &apperr.ContentPolicyError{Err: err}
	case strings.Contains(lower, "video generation failed"):
		return &apperr.GenerationFailedError{Message: msg}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.TransportError{Err: err}
	}

	return fmt.Errorf("gemini: %w", err)
}

// apiErrorFields - genai.APIError면 코드/상태/메시지, 아니면 에러 문자열
func apiErrorFields(err error) (int, string, string) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, apiErr.Message
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message
	}
	return 0, "", err.Error()
}

func isTyped(err error) bool {
	var (
		quota  *apperr.QuotaExceededError
		rl     *apperr.RateLimitedError
		policy *apperr.ContentPolicyError
		refuse *apperr.GenerationRefusedError
		failed *apperr.GenerationFailedError
		tr     *apperr.TransportError
	)
	return errors.As(err, &quota) || errors.As(err, &rl) || errors.As(err, &policy) ||
		errors.As(err, &refuse) || errors.As(err, &failed) || errors.As(err, &tr)
}

// isRetryable - 다른 키로 재시도할 가치가 있는 에러인지 (429 계열)
func isRetryable(err error) bool {
	code, status, msg := apiErrorFields(err)
	lower := strings.ToLower(msg + " " + status)
	return code == 429 ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "resource_exhausted")
}

package apperr

import (
	"errors"
	"net/http"
)

var messages = map[Kind]string{
	KindUploadRequired:      "Please upload at least one photo to start.",
	KindInsufficientCredits: "You don't have enough credits for this.",
	KindContentPolicy:       "The request was blocked by the safety policy. Please try a different photo or theme.",
	KindQuotaExceeded:       "The service has reached its usage quota. Please try again later.",
	KindRateLimit:           "Too many requests right now. Please wait a moment and try again.",
	KindVideoFailed:         "The video could not be generated. Please try again.",
	KindBusy:                "A generation is already in progress.",
	KindTimeout:             "The video took too long to generate. Please try again.",
	KindLimitReached:        "You've reached today's limit. Come back tomorrow.",
	KindGeneric:             "Something went wrong. Please reset and try again.",
}

// UserMessage - Kind별 사용자 안내 문구
func UserMessage(kind Kind) string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return messages[KindGeneric]
}

// StatusCode - 에러에 맞는 HTTP 상태 코드
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}

	switch KindOf(err) {
	case KindUploadRequired:
		return http.StatusBadRequest
	case KindInsufficientCredits:
		return http.StatusPaymentRequired
	case KindContentPolicy:
		return http.StatusUnprocessableEntity
	case KindQuotaExceeded, KindRateLimit, KindLimitReached:
		return http.StatusTooManyRequests
	case KindBusy:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindVideoFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body - JSON 에러 응답 본문
func Body(err error) map[string]interface{} {
	kind := KindOf(err)
	body := map[string]interface{}{
		"error":   err.Error(),
		"kind":    kind,
		"message": UserMessage(kind),
	}

	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		body["required"] = ice.Required
		body["available"] = ice.Available
	}
	return body
}

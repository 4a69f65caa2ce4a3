package gemini

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const maxRetriesPerKey = 3

// Pool - API 키별 genai 클라이언트 + 공용 rate limiter
type Pool struct {
	clients    []*genai.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
}

// NewPool - 키마다 클라이언트 생성
func NewPool(ctx context.Context, apiKeys []string, rps float64) (*Pool, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	clients := make([]*genai.Client, 0, len(apiKeys))
	for i, key := range apiKeys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client for key #%d: %w", i+1, err)
		}
		clients = append(clients, client)
	}

	log.Printf("✅ Gemini pool ready: %d keys, %.1f req/s", len(clients), rps)
	return newPool(clients, rps), nil
}

func newPool(clients []*genai.Client, rps float64) *Pool {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Pool{
		clients:    clients,
		limiter:    rate.NewLimiter(limit, 2),
		retryDelay: 2 * time.Second,
	}
}

// client - 특정 키의 클라이언트
func (p *Pool) client(keyIndex int) *genai.Client {
	if keyIndex < 0 || keyIndex >= len(p.clients) {
		keyIndex = 0
	}
	return p.clients[keyIndex]
}

// withRetry - 429 에러 시 같은 키로 최대 3번, 그 다음 키로 넘어가며 재시도
// 성공한 키 인덱스를 함께 반환
func withRetry[T any](ctx context.Context, p *Pool, label string, call func(*genai.Client) (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	for keyIndex, client := range p.clients {
		log.Printf("🔑 [Gemini Retry] %s: trying API key #%d/%d", label, keyIndex+1, len(p.clients))

		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if err := p.limiter.Wait(ctx); err != nil {
				return zero, keyIndex, err
			}

			result, err := call(client)
			if err == nil {
				if attempt > 1 || keyIndex > 0 {
					log.Printf("✅ [Gemini Retry] %s: success with key #%d (attempt %d/%d)", label, keyIndex+1, attempt, maxRetriesPerKey)
				}
				return result, keyIndex, nil
			}
			lastErr = err

			// 429가 아닌 다른 에러면 바로 반환 (재시도 안 함)
			if !isRetryable(err) {
				log.Printf("❌ [Gemini Retry] %s: key #%d failed with non-429 error: %v", label, keyIndex+1, err)
				return zero, keyIndex, err
			}

			log.Printf("⚠️  [Gemini Retry] %s: key #%d hit rate limit (429) on attempt %d/%d", label, keyIndex+1, attempt, maxRetriesPerKey)
			if attempt < maxRetriesPerKey {
				select {
				case <-ctx.Done():
					return zero, keyIndex, ctx.Err()
				case <-time.After(p.retryDelay):
				}
			}
		}

		log.Printf("⚠️  [Gemini Retry] %s: key #%d exhausted all %d attempts, trying next key...", label, keyIndex+1, maxRetriesPerKey)
	}

	return zero, len(p.clients) - 1, fmt.Errorf("all %d API keys exhausted (%d attempts each), last error: %w", len(p.clients), maxRetriesPerKey, lastErr)
}

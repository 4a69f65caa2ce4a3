package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"scene-composer-server/modules/common/config"
)

// Connect - Redis 연결 생성
func Connect(cfg *config.Config) (*redis.Client, error) {
	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	// TLS 설정 (InsecureSkipVerify 추가)
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// 연결 테스트
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("🔍 Testing Redis connection...")
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Printf("✅ Redis connected")
	return rdb, nil
}

// Store - 키 만료 기반 일회성 claim / 카운터 / 집합 연산
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Claim - SETNX로 키 선점. 이미 선점돼 있으면 false와 남은 TTL 반환
func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	ok, err := s.rdb.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	if ok {
		return true, ttl, nil
	}

	remaining, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis TTL %s: %w", key, err)
	}
	return false, remaining, nil
}

// Release - 선점 해제
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

// unlockScript - 값이 토큰과 같을 때만 삭제
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock - 토큰을 값으로 키 선점. 이미 선점돼 있으면 ok=false
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock - 아직 같은 토큰으로 선점돼 있을 때만 해제. TTL 만료 후 다른 곳이 가져간 키는 건드리지 않음
func (s *Store) Unlock(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, s.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("redis unlock %s: %w", key, err)
	}
	return n == 1, nil
}

// IncrWithin - 카운터 증가, 처음 생성될 때 TTL 설정
func (s *Store) IncrWithin(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Decr - 카운터 감소 (실패한 시도 되돌리기)
func (s *Store) Decr(ctx context.Context, key string) error {
	if err := s.rdb.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DECR %s: %w", key, err)
	}
	return nil
}

// Count - 카운터 현재 값 (없으면 0)
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return n, nil
}

// AddMember - 집합에 추가. 새로 추가됐으면 true
func (s *Store) AddMember(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis SADD %s: %w", key, err)
	}
	return n == 1, nil
}

// IsMember - 집합 포함 여부
func (s *Store) IsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis SISMEMBER %s: %w", key, err)
	}
	return ok, nil
}

// RemoveMember - 집합에서 제거
func (s *Store) RemoveMember(ctx context.Context, key, member string) error {
	if err := s.rdb.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis SREM %s: %w", key, err)
	}
	return nil
}

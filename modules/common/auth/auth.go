package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/supabase-community/supabase-go"

	"scene-composer-server/modules/common/apperr"
)

// User - 요청한 사용자. Anonymous면 과금하지 않음
// Name은 스포트라이트 작성자 표시용 (토큰의 사용자 메타데이터에서)
type User struct {
	ID        string
	Name      string
	Anonymous bool
}

// Verifier - 액세스 토큰 → 사용자
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// SupabaseVerifier - Supabase Auth로 토큰 검증
type SupabaseVerifier struct {
	supabase *supabase.Client
}

func NewSupabaseVerifier(client *supabase.Client) *SupabaseVerifier {
	return &SupabaseVerifier{supabase: client}
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (User, error) {
	resp, err := v.supabase.Auth.WithToken(token).GetUser()
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	id := resp.ID.String()
	return User{ID: id, Name: DisplayName(id, resp.Email, resp.UserMetadata)}, nil
}

// DisplayName - 메타데이터 name → full_name → user_name → 이메일 로컬파트 → ID 앞 8자
func DisplayName(id, email string, metadata map[string]interface{}) string {
	for _, key := range []string{"name", "full_name", "user_name"} {
		if v, ok := metadata[key].(string); ok {
			if name := strings.TrimSpace(v); name != "" {
				return name
			}
		}
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Resolver - 요청에서 사용자 식별. 검증된 토큰은 잠시 캐시
type Resolver struct {
	verifier       Verifier
	allowAnonymous bool
	tokens         *cache.Cache
}

func NewResolver(verifier Verifier, allowAnonymous bool) *Resolver {
	return &Resolver{
		verifier:       verifier,
		allowAnonymous: allowAnonymous,
		tokens:         cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Resolve - Authorization: Bearer <token>. 토큰이 없으면 익명 세션 (허용된 경우)
func (r *Resolver) Resolve(req *http.Request) (User, error) {
	token := bearerToken(req)
	if token == "" {
		return r.anonymous(req)
	}

	if user, ok := r.tokens.Get(token); ok {
		return user.(User), nil
	}

	user, err := r.verifier.Verify(req.Context(), token)
	if err != nil {
		log.Printf("🔒 Token verification failed: %v", err)
		return User{}, err
	}

	r.tokens.SetDefault(token, user)
	return user, nil
}

func (r *Resolver) anonymous(req *http.Request) (User, error) {
	if !r.allowAnonymous {
		return User{}, apperr.ErrUnauthorized
	}

	sessionID := req.Header.Get("X-Session-Id")
	if sessionID == "" {
		sessionID = req.URL.Query().Get("session")
	}
	if sessionID == "" {
		return User{}, fmt.Errorf("%w: missing session id", apperr.ErrUnauthorized)
	}
	return User{ID: "anon:" + sessionID, Anonymous: true}, nil
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// 브라우저 WebSocket은 헤더를 못 붙이므로 쿼리로도 받음
	return req.URL.Query().Get("access_token")
}

package studio

import (
	"context"
	"sync"
	"time"

	"scene-composer-server/modules/animation"
	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/generation"
	"scene-composer-server/modules/prompt"
)

// MaxSubjects - 한 번에 올릴 수 있는 인물 사진 수
const MaxSubjects = 5

// Biller - 세션 사용자에 바인딩된 크레딧 계정 (credit.Account)
type Biller interface {
	Debit(ctx context.Context, amount int, reason string) (bool, error)
	Credit(ctx context.Context, amount int, reason string) error
	Balance(ctx context.Context) (int, error)
}

// Locker - 인스턴스 간 중복 실행 방지용 선점 키 (redis.Store)
// Unlock은 Lock이 돌려준 토큰이 아직 키의 값일 때만 해제
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
}

// Deps - 세션이 공유하는 협력자
type Deps struct {
	Catalog             *catalog.Catalog
	Images              generation.ImageGenerator
	Videos              animation.VideoGenerator
	Publisher           animation.Publisher
	BillerFor           func(userID string) Biller
	Guard               Locker
	NewRand             func() catalog.Rand
	GenerationCost      int
	RemoveWatermarkCost int
	Timing              animation.Timing
}

// SceneUpdate - PUT /api/studio/scene 본문
type SceneUpdate struct {
	Scene       *catalog.SceneConfiguration   `json:"scene"`
	Customizing bool                          `json:"customizing"`
	FreeText    string                        `json:"freeText"`
	Single      *prompt.SingleSubjectSettings `json:"single,omitempty"`
}

// EditRequest - POST /api/studio/edit 본문
type EditRequest struct {
	Feedback string `json:"feedback"`
	FaceLock *bool  `json:"faceLock,omitempty"`
}

// AnimateRequest - POST /api/studio/animate 본문
type AnimateRequest struct {
	DurationSeconds int    `json:"durationSeconds"`
	Feedback        string `json:"feedback,omitempty"`
}

// View - GET /api/studio 응답
type View struct {
	UserID       string                       `json:"userId"`
	Anonymous    bool                         `json:"anonymous"`
	SubjectCount int                          `json:"subjectCount"`
	Scene        *catalog.SceneConfiguration  `json:"scene"`
	Customizing  bool                         `json:"customizing"`
	FreeText     string                       `json:"freeText"`
	Single       prompt.SingleSubjectSettings `json:"single"`
	Generation   generation.Snapshot          `json:"generation"`
	Animation    animation.Snapshot           `json:"animation"`
}

// Event - 웹소켓으로 내보내는 상태 변경
type Event struct {
	Type       string               `json:"type"`
	Generation *generation.Snapshot `json:"generation,omitempty"`
	Animation  *animation.Snapshot  `json:"animation,omitempty"`
}

// lockedRand - 세션 안에서 여러 고루틴이 같은 난수 소스를 씀
type lockedRand struct {
	mu  sync.Mutex
	rng catalog.Rand
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

package studio

import (
	"context"
	"log"
	"sync"
	"time"

	"scene-composer-server/modules/animation"
	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/generation"
	"scene-composer-server/modules/prompt"
)

const generationClaimTTL = 5 * time.Minute

// Studio - 사용자 한 명의 작업 공간
type Studio struct {
	userID    string
	anonymous bool
	deps      *Deps
	rng       *lockedRand

	// 세션 수명 컨텍스트. 요청이 끊겨도 진행 중인 생성은 계속됨
	ctx    context.Context
	cancel context.CancelFunc

	generation *generation.Orchestrator
	animation  *animation.Orchestrator

	mu           sync.Mutex
	subjects     []model.Image
	scene        *catalog.SceneConfiguration
	customizing  bool
	single       prompt.SingleSubjectSettings
	freeText     string
	createdAt    time.Time
	lastActivity time.Time
	clients      map[*Client]struct{}
}

func newStudio(userID string, anonymous bool, deps *Deps) *Studio {
	ctx, cancel := context.WithCancel(context.Background())
	rng := &lockedRand{rng: deps.NewRand()}

	var biller Biller
	if !anonymous && deps.BillerFor != nil {
		biller = deps.BillerFor(userID)
	}

	now := time.Now()
	s := &Studio{
		userID:       userID,
		anonymous:    anonymous,
		deps:         deps,
		rng:          rng,
		ctx:          ctx,
		cancel:       cancel,
		scene:        catalog.NewSceneConfiguration(),
		single:       prompt.DefaultSingleSubjectSettings(),
		createdAt:    now,
		lastActivity: now,
		clients:      make(map[*Client]struct{}),
	}

	// 익명 세션은 biller가 nil → 과금 없이 동작
	builder := prompt.NewBuilder(deps.Catalog, rng)
	s.generation = generation.NewOrchestrator(deps.Images, biller, builder, deps.GenerationCost)
	s.animation = animation.NewOrchestrator(deps.Videos, biller, deps.Publisher, deps.Timing)

	s.generation.OnChange(func(snap generation.Snapshot) {
		s.broadcast(Event{Type: "generation", Generation: &snap})
	})
	s.animation.OnChange(func(snap animation.Snapshot) {
		s.broadcast(Event{Type: "animation", Animation: &snap})
	})
	return s
}

func (s *Studio) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// SetSubjects - 인물 사진 교체 (1..5장)
func (s *Studio) SetSubjects(images []model.Image) error {
	if len(images) == 0 {
		return &apperr.ValidationError{Field: "subjectImages", Message: "no-subject-provided"}
	}
	if len(images) > MaxSubjects {
		return &apperr.ValidationError{Field: "subjectImages", Message: "you can upload up to 5 photos"}
	}

	s.mu.Lock()
	s.subjects = images
	s.lastActivity = time.Now()
	s.mu.Unlock()

	log.Printf("🖼️  [Studio] %s uploaded %d subject images", s.userID, len(images))
	return nil
}

// Configure - 장면 설정/자유 입력/단일 인물 설정 반영
func (s *Studio) Configure(update SceneUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Scene != nil {
		s.scene = update.Scene.Clone()
	} else {
		s.scene = catalog.NewSceneConfiguration()
	}
	s.customizing = update.Customizing
	s.freeText = update.FreeText
	if update.Single != nil {
		s.single = *update.Single
	}
	s.lastActivity = time.Now()
}

// Surprise - 랜덤 포즈 + 랜덤 테마로 장면 설정 교체
func (s *Studio) Surprise() *catalog.SceneConfiguration {
	scene := s.deps.Catalog.SurpriseMe(s.rng)

	s.mu.Lock()
	s.scene = scene
	s.lastActivity = time.Now()
	s.mu.Unlock()

	return scene.Clone()
}

// Generate - 현재 설정으로 장면 생성 (완료까지 블록)
func (s *Studio) Generate(ctx context.Context) (*generation.Result, error) {
	if s.animation.Snapshot().State.Busy() {
		return nil, apperr.ErrBusy
	}

	release, err := s.claim(ctx, generationClaimTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	req := generation.Request{
		Images: append([]model.Image(nil), s.subjects...),
		Prompt: prompt.Input{
			Scene:       s.scene.Clone(),
			FreeText:    s.freeText,
			Customizing: s.customizing,
			Single:      s.single,
		},
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	runCtx, cancel := s.detach(ctx)
	defer cancel()

	result, err := s.generation.Submit(runCtx, req)
	if err == nil {
		// 새 장면이 나오면 이전 영상은 무효
		s.animation.Reset()
	}
	return result, err
}

// Edit - 이전 프롬프트 + 피드백으로 재생성
func (s *Studio) Edit(ctx context.Context, req EditRequest) (*generation.Result, error) {
	if s.animation.Snapshot().State.Busy() {
		return nil, apperr.ErrBusy
	}

	release, err := s.claim(ctx, generationClaimTTL)
	if err != nil {
		return nil, err
	}
	defer release()
	s.touch()

	faceLock := true
	if req.FaceLock != nil {
		faceLock = *req.FaceLock
	}

	runCtx, cancel := s.detach(ctx)
	defer cancel()

	result, err := s.generation.EditWithFeedback(runCtx, req.Feedback, faceLock)
	if err == nil {
		s.animation.Reset()
	}
	return result, err
}

// Animate - 현재 결과로 영상 생성 시작. 폴링은 세션 수명 동안 백그라운드로 진행
func (s *Studio) Animate(ctx context.Context, req AnimateRequest) (*animation.Job, error) {
	cost, ok := animation.CostFor(req.DurationSeconds)
	if !ok {
		return nil, &apperr.ValidationError{Field: "durationSeconds", Message: "choose 2, 3 or 5 seconds"}
	}

	snap := s.generation.Snapshot()
	if snap.State.Busy() {
		return nil, apperr.ErrBusy
	}
	var source string
	if snap.Result != nil {
		source = snap.Result.ImageURL
	}

	release, err := s.claim(ctx, s.deps.Timing.MaxWait+time.Minute)
	if err != nil {
		return nil, err
	}
	s.touch()

	job, err := s.animation.Start(s.ctx, animation.Request{
		SourceImage:     source,
		PromptUsed:      s.generation.LastPrompt(),
		DurationSeconds: req.DurationSeconds,
		Cost:            cost,
		Feedback:        req.Feedback,
	})
	if err != nil {
		release()
		return nil, err
	}

	go func() {
		defer release()
		job.Wait()
	}()
	return job, nil
}

// RemoveWatermark - 현재 결과의 워터마크 제거
func (s *Studio) RemoveWatermark(ctx context.Context) (*generation.Result, error) {
	s.touch()
	if s.anonymous {
		return nil, apperr.ErrUnauthorized
	}
	runCtx, cancel := s.detach(ctx)
	defer cancel()
	return s.generation.RemoveWatermark(runCtx, s.deps.RemoveWatermarkCost)
}

// Reset - "다른 장면 만들기": 결과/영상/사진/설정 모두 초기화
func (s *Studio) Reset() {
	s.generation.Reset()
	s.animation.Reset()

	s.mu.Lock()
	s.subjects = nil
	s.scene = catalog.NewSceneConfiguration()
	s.customizing = false
	s.freeText = ""
	s.single = prompt.DefaultSingleSubjectSettings()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	log.Printf("🔄 [Studio] %s reset", s.userID)
}

// View - 현재 상태
func (s *Studio) View() View {
	s.mu.Lock()
	v := View{
		UserID:       s.userID,
		Anonymous:    s.anonymous,
		SubjectCount: len(s.subjects),
		Scene:        s.scene.Clone(),
		Customizing:  s.customizing,
		FreeText:     s.freeText,
		Single:       s.single,
	}
	s.mu.Unlock()

	v.Generation = s.generation.Snapshot()
	v.Animation = s.animation.Snapshot()
	return v
}

// Busy - 생성 또는 영상 작업이 진행 중인지
func (s *Studio) Busy() bool {
	return s.generation.Snapshot().State.Busy() || s.animation.Snapshot().State.Busy()
}

// close - 세션 종료: 타이머/폴링 중단, 웹소켓 정리
func (s *Studio) close() {
	s.cancel()
	s.animation.Close()

	s.mu.Lock()
	for client := range s.clients {
		close(client.send)
		delete(s.clients, client)
	}
	s.mu.Unlock()
}

// claim - 다른 인스턴스에서 같은 사용자의 작업이 진행 중이면 ErrBusy
func (s *Studio) claim(ctx context.Context, ttl time.Duration) (func(), error) {
	if s.deps.Guard == nil {
		return func() {}, nil
	}

	key := "studio:inflight:" + s.userID
	token, ok, err := s.deps.Guard.Lock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("⛔ [Studio] %s already has an operation in flight", s.userID)
		return nil, apperr.ErrBusy
	}

	return func() {
		released, err := s.deps.Guard.Unlock(context.Background(), key, token)
		if err != nil {
			log.Printf("⚠️  [Studio] Failed to release %s: %v", key, err)
			return
		}
		if !released {
			log.Printf("⚠️  [Studio] %s expired before release, left to its new owner", key)
		}
	}, nil
}

// detach - 요청 값은 유지하되 취소는 세션 수명을 따름 (요청이 끊겨도 결제된 생성은 계속)
func (s *Studio) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	return detached, func() {
		stop()
		cancel()
	}
}

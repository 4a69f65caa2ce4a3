package generation

import (
	"context"
	"log"
	"sync"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/prompt"
)

// ImageGenerator - 이미지 생성 협력자
type ImageGenerator interface {
	Generate(ctx context.Context, images []model.Image, themePrompt, feedback string, faceLock bool) (string, error)
}

// Biller - 크레딧 협력자. 잔액 차감은 협력자 쪽에서 원자적으로 처리
type Biller interface {
	Debit(ctx context.Context, amount int, reason string) (bool, error)
	Credit(ctx context.Context, amount int, reason string) error
	Balance(ctx context.Context) (int, error)
}

// PromptBuilder - 프롬프트 조립
type PromptBuilder interface {
	Build(in prompt.Input) (string, error)
}

// Orchestrator - 생성 요청 생명주기 관리 (세션당 하나)
type Orchestrator struct {
	generator ImageGenerator
	biller    Biller
	builder   PromptBuilder
	cost      int

	notifyMu   sync.Mutex
	mu         sync.Mutex
	state      State
	err        error
	result     *Result
	lastPrompt string
	lastImages []model.Image
	epoch      uint64
	cancel     context.CancelFunc
	listeners  []func(Snapshot)
}

// NewOrchestrator - biller가 nil이면 과금하지 않음
func NewOrchestrator(generator ImageGenerator, biller Biller, builder PromptBuilder, cost int) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		biller:    biller,
		builder:   builder,
		cost:      cost,
		state:     StateIdle,
	}
}

// OnChange - 상태 변경 리스너 등록
func (o *Orchestrator) OnChange(fn func(Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Snapshot - 현재 상태
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// LastPrompt - 마지막으로 사용한 프롬프트
func (o *Orchestrator) LastPrompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastPrompt
}

// Submit - 새 생성 요청
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	req.Prompt.SubjectCount = len(req.Images)

	var invalid error
	if len(req.Images) == 0 {
		invalid = &apperr.ValidationError{Field: "subjectImages", Message: "no-subject-provided"}
	}

	epoch, err := o.begin(invalid)
	if err != nil {
		return nil, err
	}

	if err := o.charge(ctx, epoch, "Scene generation"); err != nil {
		return nil, err
	}

	finalPrompt, err := o.builder.Build(req.Prompt)
	if err != nil {
		o.refund(ctx, "Prompt could not be built")
		return nil, o.fail(epoch, err)
	}

	o.mu.Lock()
	o.lastPrompt = finalPrompt
	o.lastImages = req.Images
	o.mu.Unlock()

	log.Printf("🎨 [Generation] Submitting %d images, prompt: %s", len(req.Images), finalPrompt)
	return o.run(ctx, epoch, req.Images, finalPrompt, "", true)
}

// EditWithFeedback - 이전 프롬프트 재사용 + 피드백으로 재생성
func (o *Orchestrator) EditWithFeedback(ctx context.Context, feedback string, faceLock bool) (*Result, error) {
	o.mu.Lock()
	images, lastPrompt := o.lastImages, o.lastPrompt
	o.mu.Unlock()

	var invalid error
	if len(images) == 0 || lastPrompt == "" {
		invalid = &apperr.ValidationError{Field: "promptUsed", Message: "generate a scene before editing it"}
	}

	epoch, err := o.begin(invalid)
	if err != nil {
		return nil, err
	}

	if err := o.charge(ctx, epoch, "Scene edit"); err != nil {
		return nil, err
	}

	log.Printf("✏️  [Generation] Editing with feedback: %s", feedback)
	return o.run(ctx, epoch, images, lastPrompt, feedback, faceLock)
}

// RemoveWatermark - 현재 결과의 워터마크 제거 (유료)
func (o *Orchestrator) RemoveWatermark(ctx context.Context, cost int) (*Result, error) {
	o.mu.Lock()
	if o.state.Busy() || o.result == nil {
		o.mu.Unlock()
		return nil, &apperr.ValidationError{Field: "result", Message: "no generated image to unlock"}
	}
	if !o.result.Watermarked {
		r := *o.result
		o.mu.Unlock()
		return &r, nil
	}
	o.mu.Unlock()

	if o.biller != nil {
		ok, err := o.biller.Debit(ctx, cost, "Remove watermark")
		if err != nil {
			return nil, err
		}
		if !ok {
			balance, _ := o.biller.Balance(ctx)
			return nil, &apperr.InsufficientCreditsError{Required: cost, Available: balance}
		}
	}

	o.mu.Lock()
	if o.result == nil {
		o.mu.Unlock()
		return nil, &apperr.ValidationError{Field: "result", Message: "result was reset"}
	}
	o.result.Watermarked = false
	r := *o.result
	o.mu.Unlock()

	o.publish()
	return &r, nil
}

// Reset - Idle로 복귀, 모든 요청/결과 상태 초기화 (언제든 호출 가능)
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.epoch++
	o.state = StateIdle
	o.err = nil
	o.result = nil
	o.lastPrompt = ""
	o.lastImages = nil
	o.mu.Unlock()

	o.publish()
}

// begin - 진행 중이면 거부, 입력이 잘못됐으면 Failed, 아니면 AwaitingCredit 진입
// 이전 결과는 생성 호출 직전(run)까지 유지. 검증/과금 실패 시 그대로 남음
func (o *Orchestrator) begin(invalid error) (uint64, error) {
	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return 0, apperr.ErrBusy
	}

	o.epoch++
	epoch := o.epoch
	o.err = nil

	if invalid != nil {
		o.state = StateFailed
		o.err = invalid
		o.mu.Unlock()
		o.publish()
		return 0, invalid
	}

	o.state = StateAwaitingCredit
	o.mu.Unlock()

	o.publish()
	return epoch, nil
}

// charge - 과금 컨텍스트가 있으면 cost 차감
func (o *Orchestrator) charge(ctx context.Context, epoch uint64, reason string) error {
	if o.biller == nil || o.cost <= 0 {
		return nil
	}

	ok, err := o.biller.Debit(ctx, o.cost, reason)
	if err != nil {
		return o.fail(epoch, err)
	}
	if !ok {
		balance, berr := o.biller.Balance(ctx)
		if berr != nil {
			log.Printf("⚠️  [Generation] Failed to read balance: %v", berr)
		}
		return o.fail(epoch, &apperr.InsufficientCreditsError{Required: o.cost, Available: balance})
	}
	return nil
}

func (o *Orchestrator) refund(ctx context.Context, reason string) {
	if o.biller == nil || o.cost <= 0 {
		return
	}
	if err := o.biller.Credit(ctx, o.cost, reason); err != nil {
		log.Printf("⚠️  [Generation] Refund failed: %v", err)
	}
}

// run - InFlight 진입 후 이미지 생성 호출, 결과에 따라 Succeeded/Failed
func (o *Orchestrator) run(ctx context.Context, epoch uint64, images []model.Image, finalPrompt, feedback string, faceLock bool) (*Result, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return nil, context.Canceled
	}
	o.state = StateInFlight
	o.result = nil
	o.cancel = cancel
	o.mu.Unlock()
	o.publish()

	imageURL, err := o.generator.Generate(callCtx, images, finalPrompt, feedback, faceLock)

	o.mu.Lock()
	if o.epoch != epoch {
		// Reset 이후 도착한 결과는 버림
		o.mu.Unlock()
		return nil, context.Canceled
	}
	o.cancel = nil
	if err != nil {
		o.state = StateFailed
		o.err = err
		o.mu.Unlock()
		o.publish()
		log.Printf("❌ [Generation] Failed: %v", err)
		return nil, err
	}

	o.state = StateSucceeded
	o.result = &Result{PromptUsed: finalPrompt, ImageURL: imageURL, Watermarked: true}
	result := *o.result
	o.mu.Unlock()
	o.publish()

	log.Printf("✅ [Generation] Succeeded (%d chars)", len(imageURL))
	return &result, nil
}

func (o *Orchestrator) fail(epoch uint64, err error) error {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return err
	}
	o.state = StateFailed
	o.err = err
	o.mu.Unlock()

	o.publish()
	return err
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{State: o.state, PromptUsed: o.lastPrompt}
	if o.result != nil {
		r := *o.result
		s.Result = &r
	}
	snapshotError(&s, o.err)
	return s
}

// publish - 현재 상태를 리스너에 전달. 전달 순서가 상태 변경 순서와 같도록 직렬화
func (o *Orchestrator) publish() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	snap := o.snapshotLocked()
	listeners := make([]func(Snapshot), len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

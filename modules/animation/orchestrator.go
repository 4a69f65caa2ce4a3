package animation

import (
	"context"
	"log"
	"sync"
	"time"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/common/utils"
)

// VideoGenerator - 영상 생성 협력자 (작업 시작 + 상태 조회)
type VideoGenerator interface {
	StartAnimation(ctx context.Context, source model.Image, themePrompt string, durationSeconds int, feedback string) (string, error)
	PollStatus(ctx context.Context, handle string) (model.VideoStatus, error)
}

// Biller - 크레딧 협력자
type Biller interface {
	Debit(ctx context.Context, amount int, reason string) (bool, error)
	Balance(ctx context.Context) (int, error)
}

// Publisher - 완료된 영상 URI를 클라이언트가 재생할 URL로 변환
type Publisher interface {
	Publish(ctx context.Context, handle, uri string) (string, error)
}

// Orchestrator - 영상 요청 생명주기 (세션당 하나)
type Orchestrator struct {
	videos    VideoGenerator
	biller    Biller
	publisher Publisher
	timing    Timing

	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     State
	err       error
	result    *Result
	duration  int
	countdown int
	epoch     uint64
	cancel    context.CancelFunc
	listeners []func(Snapshot)
}

// NewOrchestrator - biller/publisher가 nil이면 과금/변환 생략
func NewOrchestrator(videos VideoGenerator, biller Biller, publisher Publisher, timing Timing) *Orchestrator {
	return &Orchestrator{
		videos:    videos,
		biller:    biller,
		publisher: publisher,
		timing:    timing,
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

type outcome struct {
	result *Result
	err    error
}

// Job - 백그라운드에서 폴링 중인 작업
type Job struct {
	Handle string
	done   chan outcome
}

// Wait - 종료 상태가 될 때까지 대기
func (j *Job) Wait() (*Result, error) {
	o := <-j.done
	return o.result, o.err
}

// Animate - 과금 → 작업 시작 → 완료까지 폴링. 종료 상태가 될 때까지 블록
func (o *Orchestrator) Animate(ctx context.Context, req Request) (*Result, error) {
	job, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return job.Wait()
}

// Start - 검증/과금/작업 시작까지 처리하고 반환. 폴링과 카운트다운은 ctx가 살아있는 동안 백그라운드로 진행
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Job, error) {
	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return nil, apperr.ErrBusy
	}
	o.epoch++
	epoch := o.epoch
	o.result = nil
	o.err = nil
	o.countdown = 0
	o.duration = req.DurationSeconds

	source, err := validate(req)
	if err != nil {
		o.state = StateFailed
		o.err = err
		o.mu.Unlock()
		o.publish()
		return nil, err
	}
	o.state = StateAwaitingCredit
	o.mu.Unlock()
	o.publish()

	if o.biller != nil && req.Cost > 0 {
		ok, err := o.biller.Debit(ctx, req.Cost, "Scene animation")
		if err != nil {
			return nil, o.finish(epoch, nil, err)
		}
		if !ok {
			balance, berr := o.biller.Balance(ctx)
			if berr != nil {
				log.Printf("⚠️  [Animation] Failed to read balance: %v", berr)
			}
			return nil, o.finish(epoch, nil, &apperr.InsufficientCreditsError{Required: req.Cost, Available: balance})
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		cancel()
		return nil, context.Canceled
	}
	o.cancel = cancel
	o.state = StatePolling
	o.countdown = req.DurationSeconds * TicksPerSecond
	o.mu.Unlock()
	o.publish()

	go o.runCountdown(runCtx, epoch)

	log.Printf("🎬 [Animation] Starting %ds animation (cost %d)", req.DurationSeconds, req.Cost)
	handle, err := o.videos.StartAnimation(runCtx, source, req.PromptUsed, req.DurationSeconds, req.Feedback)
	if err != nil {
		cancel()
		return nil, o.finish(epoch, nil, err)
	}

	job := &Job{Handle: handle, done: make(chan outcome, 1)}
	go func() {
		defer cancel()
		result, err := o.poll(runCtx, handle)
		err = o.finish(epoch, result, err)
		if err != nil {
			result = nil
		}
		job.done <- outcome{result: result, err: err}
	}()
	return job, nil
}

// poll - 완료될 때까지 주기적으로 상태 확인, MaxWait 넘으면 ErrPollTimeout
func (o *Orchestrator) poll(ctx context.Context, handle string) (*Result, error) {
	deadline := time.NewTimer(o.timing.MaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(o.timing.PollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			log.Printf("⏰ [Animation] %s did not finish within %s", handle, o.timing.MaxWait)
			return nil, apperr.ErrPollTimeout
		case <-ticker.C:
		}

		status, err := o.videos.PollStatus(ctx, handle)
		if err != nil {
			return nil, err
		}
		if !status.Done {
			log.Printf("⏳ [Animation] %s still running (poll #%d)", handle, polls)
			continue
		}
		if status.Err != nil {
			return nil, status.Err
		}

		videoURL := status.VideoURI
		if o.publisher != nil {
			videoURL, err = o.publisher.Publish(ctx, handle, status.VideoURI)
			if err != nil {
				return nil, err
			}
		}
		return &Result{Handle: handle, VideoURL: videoURL}, nil
	}
}

// runCountdown - Tick마다 1씩 감소, 0에서 멈춤. 종료 상태/Reset/Close 시 중단
func (o *Orchestrator) runCountdown(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(o.timing.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		if o.epoch != epoch || o.state != StatePolling || o.countdown <= 0 {
			o.mu.Unlock()
			return
		}
		o.countdown--
		o.mu.Unlock()
		o.publish()
	}
}

// Reset - Idle로 복귀, 진행 중인 폴링/카운트다운 중단
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.stopLocked()
	o.state = StateIdle
	o.err = nil
	o.result = nil
	o.duration = 0
	o.countdown = 0
	o.mu.Unlock()

	o.publish()
}

// Close - 세션 종료 시 호출. 타이머를 모두 정리하고 이후 알림을 보내지 않음
func (o *Orchestrator) Close() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	o.listeners = nil
}

func (o *Orchestrator) stopLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.epoch++
}

// finish - 종료 상태 전이. Reset 이후 도착한 결과는 버림
func (o *Orchestrator) finish(epoch uint64, result *Result, err error) error {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		if err == nil {
			return context.Canceled
		}
		return err
	}

	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if err != nil {
		o.state = StateFailed
		o.err = err
		log.Printf("❌ [Animation] Failed: %v", err)
	} else {
		o.state = StateSucceeded
		o.result = result
		log.Printf("✅ [Animation] Video ready: %s", result.VideoURL)
	}
	o.mu.Unlock()

	o.publish()
	return err
}

func validate(req Request) (model.Image, error) {
	if req.SourceImage == "" {
		return model.Image{}, &apperr.ValidationError{Field: "sourceImage", Message: "generate a scene before animating it"}
	}
	if req.DurationSeconds <= 0 {
		return model.Image{}, &apperr.ValidationError{Field: "durationSeconds", Message: "duration must be positive"}
	}
	source, err := utils.ParseDataURI(req.SourceImage)
	if err != nil {
		return model.Image{}, &apperr.ValidationError{Field: "sourceImage", Message: err.Error()}
	}
	return source, nil
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{State: o.state, DurationSeconds: o.duration, Countdown: o.countdown}
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

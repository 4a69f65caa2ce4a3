package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-composer-server/modules/animation"
	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/auth"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/generation"
)

const resultURI = "data:image/png;base64,iVBORw0KGgo="

type zeroRand struct{}

func (zeroRand) IntN(n int) int { return 0 }

type fakeImages struct {
	calls  atomic.Int32
	err    error
	mu     sync.Mutex
	prompt string
	images int
}

func (f *fakeImages) Generate(ctx context.Context, images []model.Image, themePrompt, feedback string, faceLock bool) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompt, f.images = themePrompt, len(images)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return resultURI, nil
}

type fakeVideos struct {
	starts atomic.Int32
	block  chan struct{}
}

func (f *fakeVideos) StartAnimation(ctx context.Context, source model.Image, themePrompt string, durationSeconds int, feedback string) (string, error) {
	f.starts.Add(1)
	return "operations/op-1", nil
}

func (f *fakeVideos) PollStatus(ctx context.Context, handle string) (model.VideoStatus, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return model.VideoStatus{}, ctx.Err()
		}
	}
	return model.VideoStatus{Done: true, VideoURI: "https://videos/op-1.mp4"}, nil
}

type fakeBiller struct {
	mu      sync.Mutex
	balance int
}

func (b *fakeBiller) Debit(ctx context.Context, amount int, reason string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balance < amount {
		return false, nil
	}
	b.balance -= amount
	return true, nil
}

func (b *fakeBiller) Credit(ctx context.Context, amount int, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance += amount
	return nil
}

func (b *fakeBiller) Balance(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *fakeBiller) current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

type fakeGuard struct {
	mu       sync.Mutex
	seq      int
	held     map[string]string
	released chan string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: make(map[string]string), released: make(chan string, 8)}
}

func (g *fakeGuard) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return "", false, nil
	}
	g.seq++
	token := fmt.Sprintf("token-%d", g.seq)
	g.held[key] = token
	return token, true, nil
}

func (g *fakeGuard) Unlock(ctx context.Context, key, token string) (bool, error) {
	g.mu.Lock()
	current, ok := g.held[key]
	if ok && current == token {
		delete(g.held, key)
	}
	g.mu.Unlock()
	g.released <- key
	return ok && current == token, nil
}

// expire - TTL 만료 후 다른 인스턴스가 키를 가져간 상황
func (g *fakeGuard) expire(key, newOwner string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held[key] = newOwner
}

func (g *fakeGuard) owner(key string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[key]
}

type fixture struct {
	deps   *Deps
	images *fakeImages
	videos *fakeVideos
	biller *fakeBiller
}

func newFixture(balance int) *fixture {
	f := &fixture{
		images: &fakeImages{},
		videos: &fakeVideos{},
		biller: &fakeBiller{balance: balance},
	}
	f.deps = &Deps{
		Catalog:             catalog.Default(),
		Images:              f.images,
		Videos:              f.videos,
		BillerFor:           func(string) Biller { return f.biller },
		NewRand:             func() catalog.Rand { return zeroRand{} },
		GenerationCost:      1,
		RemoveWatermarkCost: 100,
		Timing: animation.Timing{
			PollInterval: 2 * time.Millisecond,
			MaxWait:      time.Second,
			Tick:         time.Millisecond,
		},
	}
	return f
}

func subjects(n int) []model.Image {
	out := make([]model.Image, n)
	for i := range out {
		out[i] = model.Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	}
	return out
}

func romanticScene() SceneUpdate {
	scene := catalog.NewSceneConfiguration()
	scene.Set("couples", "couples_romantic")
	return SceneUpdate{Scene: scene}
}

func TestSetSubjectsBounds(t *testing.T) {
	f := newFixture(10)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	var verr *apperr.ValidationError
	assert.ErrorAs(t, s.SetSubjects(nil), &verr)
	assert.ErrorAs(t, s.SetSubjects(subjects(6)), &verr)
	require.NoError(t, s.SetSubjects(subjects(5)))
	assert.Equal(t, 5, s.View().SubjectCount)
}

func TestGenerateUsesConfiguredScene(t *testing.T) {
	f := newFixture(10)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(2)))
	s.Configure(romanticScene())

	result, err := s.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resultURI, result.ImageURL)
	assert.Contains(t, result.PromptUsed, "a romantic couple pose, holding hands")
	assert.Equal(t, 2, f.images.images)
	assert.Equal(t, 9, f.biller.current())
	assert.Equal(t, generation.StateSucceeded, s.View().Generation.State)
}

func TestGenerateWithoutSubjects(t *testing.T) {
	f := newFixture(10)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	_, err := s.Generate(context.Background())
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(0), f.images.calls.Load())
	assert.Equal(t, 10, f.biller.current())
}

func TestSurpriseUsesCatalogRandomness(t *testing.T) {
	f := newFixture(10)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	scene := s.Surprise()
	pose, ok := scene.Get("couples")
	require.True(t, ok)
	assert.Equal(t, "couples_romantic", pose)
	theme, ok := scene.Get("travel")
	require.True(t, ok)
	assert.Equal(t, "travel_paris", theme)
	assert.Equal(t, 2, s.View().Scene.Len())
}

func TestAnimateAfterGenerate(t *testing.T) {
	f := newFixture(200)
	guard := newFakeGuard()
	f.deps.Guard = guard
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "studio:inflight:u1", <-guard.released)

	job, err := s.Animate(context.Background(), AnimateRequest{DurationSeconds: 3})
	require.NoError(t, err)

	result, err := job.Wait()
	require.NoError(t, err)
	assert.Equal(t, "https://videos/op-1.mp4", result.VideoURL)
	assert.Equal(t, 200-1-180, f.biller.current())

	select {
	case key := <-guard.released:
		assert.Equal(t, "studio:inflight:u1", key)
	case <-time.After(time.Second):
		t.Fatal("animation claim was not released")
	}
}

func TestAnimateInsufficientCreditsKeepsGeneration(t *testing.T) {
	f := newFixture(1)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	generated, err := s.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, f.biller.current())

	_, err = s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	var ice *apperr.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 120, ice.Required)

	view := s.View()
	assert.Equal(t, generation.StateSucceeded, view.Generation.State)
	require.NotNil(t, view.Generation.Result)
	assert.Equal(t, *generated, *view.Generation.Result)

	assert.Equal(t, animation.StateFailed, view.Animation.State)
	assert.Equal(t, 0, view.Animation.Countdown)
	assert.Equal(t, int32(0), f.videos.starts.Load())
}

func TestEditInsufficientCreditsKeepsAnimationSource(t *testing.T) {
	f := newFixture(1)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	_, err = s.Edit(context.Background(), EditRequest{Feedback: "warmer light"})
	var ice *apperr.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	require.NotNil(t, s.View().Generation.Result)

	f.biller.Credit(context.Background(), 120, "top up")
	job, err := s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	require.NoError(t, err)
	_, err = job.Wait()
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.videos.starts.Load())
}

func TestReleaseLeavesExpiredClaimToNewOwner(t *testing.T) {
	f := newFixture(200)
	f.videos.block = make(chan struct{})
	guard := newFakeGuard()
	f.deps.Guard = guard
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	<-guard.released

	job, err := s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	require.NoError(t, err)

	guard.expire("studio:inflight:u1", "other-instance")
	close(f.videos.block)
	_, err = job.Wait()
	require.NoError(t, err)

	select {
	case <-guard.released:
	case <-time.After(time.Second):
		t.Fatal("animation claim was not released")
	}
	assert.Equal(t, "other-instance", guard.owner("studio:inflight:u1"))
}

func TestAnimateRejectsUnknownDuration(t *testing.T) {
	f := newFixture(500)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	_, err := s.Animate(context.Background(), AnimateRequest{DurationSeconds: 4})
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(0), f.videos.starts.Load())
}

func TestAnimateWithoutResult(t *testing.T) {
	f := newFixture(500)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	_, err := s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 500, f.biller.current())
}

func TestGenerateRejectedWhileAnimating(t *testing.T) {
	f := newFixture(500)
	f.videos.block = make(chan struct{})
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	_, err = s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	require.NoError(t, err)

	_, err = s.Generate(context.Background())
	assert.ErrorIs(t, err, apperr.ErrBusy)
	assert.True(t, s.Busy())

	close(f.videos.block)
}

func TestNewSceneClearsVideo(t *testing.T) {
	f := newFixture(500)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	job, err := s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	require.NoError(t, err)
	_, err = job.Wait()
	require.NoError(t, err)
	assert.Equal(t, animation.StateSucceeded, s.View().Animation.State)

	_, err = s.Edit(context.Background(), EditRequest{Feedback: "make it sunnier"})
	require.NoError(t, err)
	assert.Equal(t, animation.StateIdle, s.View().Animation.State)
	assert.Nil(t, s.View().Animation.Result)
}

func TestGuardRejectsConcurrentOperation(t *testing.T) {
	f := newFixture(10)
	guard := newFakeGuard()
	guard.held["studio:inflight:u1"] = "other-instance"
	f.deps.Guard = guard
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	assert.ErrorIs(t, err, apperr.ErrBusy)
	assert.Equal(t, int32(0), f.images.calls.Load())
}

func TestAnonymousStudioIsUnbilled(t *testing.T) {
	f := newFixture(0)
	s := newStudio("anon:abc", true, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	_, err = s.RemoveWatermark(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRemoveWatermarkCharges(t *testing.T) {
	f := newFixture(101)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	result, err := s.RemoveWatermark(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Watermarked)
	assert.Equal(t, 0, f.biller.current())
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(10)
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(2)))
	s.Configure(SceneUpdate{Scene: romanticScene().Scene, Customizing: true, FreeText: "at the moon"})
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	s.Reset()
	view := s.View()
	assert.Equal(t, 0, view.SubjectCount)
	assert.Equal(t, 0, view.Scene.Len())
	assert.False(t, view.Customizing)
	assert.Empty(t, view.FreeText)
	assert.Equal(t, generation.StateIdle, view.Generation.State)
	assert.Equal(t, animation.StateIdle, view.Animation.State)
}

func TestGeneratorFailureSurfacesKind(t *testing.T) {
	f := newFixture(10)
	f.images.err = &apperr.ContentPolicyError{Err: errors.New("SAFETY")}
	s := newStudio("u1", false, f.deps)
	defer s.close()

	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindContentPolicy, s.View().Generation.ErrorKind)
}

func TestCleanupRemovesIdleStudios(t *testing.T) {
	f := newFixture(10)
	sm := NewSessionManager(f.deps)

	idle := sm.GetOrCreate(auth.User{ID: "idle"})
	sm.GetOrCreate(auth.User{ID: "fresh"})

	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-time.Hour)
	idle.mu.Unlock()

	removed := sm.Cleanup(time.Now())
	assert.Equal(t, 1, removed)

	_, ok := sm.Get("idle")
	assert.False(t, ok)
	_, ok = sm.Get("fresh")
	assert.True(t, ok)

	m := sm.Metrics()
	assert.Equal(t, 2, m.TotalSessions)
	assert.Equal(t, 1, m.ActiveSessions)
}

func TestCleanupKeepsBusyStudios(t *testing.T) {
	f := newFixture(500)
	f.videos.block = make(chan struct{})
	defer close(f.videos.block)
	sm := NewSessionManager(f.deps)

	s := sm.GetOrCreate(auth.User{ID: "u1"})
	require.NoError(t, s.SetSubjects(subjects(1)))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	_, err = s.Animate(context.Background(), AnimateRequest{DurationSeconds: 2})
	require.NoError(t, err)

	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	assert.Equal(t, 0, sm.Cleanup(time.Now()))
	sm.CloseAll()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
	_, ok := sm.Get("u1")
	assert.False(t, ok)
}

package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/prompt"
)

type generateCall struct {
	images   []model.Image
	prompt   string
	feedback string
	faceLock bool
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  []generateCall
	result string
	err    error
	block  chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, images []model.Image, themePrompt, feedback string, faceLock bool) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{images, themePrompt, feedback, faceLock})
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.result, g.err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeBiller struct {
	mu      sync.Mutex
	balance int
	debits  []int
	credits []int
}

func (b *fakeBiller) Debit(ctx context.Context, amount int, reason string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balance < amount {
		return false, nil
	}
	b.balance -= amount
	b.debits = append(b.debits, amount)
	return true, nil
}

func (b *fakeBiller) Credit(ctx context.Context, amount int, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance += amount
	b.credits = append(b.credits, amount)
	return nil
}

func (b *fakeBiller) Balance(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

type stubBuilder struct {
	prompt string
	err    error
	inputs []prompt.Input
}

func (s *stubBuilder) Build(in prompt.Input) (string, error) {
	s.inputs = append(s.inputs, in)
	return s.prompt, s.err
}

func oneImage() []model.Image {
	return []model.Image{{Data: []byte{1, 2, 3}, MIMEType: "image/png"}}
}

func recordStates(o *Orchestrator) func() []State {
	var mu sync.Mutex
	var states []State
	o.OnChange(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), states...)
	}
}

func TestSubmitSuccess(t *testing.T) {
	gen := &fakeGenerator{result: "data:image/png;base64,AAAA"}
	biller := &fakeBiller{balance: 3}
	builder := &stubBuilder{prompt: "Create a beautiful scene"}
	o := NewOrchestrator(gen, biller, builder, 1)
	states := recordStates(o)

	result, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)

	assert.Equal(t, "Create a beautiful scene", result.PromptUsed)
	assert.Equal(t, "data:image/png;base64,AAAA", result.ImageURL)
	assert.True(t, result.Watermarked)
	assert.Equal(t, 2, biller.balance)

	require.Equal(t, 1, gen.callCount())
	assert.Equal(t, "", gen.calls[0].feedback)
	assert.True(t, gen.calls[0].faceLock)
	assert.Equal(t, 1, builder.inputs[0].SubjectCount)

	assert.Equal(t, []State{StateAwaitingCredit, StateInFlight, StateSucceeded}, states())
	assert.Equal(t, StateSucceeded, o.Snapshot().State)
}

func TestSubmitWithoutImagesNeverCallsCollaborator(t *testing.T) {
	gen := &fakeGenerator{result: "x"}
	biller := &fakeBiller{balance: 3}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "p"}, 1)

	_, err := o.Submit(context.Background(), Request{})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, 3, biller.balance)
	snap := o.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, apperr.KindUploadRequired, snap.ErrorKind)
}

func TestSubmitInsufficientCredits(t *testing.T) {
	gen := &fakeGenerator{result: "x"}
	biller := &fakeBiller{balance: 0}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "p"}, 1)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	var ice *apperr.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 1, ice.Required)
	assert.Equal(t, 0, ice.Available)

	assert.Equal(t, 0, gen.callCount())
	snap := o.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, apperr.KindInsufficientCredits, snap.ErrorKind)
	assert.Equal(t, 1, snap.Required)
}

func TestSubmitUnbilled(t *testing.T) {
	gen := &fakeGenerator{result: "img"}
	o := NewOrchestrator(gen, nil, &stubBuilder{prompt: "p"}, 1)

	result, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)
	assert.Equal(t, "img", result.ImageURL)
}

func TestSubmitGeneratorFailure(t *testing.T) {
	refusal := &apperr.GenerationRefusedError{Reason: "SAFETY"}
	gen := &fakeGenerator{err: refusal}
	biller := &fakeBiller{balance: 1}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "p"}, 1)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.ErrorIs(t, err, refusal)

	snap := o.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Contains(t, snap.Error, "No image was generated")
	assert.Nil(t, snap.Result)
	assert.Equal(t, 0, biller.balance)
}

func TestSubmitPromptFailureRefunds(t *testing.T) {
	gen := &fakeGenerator{result: "x"}
	biller := &fakeBiller{balance: 1}
	builder := &stubBuilder{err: &apperr.ValidationError{Field: "subjectImages", Message: "no-subject-provided"}}
	o := NewOrchestrator(gen, biller, builder, 1)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.Error(t, err)
	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, 1, biller.balance)
	assert.Equal(t, []int{1}, biller.credits)
}

func TestSubmitRejectedWhileInFlight(t *testing.T) {
	gen := &fakeGenerator{result: "x", block: make(chan struct{})}
	o := NewOrchestrator(gen, nil, &stubBuilder{prompt: "p"}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), Request{Images: oneImage()})
		done <- err
	}()

	require.Eventually(t, func() bool { return o.Snapshot().State == StateInFlight }, time.Second, time.Millisecond)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	assert.ErrorIs(t, err, apperr.ErrBusy)
	_, err = o.EditWithFeedback(context.Background(), "more light", true)
	assert.ErrorIs(t, err, apperr.ErrBusy)

	close(gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gen.callCount())
}

func TestEditWithFeedbackReusesPrompt(t *testing.T) {
	gen := &fakeGenerator{result: "first"}
	biller := &fakeBiller{balance: 5}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "Create a beach scene"}, 1)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)

	var sawCleared bool
	o.OnChange(func(s Snapshot) {
		if s.State == StateInFlight && s.Result == nil {
			sawCleared = true
		}
	})

	gen.result = "second"
	result, err := o.EditWithFeedback(context.Background(), "make it sunset", false)
	require.NoError(t, err)

	assert.True(t, sawCleared)
	assert.Equal(t, "second", result.ImageURL)
	assert.Equal(t, "Create a beach scene", result.PromptUsed)
	require.Equal(t, 2, gen.callCount())
	assert.Equal(t, "Create a beach scene", gen.calls[1].prompt)
	assert.Equal(t, "make it sunset", gen.calls[1].feedback)
	assert.False(t, gen.calls[1].faceLock)
	assert.Equal(t, 3, biller.balance)
}

func TestEditInsufficientCreditsKeepsResult(t *testing.T) {
	gen := &fakeGenerator{result: "paid"}
	biller := &fakeBiller{balance: 1}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "Create a beach scene"}, 1)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)

	_, err = o.EditWithFeedback(context.Background(), "make it sunset", true)
	var ice *apperr.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)

	snap := o.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, apperr.KindInsufficientCredits, snap.ErrorKind)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "paid", snap.Result.ImageURL)
	assert.Equal(t, "Create a beach scene", o.LastPrompt())
	assert.Equal(t, 1, gen.callCount())

	// 잔액이 생기면 남아있는 결과로 계속 진행 가능
	biller.Credit(context.Background(), 100, "top up")
	result, err := o.RemoveWatermark(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "paid", result.ImageURL)
	assert.False(t, result.Watermarked)
}

func TestSubmitPromptFailureKeepsResult(t *testing.T) {
	gen := &fakeGenerator{result: "first"}
	builder := &stubBuilder{prompt: "p"}
	o := NewOrchestrator(gen, nil, builder, 1)

	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)

	builder.err = errors.New("catalog unavailable")
	_, err = o.Submit(context.Background(), Request{Images: oneImage()})
	require.Error(t, err)

	snap := o.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "first", snap.Result.ImageURL)
}

func TestEditWithoutPriorGeneration(t *testing.T) {
	gen := &fakeGenerator{result: "x"}
	o := NewOrchestrator(gen, nil, &stubBuilder{prompt: "p"}, 1)

	_, err := o.EditWithFeedback(context.Background(), "feedback", true)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, gen.callCount())
}

func TestResetDiscardsLateResult(t *testing.T) {
	gen := &fakeGenerator{result: "late", block: make(chan struct{})}
	o := NewOrchestrator(gen, nil, &stubBuilder{prompt: "p"}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), Request{Images: oneImage()})
		done <- err
	}()
	require.Eventually(t, func() bool { return o.Snapshot().State == StateInFlight }, time.Second, time.Millisecond)

	o.Reset()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Result)
	assert.Empty(t, o.LastPrompt())
}

func TestRemoveWatermark(t *testing.T) {
	gen := &fakeGenerator{result: "img"}
	biller := &fakeBiller{balance: 101}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "p"}, 1)

	_, err := o.RemoveWatermark(context.Background(), 100)
	require.Error(t, err)

	_, err = o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)

	result, err := o.RemoveWatermark(context.Background(), 100)
	require.NoError(t, err)
	assert.False(t, result.Watermarked)
	assert.Equal(t, 0, biller.balance)

	// 이미 제거됐으면 다시 과금하지 않음
	_, err = o.RemoveWatermark(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 100}, biller.debits)
}

func TestRemoveWatermarkInsufficient(t *testing.T) {
	gen := &fakeGenerator{result: "img"}
	biller := &fakeBiller{balance: 10}
	o := NewOrchestrator(gen, biller, &stubBuilder{prompt: "p"}, 1)
	_, err := o.Submit(context.Background(), Request{Images: oneImage()})
	require.NoError(t, err)

	_, err = o.RemoveWatermark(context.Background(), 100)
	var ice *apperr.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 9, ice.Available)
	assert.True(t, o.Snapshot().Result.Watermarked)
}

func TestSubmitWithCatalogPrompt(t *testing.T) {
	gen := &fakeGenerator{result: "img"}
	builder := prompt.NewBuilder(catalog.Default(), nil)
	o := NewOrchestrator(gen, nil, builder, 1)

	_, err := o.Submit(context.Background(), Request{
		Images: oneImage(),
		Prompt: prompt.Input{FreeText: "two astronauts on the moon"},
	})
	require.NoError(t, err)
	assert.Equal(t, "two astronauts on the moon", gen.calls[0].prompt)
}

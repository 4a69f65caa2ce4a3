package animation

import (
	"errors"
	"time"

	"scene-composer-server/modules/common/apperr"
)

// State - 애니메이션 오케스트레이터 상태
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingCredit State = "awaiting_credit"
	StatePolling        State = "polling"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Busy - 새 요청을 받을 수 없는 상태인지
func (s State) Busy() bool {
	return s == StateAwaitingCredit || s == StatePolling
}

// TicksPerSecond - 영상 1초당 예상 대기 시간(초)
const TicksPerSecond = 30

// Option - 선택 가능한 길이와 비용
type Option struct {
	DurationSeconds int `json:"durationSeconds"`
	Cost            int `json:"cost"`
}

// Options - 2s/120, 3s/180, 5s/300
var Options = []Option{
	{DurationSeconds: 2, Cost: 120},
	{DurationSeconds: 3, Cost: 180},
	{DurationSeconds: 5, Cost: 300},
}

// CostFor - 길이에 해당하는 비용
func CostFor(durationSeconds int) (int, bool) {
	for _, o := range Options {
		if o.DurationSeconds == durationSeconds {
			return o.Cost, true
		}
	}
	return 0, false
}

// Timing - 폴링/카운트다운 주기
type Timing struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Tick         time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		PollInterval: 10 * time.Second,
		MaxWait:      10 * time.Minute,
		Tick:         time.Second,
	}
}

// Request - 애니메이션 요청
type Request struct {
	SourceImage     string // data URI
	PromptUsed      string
	DurationSeconds int
	Cost            int
	Feedback        string
}

// Result - 완료된 영상
type Result struct {
	Handle   string `json:"handle"`
	VideoURL string `json:"videoUrl"`
}

// Snapshot - 상태 변경 알림용 읽기 전용 스냅샷
type Snapshot struct {
	State           State       `json:"state"`
	DurationSeconds int         `json:"durationSeconds,omitempty"`
	Countdown       int         `json:"countdown"`
	Result          *Result     `json:"result,omitempty"`
	Error           string      `json:"error,omitempty"`
	ErrorKind       apperr.Kind `json:"errorKind,omitempty"`
	Required        int         `json:"required,omitempty"`
	Available       int         `json:"available,omitempty"`
}

func snapshotError(s *Snapshot, err error) {
	if err == nil {
		return
	}
	s.Error = err.Error()
	s.ErrorKind = apperr.KindOf(err)

	var ice *apperr.InsufficientCreditsError
	if errors.As(err, &ice) {
		s.Required = ice.Required
		s.Available = ice.Available
	}
}

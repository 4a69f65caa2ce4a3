package generation

import (
	"errors"

	"scene-composer-server/modules/common/apperr"
	"scene-composer-server/modules/common/model"
	"scene-composer-server/modules/prompt"
)

// State - 생성 오케스트레이터 상태
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingCredit State = "awaiting_credit"
	StateInFlight       State = "in_flight"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Busy - 새 요청을 받을 수 없는 상태인지
func (s State) Busy() bool {
	return s == StateAwaitingCredit || s == StateInFlight
}

// Request - 생성 요청 (요청마다 새로 만들고 저장하지 않음)
type Request struct {
	Images []model.Image
	Prompt prompt.Input
}

// Result - 생성 결과
type Result struct {
	PromptUsed  string `json:"promptUsed"`
	ImageURL    string `json:"imageUrl"`
	Watermarked bool   `json:"watermarked"`
}

// Snapshot - 상태 변경 알림용 읽기 전용 스냅샷
type Snapshot struct {
	State      State       `json:"state"`
	PromptUsed string      `json:"promptUsed,omitempty"`
	Result     *Result     `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  apperr.Kind `json:"errorKind,omitempty"`
	Required   int         `json:"required,omitempty"`
	Available  int         `json:"available,omitempty"`
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

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind - 카탈로그 종류 (포즈 / 테마)
type Kind string

const (
	KindPose  Kind = "pose"
	KindTheme Kind = "theme"
)

// 단일 인물 설정에서 특별 취급되는 카테고리
const (
	CategorySolo    = "solo"
	CategoryCouples = "couples"
	CategoryFamily  = "family"
)

// AutoDetect - 동반 인물 인종 기본값
const AutoDetect = "Auto-detect"

// Option - 선택 가능한 프롬프트 조각
type Option struct {
	ID             string `yaml:"id" json:"id"`
	NameKey        string `yaml:"nameKey" json:"nameKey"`
	PromptFragment string `yaml:"promptFragment" json:"promptFragment"`
}

// Category - 옵션 묶음
type Category struct {
	ID      string   `yaml:"id" json:"id"`
	NameKey string   `yaml:"nameKey" json:"nameKey"`
	Kind    Kind     `yaml:"-" json:"kind"`
	Options []Option `yaml:"options" json:"options"`
}

// Label - 파트너 타입 / 자녀 성별 / 인종 같은 고정 선택지
type Label struct {
	NameKey string `yaml:"nameKey" json:"nameKey"`
	Value   string `yaml:"value" json:"value"`
}

// Rand - 주입 가능한 난수 소스 (math/rand/v2 *rand.Rand 호환)
type Rand interface {
	IntN(n int) int
}

// SceneConfiguration - 카테고리 ID → 선택된 옵션 ID (카테고리당 하나, 삽입 순서 유지)
type SceneConfiguration struct {
	keys   []string
	values map[string]string
}

// NewSceneConfiguration - 빈 설정 생성
func NewSceneConfiguration() *SceneConfiguration {
	return &SceneConfiguration{values: make(map[string]string)}
}

// Set - 카테고리 선택 설정 (이미 있으면 값만 교체, 순서 유지)
func (s *SceneConfiguration) Set(categoryID, optionID string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, exists := s.values[categoryID]; !exists {
		s.keys = append(s.keys, categoryID)
	}
	s.values[categoryID] = optionID
}

// Get - 카테고리 선택 조회
func (s *SceneConfiguration) Get(categoryID string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[categoryID]
	return v, ok
}

// Delete - 카테고리 선택 해제
func (s *SceneConfiguration) Delete(categoryID string) {
	if s == nil {
		return
	}
	if _, ok := s.values[categoryID]; !ok {
		return
	}
	delete(s.values, categoryID)
	for i, k := range s.keys {
		if k == categoryID {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys - 삽입 순서대로 카테고리 ID 반환
func (s *SceneConfiguration) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len - 선택된 카테고리 수
func (s *SceneConfiguration) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Clone - 깊은 복사
func (s *SceneConfiguration) Clone() *SceneConfiguration {
	out := NewSceneConfiguration()
	if s == nil {
		return out
	}
	for _, k := range s.keys {
		out.Set(k, s.values[k])
	}
	return out
}

// MarshalJSON - 삽입 순서를 유지한 JSON 객체로 직렬화
func (s *SceneConfiguration) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if s != nil {
		for i, k := range s.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			vb, _ := json.Marshal(s.values[k])
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON - JSON 객체의 키 순서를 그대로 삽입 순서로 사용
func (s *SceneConfiguration) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = SceneConfiguration{values: make(map[string]string)}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("scene configuration must be a JSON object")
	}

	out := SceneConfiguration{values: make(map[string]string)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("scene configuration %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
